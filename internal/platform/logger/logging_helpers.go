package logger

import (
	"github.com/sirupsen/logrus"

	"github.com/carelink/emr-connector/internal/domain"
)

func LogWithError(logger *logrus.Entry, msg string, err error) {
	logger.WithFields(logrus.Fields{"error": err}).Error(msg)
}

func LogError(msg string, err error) {
	Log.WithFields(logrus.Fields{"error": err}).Error(msg)
}

func LogFatalError(msg string, err error) {
	Log.WithFields(logrus.Fields{"error": err}).Fatal(msg)
}

func LogErrorWithHospitalID(msg string, err error, hospitalID domain.HospitalID) {
	Log.WithFields(logrus.Fields{"error": err, "hospital_id": hospitalID}).Error(msg)
}

func LogErrorWithObservation(msg string, err error, hospitalID domain.HospitalID, sourceObsID int64) {
	Log.WithFields(logrus.Fields{
		"error":         err,
		"hospital_id":   hospitalID,
		"source_obs_id": sourceObsID}).Error(msg)
}
