package records

import (
	"context"
	"errors"
	"time"

	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Writer persists a classified observation as a synced record and links it
// to its authoring doctor and hospital, auto-creating either when no match
// exists.  It is the single point where the natural-key fields used by the
// dedup guard are set.
type Writer struct {
	records   RecordStore
	doctors   DoctorStore
	hospitals HospitalStore
	clock     func() time.Time
}

func NewWriter(records RecordStore, doctors DoctorStore, hospitals HospitalStore) *Writer {
	return &Writer{
		records:   records,
		doctors:   doctors,
		hospitals: hospitals,
		clock:     time.Now,
	}
}

// NewWriterWithClock injects a fixed clock for tests.
func NewWriterWithClock(records RecordStore, doctors DoctorStore, hospitals HospitalStore, clock func() time.Time) *Writer {
	writer := NewWriter(records, doctors, hospitals)
	writer.clock = clock
	return writer
}

func (w *Writer) Write(ctx context.Context, patient *domain.Patient, obs domain.ClassifiedObservation, hospitalID domain.HospitalID) (*domain.SyncedRecord, error) {

	doctor, err := w.resolveDoctor(ctx, obs.CreatorName, obs.CreatorLicense)
	if err != nil {
		return nil, err
	}

	if _, err := w.resolveHospital(ctx, hospitalID, obs.LocationName); err != nil {
		return nil, err
	}

	now := w.clock()
	sourceObsID := obs.SourceObsID

	record := &domain.SyncedRecord{
		Ref:              uuid.NewString(),
		PatientRef:       patient.Ref,
		RecordType:       obs.RecordType,
		Detail:           buildDetail(obs),
		RecordDate:       obs.ObservedAt,
		CreatedByRef:     domain.ActorRef(doctor.Ref),
		HospitalID:       hospitalID,
		SourceObsID:      &sourceObsID,
		ArrivalTimestamp: &now,
		EditableBy:       []domain.ActorRef{domain.ActorRef(doctor.Ref)},
	}

	switch obs.RecordType {
	case domain.RecordTypeCondition:
		record.DiagnosisName = obs.ConceptLabel
	case domain.RecordTypeMedication:
		record.MedicationName = obs.NormalizedValue
		record.MedicationStatus = domain.MedicationStatusActive
	case domain.RecordTypeTest:
		record.TestName = obs.ConceptLabel
	}

	err = w.records.Create(ctx, record)
	if err != nil {
		// A concurrent writer racing past the dedup guard trips the
		// (hospital_id, source_obs_id) unique index.  That is the
		// tolerated self-healing inconsistency: return the winner.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
			logger.Log.WithFields(logrus.Fields{
				"hospital_id":   hospitalID,
				"source_obs_id": obs.SourceObsID}).Debug("Lost creation race for synced record")
			return w.records.FindBySourceObsID(ctx, hospitalID, obs.SourceObsID)
		}
		return nil, err
	}

	return record, nil
}

// resolveDoctor matches by license first when the source exposes one, then
// by name.  The license is the stronger key: a doctor renamed in the source
// still resolves to the same destination doctor.
func (w *Writer) resolveDoctor(ctx context.Context, creatorName string, creatorLicense string) (*domain.Doctor, error) {

	if creatorLicense != "" {
		doctor, err := w.doctors.FindByLicense(ctx, creatorLicense)
		if err == nil {
			return doctor, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if creatorName != "" {
		doctor, err := w.doctors.FindByName(ctx, creatorName)
		if err == nil {
			return doctor, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	name := creatorName
	if name == "" {
		name = "Unknown Provider"
	}

	license := creatorLicense
	if license == "" {
		license = "EMR-" + uuid.NewString()
	}

	doctor := &domain.Doctor{
		Ref:           uuid.NewString(),
		LicenseNumber: license,
		Name:          name,
	}
	doctor.Email = doctor.Ref + "@sync.invalid"

	if err := w.doctors.Create(ctx, doctor); err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{"doctor_ref": doctor.Ref, "name": name}).Info("Auto-registered a doctor")

	return doctor, nil
}

func (w *Writer) resolveHospital(ctx context.Context, hospitalID domain.HospitalID, locationName string) (*domain.Hospital, error) {

	hospital, err := w.hospitals.FindByHospitalID(ctx, hospitalID)
	if err == nil {
		return hospital, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	name := locationName
	if name == "" {
		name = hospitalID.String()
	}

	hospital = &domain.Hospital{
		Ref:        uuid.NewString(),
		HospitalID: hospitalID,
		Name:       name,
	}

	if err := w.hospitals.Create(ctx, hospital); err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{"hospital_id": hospitalID, "name": name}).Info("Auto-registered a hospital")

	return hospital, nil
}

func buildDetail(obs domain.ClassifiedObservation) string {
	detail := obs.NormalizedValue
	if obs.RecordType == domain.RecordTypeMedication {
		// The normalized value is the medication name itself.
		detail = ""
	}
	if obs.Comment != "" {
		if detail != "" {
			detail += "; " + obs.Comment
		} else {
			detail = obs.Comment
		}
	}
	return detail
}
