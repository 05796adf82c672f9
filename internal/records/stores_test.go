package records

import (
	"context"
	"strings"
	"time"

	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/platform/logger"
)

func init() {
	logger.InitLogger()
}

// In-memory store fakes shared by the dedup and writer tests.

type fakeRecordStore struct {
	records   []*domain.SyncedRecord
	createErr error
}

func (f *fakeRecordStore) FindByRef(ctx context.Context, ref string) (*domain.SyncedRecord, error) {
	for _, r := range f.records {
		if r.Ref == ref {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRecordStore) FindBySourceObsID(ctx context.Context, hospitalID domain.HospitalID, sourceObsID int64) (*domain.SyncedRecord, error) {
	for _, r := range f.records {
		if r.HospitalID == hospitalID && r.SourceObsID != nil && *r.SourceObsID == sourceObsID {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRecordStore) FindByNaturalKey(ctx context.Context, patientRef string, recordType domain.RecordType, name string, recordDate time.Time) (*domain.SyncedRecord, error) {
	for _, r := range f.records {
		if r.PatientRef != patientRef || r.RecordType != recordType {
			continue
		}
		if !sameDay(r.RecordDate, recordDate) {
			continue
		}
		switch recordType {
		case domain.RecordTypeCondition:
			if r.DiagnosisName == name {
				return r, nil
			}
		case domain.RecordTypeMedication:
			if r.MedicationName == name {
				return r, nil
			}
		case domain.RecordTypeTest:
			if r.TestName == name {
				return r, nil
			}
		default:
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRecordStore) Create(ctx context.Context, record *domain.SyncedRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeRecordStore) UpdateMedicationStatus(ctx context.Context, ref string, status domain.MedicationStatus) error {
	for _, r := range f.records {
		if r.Ref == ref {
			r.MedicationStatus = status
			return nil
		}
	}
	return ErrNotFound
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

type fakeDoctorStore struct {
	doctors []*domain.Doctor
}

func (f *fakeDoctorStore) FindByLicense(ctx context.Context, licenseNumber string) (*domain.Doctor, error) {
	for _, d := range f.doctors {
		if d.LicenseNumber == licenseNumber {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeDoctorStore) FindByName(ctx context.Context, name string) (*domain.Doctor, error) {
	for _, d := range f.doctors {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeDoctorStore) Create(ctx context.Context, doctor *domain.Doctor) error {
	f.doctors = append(f.doctors, doctor)
	return nil
}

type fakeHospitalStore struct {
	hospitals []*domain.Hospital
}

func (f *fakeHospitalStore) FindByHospitalID(ctx context.Context, hospitalID domain.HospitalID) (*domain.Hospital, error) {
	for _, h := range f.hospitals {
		if h.HospitalID == hospitalID {
			return h, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeHospitalStore) Create(ctx context.Context, hospital *domain.Hospital) error {
	f.hospitals = append(f.hospitals, hospital)
	return nil
}
