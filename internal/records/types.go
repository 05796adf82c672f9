package records

import (
	"context"
	"errors"
	"time"

	"github.com/carelink/emr-connector/internal/domain"
)

// ErrNotFound is returned by the Find* operations when no row matches.
var ErrNotFound = errors.New("record not found")

// PatientStore is the destination store's patient collection.  The engine
// only relies on the generic find/create operations listed here.
type PatientStore interface {
	FindByRef(ctx context.Context, ref string) (*domain.Patient, error)
	FindByNationalID(ctx context.Context, nationalID string) (*domain.Patient, error)
	FindByFullName(ctx context.Context, givenName, familyName string) (*domain.Patient, error)
	FindByNameLike(ctx context.Context, givenName, familyName string) (*domain.Patient, error)
	FindByFamilyName(ctx context.Context, familyName string) (*domain.Patient, error)
	Create(ctx context.Context, patient *domain.Patient) error
}

type DoctorStore interface {
	FindByLicense(ctx context.Context, licenseNumber string) (*domain.Doctor, error)
	FindByName(ctx context.Context, name string) (*domain.Doctor, error)
	Create(ctx context.Context, doctor *domain.Doctor) error
}

type HospitalStore interface {
	FindByHospitalID(ctx context.Context, hospitalID domain.HospitalID) (*domain.Hospital, error)
	Create(ctx context.Context, hospital *domain.Hospital) error
}

// RecordStore is the destination store's synced-record collection.
type RecordStore interface {
	FindByRef(ctx context.Context, ref string) (*domain.SyncedRecord, error)
	FindBySourceObsID(ctx context.Context, hospitalID domain.HospitalID, sourceObsID int64) (*domain.SyncedRecord, error)
	FindByNaturalKey(ctx context.Context, patientRef string, recordType domain.RecordType, name string, recordDate time.Time) (*domain.SyncedRecord, error)
	Create(ctx context.Context, record *domain.SyncedRecord) error
	UpdateMedicationStatus(ctx context.Context, ref string, status domain.MedicationStatus) error
}
