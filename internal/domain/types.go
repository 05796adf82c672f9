package domain

import (
	"time"
)

type HospitalID string

func (hid HospitalID) String() string {
	return string(hid)
}

type ActorRef string

func (ar ActorRef) String() string {
	return string(ar)
}

type RecordType string

const (
	RecordTypeCondition  RecordType = "condition"
	RecordTypeMedication RecordType = "medication"
	RecordTypeTest       RecordType = "test"
	RecordTypeVisit      RecordType = "visit"
)

type MedicationStatus string

const (
	MedicationStatusActive MedicationStatus = "Active"
	MedicationStatusPast   MedicationStatus = "Past"
)

// RawObservation is a single concept/value pair pulled from a source EMR.
// It is transient: produced by a fetcher, consumed once by the pipeline.
type RawObservation struct {
	SourceObsID    int64
	SourcePersonID int64
	ConceptLabel   string
	CodedValue     string
	TextValue      string
	NumericValue   *float64
	ObservedAt     time.Time
	Comment        string
	CreatorID      int64
	CreatorName    string
	CreatorLicense string
	LocationID     int64
	LocationName   string
}

// ClassifiedObservation is a RawObservation plus the record type and
// normalized value assigned by the categorizer.
type ClassifiedObservation struct {
	RawObservation
	RecordType      RecordType
	NormalizedValue string
}

// SourcePerson carries the demographic fields a source EMR exposes for a
// person record.  Any field other than the id may be empty.
type SourcePerson struct {
	SourcePersonID int64
	NationalID     string
	GivenName      string
	FamilyName     string
	Gender         string
	BirthDate      *time.Time
	Address        string
}

func (sp SourcePerson) FullName() string {
	if sp.GivenName == "" {
		return sp.FamilyName
	}
	if sp.FamilyName == "" {
		return sp.GivenName
	}
	return sp.GivenName + " " + sp.FamilyName
}

type Patient struct {
	Ref        string
	NationalID string
	GivenName  string
	FamilyName string
	Gender     string
	BirthDate  *time.Time
	Address    string
	Email      string

	// ExternalID caches the source-system person identifier for fast
	// re-resolution on later syncs.
	ExternalID string
}

type Doctor struct {
	Ref           string
	LicenseNumber string
	Name          string
	Email         string
}

type Hospital struct {
	Ref        string
	HospitalID HospitalID
	Name       string
}

// SyncedRecord is the persisted form of a classified observation.  A record
// with a populated ArrivalTimestamp was produced by sync and is governed by
// the access window; one without is a legacy/manual record and is exempt.
type SyncedRecord struct {
	Ref        string
	PatientRef string
	RecordType RecordType

	DiagnosisName  string
	MedicationName string
	TestName       string
	Detail         string
	RecordDate     time.Time

	MedicationStatus MedicationStatus

	CreatedByRef     ActorRef
	HospitalID       HospitalID
	SourceObsID      *int64
	ArrivalTimestamp *time.Time
	EditableBy       []ActorRef
}

// IsSynced reports whether the record was produced by the sync engine.
func (r *SyncedRecord) IsSynced() bool {
	return r.ArrivalTimestamp != nil
}
