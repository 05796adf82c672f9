package records

import (
	"context"
	"testing"
	"time"

	"github.com/carelink/emr-connector/internal/domain"
)

var obsDate = time.Date(2023, 6, 10, 9, 30, 0, 0, time.UTC)

func classifiedObs(obsID int64, recordType domain.RecordType, conceptLabel, value string) domain.ClassifiedObservation {
	return domain.ClassifiedObservation{
		RawObservation: domain.RawObservation{
			SourceObsID:  obsID,
			ConceptLabel: conceptLabel,
			ObservedAt:   obsDate,
		},
		RecordType:      recordType,
		NormalizedValue: value,
	}
}

func existingRecord(obsID int64, recordType domain.RecordType) *domain.SyncedRecord {
	record := &domain.SyncedRecord{
		Ref:         "existing-1",
		PatientRef:  "patient-1",
		RecordType:  recordType,
		RecordDate:  obsDate,
		HospitalID:  "mercy-general",
		SourceObsID: &obsID,
	}
	return record
}

func TestIsDuplicateExactTier(t *testing.T) {

	store := &fakeRecordStore{records: []*domain.SyncedRecord{existingRecord(501, domain.RecordTypeCondition)}}
	guard := NewDedupGuard(store)

	dup, err := guard.IsDuplicate(context.Background(), "mercy-general", "patient-2",
		classifiedObs(501, domain.RecordTypeCondition, "Malaria", "Quinine"))
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if !dup {
		t.Error("same (hospital, source obs id) must always be a duplicate")
	}

	// Same observation id at a different hospital is a different fact.
	dup, err = guard.IsDuplicate(context.Background(), "other-hospital", "patient-2",
		classifiedObs(501, domain.RecordTypeCondition, "Malaria", "Quinine"))
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if dup {
		t.Error("the exact tier is scoped per hospital")
	}
}

func TestIsDuplicateHeuristicTier(t *testing.T) {

	existing := existingRecord(400, domain.RecordTypeCondition)
	existing.DiagnosisName = "Malaria"
	store := &fakeRecordStore{records: []*domain.SyncedRecord{existing}}
	guard := NewDedupGuard(store)

	// Different observation id, same patient + diagnosis + day.
	dup, err := guard.IsDuplicate(context.Background(), "other-hospital", "patient-1",
		classifiedObs(999, domain.RecordTypeCondition, "Malaria", "Quinine"))
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if !dup {
		t.Error("same clinical fact under a new observation id must be caught by the natural key")
	}

	// Different day: not a duplicate.
	obs := classifiedObs(999, domain.RecordTypeCondition, "Malaria", "Quinine")
	obs.ObservedAt = obsDate.AddDate(0, 0, 1)
	dup, err = guard.IsDuplicate(context.Background(), "other-hospital", "patient-1", obs)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if dup {
		t.Error("the natural key includes the record date")
	}
}

func TestIsDuplicateMedicationKeysOnValue(t *testing.T) {

	existing := existingRecord(400, domain.RecordTypeMedication)
	existing.MedicationName = "Quinine 200mg"
	store := &fakeRecordStore{records: []*domain.SyncedRecord{existing}}
	guard := NewDedupGuard(store)

	// Medication records key on the normalized value, not the concept label.
	dup, err := guard.IsDuplicate(context.Background(), "other-hospital", "patient-1",
		classifiedObs(999, domain.RecordTypeMedication, "MEDICATION ORDERS", "Quinine 200mg"))
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if !dup {
		t.Error("expected a medication natural key match on the normalized value")
	}
}

func TestIsDuplicateSkipsHeuristicWithoutAName(t *testing.T) {

	existing := existingRecord(400, domain.RecordTypeMedication)
	existing.MedicationName = ""
	store := &fakeRecordStore{records: []*domain.SyncedRecord{existing}}
	guard := NewDedupGuard(store)

	// An empty natural-key name must not match everything.
	dup, err := guard.IsDuplicate(context.Background(), "other-hospital", "patient-1",
		classifiedObs(999, domain.RecordTypeMedication, "MEDICATION ORDERS", ""))
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if dup {
		t.Error("absent natural-key fields must not be matched against")
	}
}

func TestIsDuplicateVisitKeysOnDateAlone(t *testing.T) {

	store := &fakeRecordStore{records: []*domain.SyncedRecord{existingRecord(400, domain.RecordTypeVisit)}}
	guard := NewDedupGuard(store)

	dup, err := guard.IsDuplicate(context.Background(), "other-hospital", "patient-1",
		classifiedObs(999, domain.RecordTypeVisit, "TYPE OF VISIT", "OUTPATIENT"))
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if !dup {
		t.Error("a second visit observation on the same day is a duplicate")
	}
}
