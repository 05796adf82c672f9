package records

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/carelink/emr-connector/internal/domain"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

var writeTime = time.Date(2023, 6, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return writeTime
}

func newTestWriter(recordStore *fakeRecordStore, doctorStore *fakeDoctorStore, hospitalStore *fakeHospitalStore) *Writer {
	return NewWriterWithClock(recordStore, doctorStore, hospitalStore, fixedClock)
}

func TestWriteConditionRecord(t *testing.T) {

	recordStore := &fakeRecordStore{}
	doctorStore := &fakeDoctorStore{}
	hospitalStore := &fakeHospitalStore{}
	writer := newTestWriter(recordStore, doctorStore, hospitalStore)

	patient := &domain.Patient{Ref: "patient-1"}
	obs := domain.ClassifiedObservation{
		RawObservation: domain.RawObservation{
			SourceObsID:  501,
			ConceptLabel: "Malaria smear impression",
			CodedValue:   "Quinine 200mg",
			ObservedAt:   obsDate,
			CreatorName:  "Dr. Achieng",
		},
		RecordType:      domain.RecordTypeCondition,
		NormalizedValue: "Quinine 200mg",
	}

	record, err := writer.Write(context.Background(), patient, obs, "mercy-general")
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	if record.DiagnosisName != "Malaria smear impression" {
		t.Errorf("diagnosis name must come from the concept label, got %q", record.DiagnosisName)
	}
	if record.Detail != "Quinine 200mg" {
		t.Errorf("the observation value becomes the treatment detail, got %q", record.Detail)
	}
	if record.RecordDate != obsDate {
		t.Errorf("record date must be the observation time, got %v", record.RecordDate)
	}
	if record.ArrivalTimestamp == nil || !record.ArrivalTimestamp.Equal(writeTime) {
		t.Error("arrival timestamp must come from the injected clock")
	}
	if record.SourceObsID == nil || *record.SourceObsID != 501 {
		t.Error("the source observation id must be persisted for the dedup guard")
	}
	if len(recordStore.records) != 1 {
		t.Fatalf("expected one persisted record, got %d", len(recordStore.records))
	}
}

func TestWriteMedicationRecord(t *testing.T) {

	recordStore := &fakeRecordStore{}
	writer := newTestWriter(recordStore, &fakeDoctorStore{}, &fakeHospitalStore{})

	obs := domain.ClassifiedObservation{
		RawObservation: domain.RawObservation{
			SourceObsID:  502,
			ConceptLabel: "MEDICATION ORDERS",
			CodedValue:   "Amoxicillin 500mg",
			ObservedAt:   obsDate,
			Comment:      "take with food",
		},
		RecordType:      domain.RecordTypeMedication,
		NormalizedValue: "Amoxicillin 500mg",
	}

	record, err := writer.Write(context.Background(), &domain.Patient{Ref: "patient-1"}, obs, "mercy-general")
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	if record.MedicationName != "Amoxicillin 500mg" {
		t.Errorf("medication name must come from the normalized value, got %q", record.MedicationName)
	}
	if record.MedicationStatus != domain.MedicationStatusActive {
		t.Errorf("a freshly synced medication starts Active, got %s", record.MedicationStatus)
	}
	if record.Detail != "take with food" {
		t.Errorf("the detail carries only the comment for medications, got %q", record.Detail)
	}
}

func TestWriteAutoRegistersDoctorAndHospital(t *testing.T) {

	recordStore := &fakeRecordStore{}
	doctorStore := &fakeDoctorStore{}
	hospitalStore := &fakeHospitalStore{}
	writer := newTestWriter(recordStore, doctorStore, hospitalStore)

	obs := domain.ClassifiedObservation{
		RawObservation: domain.RawObservation{
			SourceObsID:  503,
			ConceptLabel: "PROBLEM ADDED",
			ObservedAt:   obsDate,
			CreatorName:  "Dr. Okafor",
			LocationName: "Mercy General Hospital",
		},
		RecordType: domain.RecordTypeCondition,
	}

	record, err := writer.Write(context.Background(), &domain.Patient{Ref: "patient-1"}, obs, "mercy-general")
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	if len(doctorStore.doctors) != 1 {
		t.Fatalf("expected one auto-registered doctor, got %d", len(doctorStore.doctors))
	}
	doctor := doctorStore.doctors[0]
	if doctor.Name != "Dr. Okafor" {
		t.Errorf("got doctor name %q", doctor.Name)
	}
	if !strings.HasPrefix(doctor.LicenseNumber, "EMR-") {
		t.Errorf("expected a placeholder license number, got %q", doctor.LicenseNumber)
	}
	if record.CreatedByRef != domain.ActorRef(doctor.Ref) {
		t.Error("the record author must be the resolved doctor")
	}
	if len(record.EditableBy) != 1 || record.EditableBy[0] != domain.ActorRef(doctor.Ref) {
		t.Error("the authoring doctor must be listed in EditableBy")
	}

	if len(hospitalStore.hospitals) != 1 {
		t.Fatalf("expected one auto-registered hospital, got %d", len(hospitalStore.hospitals))
	}
	if hospitalStore.hospitals[0].Name != "Mercy General Hospital" {
		t.Errorf("got hospital name %q", hospitalStore.hospitals[0].Name)
	}

	// A second write by the same doctor reuses the existing row.
	obs.SourceObsID = 504
	if _, err := writer.Write(context.Background(), &domain.Patient{Ref: "patient-1"}, obs, "mercy-general"); err != nil {
		t.Fatal("unexpected error:", err)
	}
	if len(doctorStore.doctors) != 1 || len(hospitalStore.hospitals) != 1 {
		t.Error("doctor and hospital must be resolved, not re-created")
	}
}

func TestWriteMatchesDoctorByLicense(t *testing.T) {

	doctorStore := &fakeDoctorStore{
		doctors: []*domain.Doctor{{Ref: "doctor-1", LicenseNumber: "KMC-4417", Name: "Dr. A. Okafor"}},
	}
	writer := newTestWriter(&fakeRecordStore{}, doctorStore, &fakeHospitalStore{})

	// The source spells the name differently; the license still resolves to
	// the existing doctor.
	obs := domain.ClassifiedObservation{
		RawObservation: domain.RawObservation{
			SourceObsID:    507,
			ConceptLabel:   "PROBLEM ADDED",
			ObservedAt:     obsDate,
			CreatorName:    "Dr. Amina Okafor",
			CreatorLicense: "KMC-4417",
		},
		RecordType: domain.RecordTypeCondition,
	}

	record, err := writer.Write(context.Background(), &domain.Patient{Ref: "patient-1"}, obs, "mercy-general")
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	if record.CreatedByRef != "doctor-1" {
		t.Errorf("expected the license match to win, got author %s", record.CreatedByRef)
	}
	if len(doctorStore.doctors) != 1 {
		t.Errorf("expected no new doctor, got %d", len(doctorStore.doctors))
	}

	// An unknown license registers a doctor carrying the source license
	// instead of a placeholder.
	obs.SourceObsID = 508
	obs.CreatorName = "Dr. Wanjiru"
	obs.CreatorLicense = "KMC-9902"
	if _, err := writer.Write(context.Background(), &domain.Patient{Ref: "patient-1"}, obs, "mercy-general"); err != nil {
		t.Fatal("unexpected error:", err)
	}
	if len(doctorStore.doctors) != 2 || doctorStore.doctors[1].LicenseNumber != "KMC-9902" {
		t.Error("an auto-registered doctor must keep the source license number")
	}
}

func TestWriteUnknownProviderFallback(t *testing.T) {

	doctorStore := &fakeDoctorStore{}
	writer := newTestWriter(&fakeRecordStore{}, doctorStore, &fakeHospitalStore{})

	obs := domain.ClassifiedObservation{
		RawObservation: domain.RawObservation{SourceObsID: 505, ObservedAt: obsDate},
		RecordType:     domain.RecordTypeCondition,
	}

	if _, err := writer.Write(context.Background(), &domain.Patient{Ref: "patient-1"}, obs, "mercy-general"); err != nil {
		t.Fatal("unexpected error:", err)
	}

	if len(doctorStore.doctors) != 1 || doctorStore.doctors[0].Name != "Unknown Provider" {
		t.Error("a missing creator name falls back to the Unknown Provider placeholder")
	}
}

func TestWriteToleratesCreationRace(t *testing.T) {

	winnerObsID := int64(506)
	winner := &domain.SyncedRecord{
		Ref:         "winner-1",
		PatientRef:  "patient-1",
		RecordType:  domain.RecordTypeCondition,
		HospitalID:  "mercy-general",
		SourceObsID: &winnerObsID,
	}

	recordStore := &fakeRecordStore{
		records:   []*domain.SyncedRecord{winner},
		createErr: &pq.Error{Code: pq.ErrorCode(pgerrcode.UniqueViolation)},
	}
	writer := newTestWriter(recordStore, &fakeDoctorStore{}, &fakeHospitalStore{})

	obs := domain.ClassifiedObservation{
		RawObservation: domain.RawObservation{SourceObsID: 506, ObservedAt: obsDate},
		RecordType:     domain.RecordTypeCondition,
	}

	record, err := writer.Write(context.Background(), &domain.Patient{Ref: "patient-1"}, obs, "mercy-general")
	if err != nil {
		t.Fatal("a lost creation race must not surface as an error:", err)
	}
	if record.Ref != "winner-1" {
		t.Errorf("expected the racing winner to be returned, got %q", record.Ref)
	}
}
