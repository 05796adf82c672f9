package classify

import (
	"testing"

	"github.com/carelink/emr-connector/internal/domain"

	"github.com/go-playground/assert/v2"
)

func TestCategorizeRecordType(t *testing.T) {

	testCases := []struct {
		conceptLabel       string
		expectedRecordType domain.RecordType
	}{
		{"LAB RESULT", domain.RecordTypeTest},
		{"Widal test", domain.RecordTypeTest},
		{"Sputum culture", domain.RecordTypeTest},
		{"Chest X-Ray", domain.RecordTypeTest},
		{"MEDICATION ORDERS", domain.RecordTypeMedication},
		{"Current drug regimen", domain.RecordTypeMedication},
		{"TYPE OF VISIT", domain.RecordTypeVisit},
		{"Hospital admission", domain.RecordTypeVisit},
		{"Discharge summary", domain.RecordTypeVisit},
		{"Malaria smear impression", domain.RecordTypeCondition},
		{"PROBLEM ADDED", domain.RecordTypeCondition},
		{"", domain.RecordTypeCondition},
	}

	classifier := NewClassifier()

	for _, tc := range testCases {
		classified := classifier.Categorize(domain.RawObservation{ConceptLabel: tc.conceptLabel})
		if classified.RecordType != tc.expectedRecordType {
			t.Errorf("concept %q classified as %s, expected %s", tc.conceptLabel, classified.RecordType, tc.expectedRecordType)
		}
	}
}

func TestCategorizeIsDeterministic(t *testing.T) {

	classifier := NewClassifier()

	// "drug test" matches both the test and medication keyword sets; rule
	// order decides, and it must decide the same way every time.
	obs := domain.RawObservation{ConceptLabel: "Drug test result"}

	first := classifier.Categorize(obs)
	for i := 0; i < 100; i++ {
		if got := classifier.Categorize(obs); got.RecordType != first.RecordType {
			t.Fatalf("classification not deterministic: got %s then %s", first.RecordType, got.RecordType)
		}
	}

	if first.RecordType != domain.RecordTypeTest {
		t.Errorf("expected the test rule to win by order, got %s", first.RecordType)
	}
}

func TestNormalizedValuePreference(t *testing.T) {

	numeric := 37.5

	testCases := []struct {
		name          string
		obs           domain.RawObservation
		expectedValue string
	}{
		{"coded value wins", domain.RawObservation{CodedValue: "POSITIVE", TextValue: "pos", NumericValue: &numeric}, "POSITIVE"},
		{"text value next", domain.RawObservation{TextValue: "Quinine 200mg", NumericValue: &numeric}, "Quinine 200mg"},
		{"numeric value last", domain.RawObservation{NumericValue: &numeric}, "37.5"},
		{"all empty", domain.RawObservation{}, ""},
	}

	classifier := NewClassifier()

	for _, tc := range testCases {
		if got := classifier.Categorize(tc.obs).NormalizedValue; got != tc.expectedValue {
			t.Errorf("%s: got %q, expected %q", tc.name, got, tc.expectedValue)
		}
	}
}

func TestCustomRules(t *testing.T) {

	classifier := NewClassifierWithRules([]Rule{
		{Keywords: []string{"triage"}, RecordType: domain.RecordTypeVisit},
	})

	assert.Equal(t, classifier.Categorize(domain.RawObservation{ConceptLabel: "Triage station"}).RecordType, domain.RecordTypeVisit)

	// Default rules no longer apply when a custom table is supplied.
	assert.Equal(t, classifier.Categorize(domain.RawObservation{ConceptLabel: "LAB RESULT"}).RecordType, domain.RecordTypeCondition)
}
