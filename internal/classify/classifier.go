package classify

import (
	"strconv"
	"strings"

	"github.com/carelink/emr-connector/internal/domain"
)

// Rule maps a keyword set to a record type.  Rules are evaluated in order
// and the first rule with a keyword found in the concept label wins, so new
// deployments can extend the table without touching control flow.
type Rule struct {
	Keywords   []string
	RecordType domain.RecordType
}

// DefaultRules are the keyword sets observed in the source schema.  An
// observation matching none of them defaults to a condition record with the
// concept label as the diagnosis name.
var DefaultRules = []Rule{
	{
		Keywords:   []string{"visit", "encounter", "admission", "admitted", "appointment", "discharge"},
		RecordType: domain.RecordTypeVisit,
	},
	{
		Keywords:   []string{"lab", "test", "investigation", "result", "specimen", "culture", "x-ray", "scan"},
		RecordType: domain.RecordTypeTest,
	},
	{
		Keywords:   []string{"medication", "drug", "prescription", "dose", "regimen", "dispensed"},
		RecordType: domain.RecordTypeMedication,
	},
}

type Classifier struct {
	rules []Rule
}

func NewClassifier() *Classifier {
	return &Classifier{rules: DefaultRules}
}

func NewClassifierWithRules(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Categorize assigns a record type and a normalized value to a raw
// observation.  The normalized value prefers the coded value, then the text
// value, then the numeric value.
//
// The source schema records the diagnosis as the observation's concept
// (the question) and the treatment as its value (the answer).  Condition
// records preserve that inversion: the concept label is the diagnosis name
// and the value becomes the treatment/detail text.
func (c *Classifier) Categorize(obs domain.RawObservation) domain.ClassifiedObservation {

	classified := domain.ClassifiedObservation{
		RawObservation:  obs,
		RecordType:      domain.RecordTypeCondition,
		NormalizedValue: normalizeValue(obs),
	}

	label := strings.ToLower(obs.ConceptLabel)

	for _, rule := range c.rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(label, keyword) {
				classified.RecordType = rule.RecordType
				return classified
			}
		}
	}

	return classified
}

func normalizeValue(obs domain.RawObservation) string {
	if obs.CodedValue != "" {
		return obs.CodedValue
	}
	if obs.TextValue != "" {
		return obs.TextValue
	}
	if obs.NumericValue != nil {
		return strconv.FormatFloat(*obs.NumericValue, 'f', -1, 64)
	}
	return ""
}
