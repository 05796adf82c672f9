package records

import (
	"context"
	"errors"

	"github.com/carelink/emr-connector/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DedupGuard decides whether an incoming observation has already been
// persisted.  It is the correctness boundary for the at-least-once delivery
// upstream of it: replayed batches and re-ingested source edits both land
// here and are skipped.
type DedupGuard struct {
	records RecordStore
	metrics *dedupGuardMetrics
}

type dedupGuardMetrics struct {
	duplicateObservationCounter *prometheus.CounterVec
}

var sharedDedupGuardMetrics *dedupGuardMetrics

func init() {
	sharedDedupGuardMetrics = new(dedupGuardMetrics)

	sharedDedupGuardMetrics.duplicateObservationCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emr_connector_duplicate_observation_count",
		Help: "The number of observations skipped as duplicates",
	}, []string{"tier"})
}

func NewDedupGuard(records RecordStore) *DedupGuard {
	return &DedupGuard{
		records: records,
		metrics: sharedDedupGuardMetrics,
	}
}

// IsDuplicate runs the two-tier check: an exact (hospital, source obs id)
// match always wins; otherwise the type-specific natural key defends against
// re-ingestion of the same clinical fact under a different observation id.
// Absent natural-key fields are not matched against.
func (dg *DedupGuard) IsDuplicate(ctx context.Context, hospitalID domain.HospitalID, patientRef string, obs domain.ClassifiedObservation) (bool, error) {

	_, err := dg.records.FindBySourceObsID(ctx, hospitalID, obs.SourceObsID)
	if err == nil {
		dg.metrics.duplicateObservationCounter.With(prometheus.Labels{"tier": "exact"}).Inc()
		return true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	name := NaturalKeyName(obs)
	if name == "" && obs.RecordType != domain.RecordTypeVisit {
		return false, nil
	}

	_, err = dg.records.FindByNaturalKey(ctx, patientRef, obs.RecordType, name, obs.ObservedAt)
	if err == nil {
		dg.metrics.duplicateObservationCounter.With(prometheus.Labels{"tier": "heuristic"}).Inc()
		return true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	return false, nil
}

// NaturalKeyName returns the type-specific name component of the dedup
// natural key.  Visits key on the date alone.
func NaturalKeyName(obs domain.ClassifiedObservation) string {
	switch obs.RecordType {
	case domain.RecordTypeCondition:
		return obs.ConceptLabel
	case domain.RecordTypeMedication:
		return obs.NormalizedValue
	case domain.RecordTypeTest:
		return obs.ConceptLabel
	default:
		return ""
	}
}
