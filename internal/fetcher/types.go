package fetcher

import (
	"context"
	"errors"

	"github.com/carelink/emr-connector/internal/domain"
)

// ErrPersonNotFound is returned when the source person record itself is
// missing.  Callers skip the current observation and keep going.
var ErrPersonNotFound = errors.New("source person record not found")

// ObservationFetcher pulls the next batch of observations strictly newer
// than the marker, ordered by source observation id ascending so that
// (marker, id) pairs are strictly increasing across calls.  An empty batch
// is a valid, non-error result.
type ObservationFetcher interface {
	FetchBatch(ctx context.Context, afterMarker int64, limit int) ([]domain.RawObservation, error)
}

// PersonReader looks up the demographic record behind an observation's
// source person reference.
type PersonReader interface {
	FindPerson(ctx context.Context, sourcePersonID int64) (*domain.SourcePerson, error)
}
