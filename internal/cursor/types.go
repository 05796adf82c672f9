package cursor

import (
	"context"

	"github.com/carelink/emr-connector/internal/domain"
)

// Variant scopes a cursor to the orchestrator that owns it.  Only one
// orchestrator variant may run against a physical hospital.
type Variant string

const (
	PooledVariant Variant = "pooled"
	SingleVariant Variant = "single"
	RestVariant   Variant = "rest"
)

// Store is the durable per-hospital sync watermark.  The marker is the
// highest source observation id known to be fully processed; it only ever
// moves forward, and only after the batch it describes has been durably
// written.
type Store interface {
	Get(ctx context.Context, hospitalID domain.HospitalID, variant Variant) (int64, error)
	Advance(ctx context.Context, hospitalID domain.HospitalID, variant Variant, marker int64) error
	All(ctx context.Context, variant Variant) (map[domain.HospitalID]int64, error)
}
