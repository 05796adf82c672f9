package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/carelink/emr-connector/internal/cursor"
	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/fetcher"
	"github.com/carelink/emr-connector/internal/platform/logger"
	"github.com/carelink/emr-connector/internal/sources"

	"github.com/prometheus/client_golang/prometheus"
)

// SourceRegistry is the orchestrator's view of the connection registry: the
// set of enabled hospitals and a way to open observation access to each one.
type SourceRegistry interface {
	HospitalIDs() []domain.HospitalID
	OpenSource(hospitalID domain.HospitalID) (fetcher.ObservationFetcher, fetcher.PersonReader, error)
}

// SqlSourceRegistry adapts the pooled connection registry, building SQL
// fetchers over each hospital's pool.
type SqlSourceRegistry struct {
	registry *sources.Registry
}

func NewSqlSourceRegistry(registry *sources.Registry) *SqlSourceRegistry {
	return &SqlSourceRegistry{registry: registry}
}

func (ssr *SqlSourceRegistry) HospitalIDs() []domain.HospitalID {
	return ssr.registry.HospitalIDs()
}

func (ssr *SqlSourceRegistry) OpenSource(hospitalID domain.HospitalID) (fetcher.ObservationFetcher, fetcher.PersonReader, error) {
	conn, err := ssr.registry.GetConnection(hospitalID)
	if err != nil {
		return nil, nil, err
	}

	driver := ssr.registry.Driver(hospitalID)
	return fetcher.NewSqlObservationFetcher(conn, driver), fetcher.NewSqlPersonReader(conn, driver), nil
}

// PooledOrchestrator polls every enabled hospital in the connection
// registry each cycle.  Hospitals are processed independently: a failure
// for one is logged and skipped, and the rest of the cycle proceeds.
type PooledOrchestrator struct {
	core     *syncCore
	registry SourceRegistry
	events   *EventPublisher
}

func NewPooledOrchestrator(registry SourceRegistry, cursors cursor.Store, pipeline *Pipeline, events *EventPublisher, batchSize int, interval time.Duration) *PooledOrchestrator {
	return &PooledOrchestrator{
		core:     newSyncCore(cursors, pipeline, cursor.PooledVariant, batchSize, interval),
		registry: registry,
		events:   events,
	}
}

func (po *PooledOrchestrator) Run(stop <-chan struct{}) {
	po.core.runLoop(stop, po.syncCycle)
}

func (po *PooledOrchestrator) syncCycle(ctx context.Context) {
	totalWritten := 0

	for _, hospitalID := range po.registry.HospitalIDs() {
		written, err := po.syncOneHospital(ctx, hospitalID)
		if err != nil {
			logger.LogErrorWithHospitalID("Hospital sync failed.  Skipping until next cycle.", err, hospitalID)
			po.core.metrics.hospitalFailureCounter.With(prometheus.Labels{"hospital_id": hospitalID.String()}).Inc()
			continue
		}
		totalWritten += written
	}

	po.events.PublishCycleCompleted(ctx, string(cursor.PooledVariant), totalWritten)
}

func (po *PooledOrchestrator) syncOneHospital(ctx context.Context, hospitalID domain.HospitalID) (int, error) {

	obsFetcher, reader, err := po.registry.OpenSource(hospitalID)
	if err != nil {
		return 0, err
	}

	return po.core.syncHospital(ctx, hospitalID, obsFetcher, reader)
}

// SyncNow runs one cycle immediately, bypassing the timer.  With a hospital
// id it syncs just that hospital; without one it syncs every enabled
// hospital.
func (po *PooledOrchestrator) SyncNow(hospitalID domain.HospitalID) SyncResult {

	if !po.core.tryStart() {
		return SyncResult{Success: false, Message: "a sync cycle is already running"}
	}
	defer po.core.finish()

	ctx := context.Background()

	if hospitalID != "" {
		written, err := po.syncOneHospital(ctx, hospitalID)
		if err != nil {
			return SyncResult{Success: false, Count: written, Message: err.Error()}
		}
		return SyncResult{Success: true, Count: written, Message: fmt.Sprintf("synced hospital %s", hospitalID)}
	}

	totalWritten := 0
	failures := 0
	for _, id := range po.registry.HospitalIDs() {
		written, err := po.syncOneHospital(ctx, id)
		if err != nil {
			logger.LogErrorWithHospitalID("Hospital sync failed during manual trigger", err, id)
			failures++
			continue
		}
		totalWritten += written
	}

	return SyncResult{
		Success: failures == 0,
		Count:   totalWritten,
		Message: fmt.Sprintf("synced %d hospitals (%d failed)", len(po.registry.HospitalIDs())-failures, failures),
	}
}

func (po *PooledOrchestrator) Status() Status {
	return po.core.status(context.Background())
}
