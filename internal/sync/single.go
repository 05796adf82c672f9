package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/carelink/emr-connector/internal/cursor"
	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
)

// SingleHospitalOrchestrator polls one hospital's source database directly.
// Used for deployments where a connector process runs next to each source.
type SingleHospitalOrchestrator struct {
	core       *syncCore
	registry   SourceRegistry
	hospitalID domain.HospitalID
	events     *EventPublisher
}

func NewSingleHospitalOrchestrator(registry SourceRegistry, hospitalID domain.HospitalID, cursors cursor.Store, pipeline *Pipeline, events *EventPublisher, batchSize int, interval time.Duration) *SingleHospitalOrchestrator {
	return &SingleHospitalOrchestrator{
		core:       newSyncCore(cursors, pipeline, cursor.SingleVariant, batchSize, interval),
		registry:   registry,
		hospitalID: hospitalID,
		events:     events,
	}
}

func (so *SingleHospitalOrchestrator) Run(stop <-chan struct{}) {
	so.core.runLoop(stop, so.syncCycle)
}

func (so *SingleHospitalOrchestrator) syncCycle(ctx context.Context) {
	written, err := so.syncHospital(ctx)
	if err != nil {
		logger.LogErrorWithHospitalID("Hospital sync failed.  Skipping until next cycle.", err, so.hospitalID)
		so.core.metrics.hospitalFailureCounter.With(prometheus.Labels{"hospital_id": so.hospitalID.String()}).Inc()
		return
	}

	so.events.PublishCycleCompleted(ctx, string(cursor.SingleVariant), written)
}

func (so *SingleHospitalOrchestrator) syncHospital(ctx context.Context) (int, error) {

	obsFetcher, reader, err := so.registry.OpenSource(so.hospitalID)
	if err != nil {
		return 0, err
	}

	return so.core.syncHospital(ctx, so.hospitalID, obsFetcher, reader)
}

func (so *SingleHospitalOrchestrator) SyncNow(hospitalID domain.HospitalID) SyncResult {

	if hospitalID != "" && hospitalID != so.hospitalID {
		return SyncResult{Success: false, Message: fmt.Sprintf("this orchestrator only syncs hospital %s", so.hospitalID)}
	}

	if !so.core.tryStart() {
		return SyncResult{Success: false, Message: "a sync cycle is already running"}
	}
	defer so.core.finish()

	written, err := so.syncHospital(context.Background())
	if err != nil {
		return SyncResult{Success: false, Count: written, Message: err.Error()}
	}

	return SyncResult{Success: true, Count: written, Message: fmt.Sprintf("synced hospital %s", so.hospitalID)}
}

func (so *SingleHospitalOrchestrator) Status() Status {
	return so.core.status(context.Background())
}
