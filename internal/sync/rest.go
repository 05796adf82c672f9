package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/carelink/emr-connector/internal/cursor"
	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/fetcher"
	"github.com/carelink/emr-connector/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
)

// RestOrchestrator polls a single source hospital through its REST web
// service.  The REST client serves as both the observation fetcher and the
// person reader.
type RestOrchestrator struct {
	core       *syncCore
	client     *fetcher.RestClient
	hospitalID domain.HospitalID
	events     *EventPublisher
}

func NewRestOrchestrator(client *fetcher.RestClient, hospitalID domain.HospitalID, cursors cursor.Store, pipeline *Pipeline, events *EventPublisher, batchSize int, interval time.Duration) *RestOrchestrator {
	return &RestOrchestrator{
		core:       newSyncCore(cursors, pipeline, cursor.RestVariant, batchSize, interval),
		client:     client,
		hospitalID: hospitalID,
		events:     events,
	}
}

func (ro *RestOrchestrator) Run(stop <-chan struct{}) {
	ro.core.runLoop(stop, ro.syncCycle)
}

func (ro *RestOrchestrator) syncCycle(ctx context.Context) {
	written, err := ro.core.syncHospital(ctx, ro.hospitalID, ro.client, ro.client)
	if err != nil {
		logger.LogErrorWithHospitalID("Hospital sync failed.  Skipping until next cycle.", err, ro.hospitalID)
		ro.core.metrics.hospitalFailureCounter.With(prometheus.Labels{"hospital_id": ro.hospitalID.String()}).Inc()
		return
	}

	ro.events.PublishCycleCompleted(ctx, string(cursor.RestVariant), written)
}

func (ro *RestOrchestrator) SyncNow(hospitalID domain.HospitalID) SyncResult {

	if hospitalID != "" && hospitalID != ro.hospitalID {
		return SyncResult{Success: false, Message: fmt.Sprintf("this orchestrator only syncs hospital %s", ro.hospitalID)}
	}

	if !ro.core.tryStart() {
		return SyncResult{Success: false, Message: "a sync cycle is already running"}
	}
	defer ro.core.finish()

	written, err := ro.core.syncHospital(context.Background(), ro.hospitalID, ro.client, ro.client)
	if err != nil {
		return SyncResult{Success: false, Count: written, Message: err.Error()}
	}

	return SyncResult{Success: true, Count: written, Message: fmt.Sprintf("synced hospital %s", ro.hospitalID)}
}

func (ro *RestOrchestrator) Status() Status {
	return ro.core.status(context.Background())
}
