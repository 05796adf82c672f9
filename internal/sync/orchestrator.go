package sync

import (
	"context"
	"sync"
	"time"

	"github.com/carelink/emr-connector/internal/cursor"
	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/fetcher"
	"github.com/carelink/emr-connector/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// syncCore carries the state shared by every orchestrator variant: the
// cursor store, the pipeline, the batch size and the single-flight guard.
// The guard is authoritative: a tick that arrives while a cycle is still
// running is dropped, never queued.
type syncCore struct {
	cursors   cursor.Store
	pipeline  *Pipeline
	variant   cursor.Variant
	batchSize int
	interval  time.Duration
	metrics   *orchestratorMetrics

	mutex   sync.Mutex
	running bool
}

func newSyncCore(cursors cursor.Store, pipeline *Pipeline, variant cursor.Variant, batchSize int, interval time.Duration) *syncCore {
	return &syncCore{
		cursors:   cursors,
		pipeline:  pipeline,
		variant:   variant,
		batchSize: batchSize,
		interval:  interval,
		metrics:   initializeOrchestratorMetrics(string(variant)),
	}
}

func (c *syncCore) tryStart() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.running {
		return false
	}
	c.running = true
	return true
}

func (c *syncCore) finish() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.running = false
}

func (c *syncCore) isRunning() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.running
}

// syncHospital runs one bounded batch for one hospital.  Failures inside
// the batch are observation-scoped; the cursor advances to the last
// observation processed before the first persistence failure, which the
// ascending batch order makes safe.
func (c *syncCore) syncHospital(ctx context.Context, hospitalID domain.HospitalID, obsFetcher fetcher.ObservationFetcher, reader fetcher.PersonReader) (int, error) {

	hospitalLabel := prometheus.Labels{"hospital_id": hospitalID.String()}

	marker, err := c.cursors.Get(ctx, hospitalID, c.variant)
	if err != nil {
		return 0, err
	}

	batch, err := obsFetcher.FetchBatch(ctx, marker, c.batchSize)
	if err != nil {
		return 0, err
	}

	c.metrics.observationsFetchedCounter.With(hospitalLabel).Add(float64(len(batch)))

	if len(batch) == 0 {
		return 0, nil
	}

	written := 0
	advanceTo := marker
	failed := false

	for _, obs := range batch {
		outcome, err := c.pipeline.Process(ctx, hospitalID, reader, obs)

		switch outcome {
		case OutcomeWritten:
			written++
			c.metrics.recordsWrittenCounter.With(hospitalLabel).Inc()
		case OutcomeDuplicate:
			c.metrics.observationsSkippedCounter.With(prometheus.Labels{
				"hospital_id": hospitalID.String(), "reason": "duplicate"}).Inc()
		case OutcomeSkipped:
			c.metrics.observationsSkippedCounter.With(prometheus.Labels{
				"hospital_id": hospitalID.String(), "reason": "person_not_found"}).Inc()
		case OutcomeFailed:
			logger.LogErrorWithObservation("Failed to process observation.  Continuing batch.", err, hospitalID, obs.SourceObsID)
			c.metrics.observationsFailedCounter.With(hospitalLabel).Inc()
			failed = true
		}

		if !failed && obs.SourceObsID > advanceTo {
			advanceTo = obs.SourceObsID
		}
	}

	if advanceTo > marker {
		if err := c.cursors.Advance(ctx, hospitalID, c.variant, advanceTo); err != nil {
			return written, err
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"hospital_id": hospitalID,
		"variant":     c.variant,
		"fetched":     len(batch),
		"written":     written,
		"marker":      advanceTo}).Info("Hospital sync complete")

	return written, nil
}

func (c *syncCore) status(ctx context.Context) Status {
	markers, err := c.cursors.All(ctx, c.variant)
	if err != nil {
		logger.LogError("Unable to read sync cursors for status", err)
		markers = map[domain.HospitalID]int64{}
	}

	return Status{
		IsRunning:            c.isRunning(),
		LastSyncedMarkers:    markers,
		ConfiguredIntervalMs: c.interval.Milliseconds(),
	}
}

// runLoop drives cycles off a recurring ticker until the stop channel
// closes.  Cycles run in their own goroutine so an overrunning cycle drops
// the next tick instead of queueing it.
func (c *syncCore) runLoop(stop <-chan struct{}, cycle func(ctx context.Context)) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			logger.Log.Info("Stopping ", c.variant, " sync orchestrator")
			return
		case <-ticker.C:
			if !c.tryStart() {
				c.metrics.droppedTickCounter.Inc()
				logger.Log.Debug("Previous sync cycle still running.  Dropping tick.")
				continue
			}

			go func() {
				defer c.finish()

				callDurationTimer := prometheus.NewTimer(c.metrics.syncCycleDuration)
				defer callDurationTimer.ObserveDuration()

				cycle(context.Background())
			}()
		}
	}
}
