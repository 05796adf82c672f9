package sync

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type orchestratorMetrics struct {
	syncCycleDuration          prometheus.Histogram
	observationsFetchedCounter *prometheus.CounterVec
	recordsWrittenCounter      *prometheus.CounterVec
	observationsSkippedCounter *prometheus.CounterVec
	observationsFailedCounter  *prometheus.CounterVec
	hospitalFailureCounter     *prometheus.CounterVec
	droppedTickCounter         prometheus.Counter
}

var (
	orchestratorMetricsMutex     sync.Mutex
	orchestratorMetricsByVariant = make(map[string]*orchestratorMetrics)
)

// initializeOrchestratorMetrics registers the per-variant collectors once
// and hands the same set back on later calls.
func initializeOrchestratorMetrics(variant string) *orchestratorMetrics {
	orchestratorMetricsMutex.Lock()
	defer orchestratorMetricsMutex.Unlock()

	if metrics, ok := orchestratorMetricsByVariant[variant]; ok {
		return metrics
	}

	metrics := new(orchestratorMetrics)

	metrics.syncCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "emr_connector_" + variant + "_sync_cycle_duration",
		Help: "The amount of time it took to run one sync cycle",
	})

	metrics.observationsFetchedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emr_connector_" + variant + "_observations_fetched_count",
		Help: "The number of observations fetched from the source",
	}, []string{"hospital_id"})

	metrics.recordsWrittenCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emr_connector_" + variant + "_records_written_count",
		Help: "The number of synced records written to the destination store",
	}, []string{"hospital_id"})

	metrics.observationsSkippedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emr_connector_" + variant + "_observations_skipped_count",
		Help: "The number of observations skipped (missing person, duplicates)",
	}, []string{"hospital_id", "reason"})

	metrics.observationsFailedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emr_connector_" + variant + "_observations_failed_count",
		Help: "The number of observations that failed to persist",
	}, []string{"hospital_id"})

	metrics.hospitalFailureCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emr_connector_" + variant + "_hospital_failure_count",
		Help: "The number of sync cycles skipped for a hospital due to a connection or query failure",
	}, []string{"hospital_id"})

	metrics.droppedTickCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emr_connector_" + variant + "_dropped_tick_count",
		Help: "The number of timer ticks dropped because the previous cycle was still running",
	})

	orchestratorMetricsByVariant[variant] = metrics
	return metrics
}
