package sync

import (
	"github.com/carelink/emr-connector/internal/domain"
)

// SyncResult is the answer to a manual sync trigger.
type SyncResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// Status is the health/observability snapshot for the status query.
type Status struct {
	IsRunning            bool                        `json:"is_running"`
	LastSyncedMarkers    map[domain.HospitalID]int64 `json:"last_synced_markers"`
	ConfiguredIntervalMs int64                       `json:"configured_interval_ms"`
}

// Orchestrator drives the fetch/resolve/classify/dedup/write pipeline on a
// timer and exposes the operator-facing entry points.
type Orchestrator interface {
	Run(stop <-chan struct{})
	SyncNow(hospitalID domain.HospitalID) SyncResult
	Status() Status
}
