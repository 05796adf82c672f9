package accesswindow

import (
	"context"
	"time"

	"github.com/carelink/emr-connector/internal/domain"
)

// Default windows observed in the source deployments.  Tunable per
// deployment through config; the boundary semantics are fixed.
const (
	DefaultFreshWindow     = 2 * time.Hour
	DefaultEditGraceWindow = 3 * time.Hour
)

type State int

const (
	StateLegacy State = iota
	StateFresh
	StateAging
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateLegacy:
		return "legacy"
	case StateFresh:
		return "fresh"
	case StateAging:
		return "aging"
	default:
		return "locked"
	}
}

// Evaluation is the computed access-window state of a record at a fixed
// point in time.
type Evaluation struct {
	State            State
	Editable         bool
	MedicationStatus domain.MedicationStatus
	HoursSinceSync   float64
}

// EditInfo is the edit-gate answer consumed by the surrounding CRUD layer
// before permitting a mutation.
type EditInfo struct {
	CanEdit          bool
	HoursSinceSync   float64
	MedicationStatus domain.MedicationStatus
	Reason           string
}

// RecordStatusUpdater is the slice of the record store the reconciliation
// step needs.
type RecordStatusUpdater interface {
	UpdateMedicationStatus(ctx context.Context, ref string, status domain.MedicationStatus) error
}

// Evaluator computes editability and medication status as a pure function
// of a record and "now".  No wall clock is read here; callers inject it, so
// the state machine is fully unit-testable.
type Evaluator struct {
	FreshWindow     time.Duration
	EditGraceWindow time.Duration
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		FreshWindow:     DefaultFreshWindow,
		EditGraceWindow: DefaultEditGraceWindow,
	}
}

func NewEvaluatorWithWindows(freshWindow, editGraceWindow time.Duration) *Evaluator {
	return &Evaluator{
		FreshWindow:     freshWindow,
		EditGraceWindow: editGraceWindow,
	}
}

func (e *Evaluator) state(record *domain.SyncedRecord, now time.Time) (State, time.Duration) {
	if !record.IsSynced() {
		return StateLegacy, 0
	}

	elapsed := now.Sub(*record.ArrivalTimestamp)

	switch {
	case elapsed < e.FreshWindow:
		return StateFresh, elapsed
	case elapsed > e.EditGraceWindow:
		return StateLocked, elapsed
	default:
		return StateAging, elapsed
	}
}

// Evaluate computes the full access-window state.  Legacy records (no
// arrival timestamp) are always editable and keep their stored medication
// status; that state is terminal.
func (e *Evaluator) Evaluate(record *domain.SyncedRecord, now time.Time) Evaluation {

	state, elapsed := e.state(record, now)

	evaluation := Evaluation{
		State:            state,
		Editable:         state != StateLocked,
		MedicationStatus: record.MedicationStatus,
		HoursSinceSync:   elapsed.Hours(),
	}

	if record.RecordType == domain.RecordTypeMedication {
		switch state {
		case StateFresh:
			evaluation.MedicationStatus = domain.MedicationStatusActive
		case StateAging, StateLocked:
			evaluation.MedicationStatus = domain.MedicationStatusPast
		}
	}

	return evaluation
}

// CanEdit evaluates edit permission for one actor: legacy and fresh records
// are editable by anyone, locked records by nobody, and aging records only
// by the original author or an actor listed in EditableBy.
func (e *Evaluator) CanEdit(record *domain.SyncedRecord, actor domain.ActorRef, now time.Time) bool {

	state, _ := e.state(record, now)

	switch state {
	case StateLegacy, StateFresh:
		return true
	case StateLocked:
		return false
	}

	if actor == record.CreatedByRef {
		return true
	}

	for _, ref := range record.EditableBy {
		if ref == actor {
			return true
		}
	}

	return false
}

// GetEditInfo bundles the edit-gate answer for the surrounding CRUD layer.
func (e *Evaluator) GetEditInfo(record *domain.SyncedRecord, actor domain.ActorRef, now time.Time) EditInfo {

	evaluation := e.Evaluate(record, now)
	canEdit := e.CanEdit(record, actor, now)

	var reason string
	switch evaluation.State {
	case StateLegacy:
		reason = "record predates sync; no access window applies"
	case StateFresh:
		reason = "record is inside the fresh window"
	case StateAging:
		if canEdit {
			reason = "record is aging; actor is the author or explicitly allowed"
		} else {
			reason = "record is aging; only the author or explicitly allowed actors may edit"
		}
	default:
		reason = "record is locked; the edit window has closed"
	}

	return EditInfo{
		CanEdit:          canEdit,
		HoursSinceSync:   evaluation.HoursSinceSync,
		MedicationStatus: evaluation.MedicationStatus,
		Reason:           reason,
	}
}

// ReconcileMedicationStatus persists a status flip when the computed status
// differs from the stored one.  Invoked opportunistically (typically on
// read) so "Active"/"Past" stays eventually consistent without a background
// timer.  Returns the effective status and whether a flip was persisted.
func (e *Evaluator) ReconcileMedicationStatus(ctx context.Context, store RecordStatusUpdater, record *domain.SyncedRecord, now time.Time) (domain.MedicationStatus, bool, error) {

	if record.RecordType != domain.RecordTypeMedication || !record.IsSynced() {
		return record.MedicationStatus, false, nil
	}

	computed := e.Evaluate(record, now).MedicationStatus
	if computed == record.MedicationStatus {
		return computed, false, nil
	}

	if err := store.UpdateMedicationStatus(ctx, record.Ref, computed); err != nil {
		return record.MedicationStatus, false, err
	}

	record.MedicationStatus = computed
	return computed, true, nil
}
