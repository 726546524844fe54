package service

import (
	"context"
	"log"
	"time"

	"orcabus-run-manager/internal/core/ports"
	"orcabus-run-manager/internal/domain"
	"orcabus-run-manager/internal/metrics"
)

// runningHeartbeatWindow throttles repeated RUNNING updates: a new RUNNING
// state is only persisted when its timestamp is at least this far past the
// current one.
const runningHeartbeatWindow = time.Hour

// RunTransitioner is the transition policy for one run's status history.
// TransitionTo decides whether a proposed new state may be persisted given
// the history; callers must hold the run's row lock for the duration.
type RunTransitioner struct {
	repo ports.RunRepository
}

func NewRunTransitioner(repo ports.RunRepository) *RunTransitioner {
	return &RunTransitioner{repo: repo}
}

// TransitionTo attempts to persist newState for the run. It returns false
// when the transition policy rejects the state; a rejection is a normal
// outcome, not an error. The error is non-nil only for persistence failures.
func (t *RunTransitioner) TransitionTo(ctx context.Context, run *domain.WorkflowRun, states []domain.State, newState *domain.State) (bool, error) {
	// Enforce status conventions on the new state
	newState.Status = domain.NormalizeStatus(string(newState.Status))

	// Absorb duplicate delivery of the same upstream event: an identical
	// (status, timestamp) pair is a no-op, never a second row.
	for i := range states {
		if states[i].Status == newState.Status && states[i].Timestamp.Equal(newState.Timestamp) {
			return t.reject(run, newState, "duplicate_delivery"), nil
		}
	}

	current := domain.LatestState(states)

	// A brand new run is expected to open with DRAFT. Some engines never
	// emit a DRAFT state, so a non-DRAFT first state is persisted anyway,
	// with a warning.
	if current == nil {
		if !newState.Status.IsDraft() {
			log.Printf("Run %s has no state yet, but new state is not DRAFT: %s", run.PortalRunID, newState.Status)
		}
		return true, t.persistState(ctx, run, newState)
	}

	// Ignore any state that's older than the current one
	if newState.Timestamp.Before(current.Timestamp) {
		return t.reject(run, newState, "stale"), nil
	}

	// Terminal states are absorbing, except the manual FAILED -> RESOLVED edge
	if current.Status.IsTerminal() {
		if current.Status == domain.StatusFailed && newState.Status == domain.StatusResolved {
			return true, t.persistState(ctx, run, newState)
		}
		log.Printf("Run %s in terminal state, can't transition to: %s", run.PortalRunID, newState.Status)
		return t.reject(run, newState, "terminal"), nil
	}

	// Allowed transitions from DRAFT
	if current.Status.IsDraft() {
		if newState.Status.IsDraft() || newState.Status.IsReady() {
			return true, t.persistState(ctx, run, newState)
		}
		return t.reject(run, newState, "from_draft"), nil
	}

	// Allowed transitions from READY
	if current.Status.IsReady() {
		if newState.Status.IsDraft() { // no going back
			return t.reject(run, newState, "regression"), nil
		}
		if newState.Status.IsReady() { // no updates to READY
			return t.reject(run, newState, "duplicate"), nil
		}
		// Transitions to any other status are allowed (pipelines may skip RUNNING)
		return true, t.persistState(ctx, run, newState)
	}

	// Allowed transitions from RUNNING
	if current.Status.IsRunning() {
		if newState.Status.IsDraft() || newState.Status.IsReady() { // no going back
			return t.reject(run, newState, "regression"), nil
		}
		if newState.Status.IsRunning() {
			// Only allow heartbeat updates every so often
			if newState.Timestamp.Sub(current.Timestamp) < runningHeartbeatWindow {
				return t.reject(run, newState, "heartbeat"), nil
			}
			return true, t.persistState(ctx, run, newState)
		}
	}

	// Don't allow updates/duplications of other states
	if domain.ContainsStatus(states, newState.Status) {
		return t.reject(run, newState, "duplicate"), nil
	}

	// Assume other state transitions are OK
	return true, t.persistState(ctx, run, newState)
}

func (t *RunTransitioner) reject(run *domain.WorkflowRun, newState *domain.State, reason string) bool {
	metrics.TransitionsRejected.WithLabelValues(reason).Inc()
	log.Printf("Run %s: dropping state %s@%s (%s)", run.PortalRunID, newState.Status, newState.Timestamp.Format(time.RFC3339), reason)
	return false
}

// persistState saves the state's payload first (FK ordering), then the state.
func (t *RunTransitioner) persistState(ctx context.Context, run *domain.WorkflowRun, newState *domain.State) error {
	newState.WorkflowRunID = run.ID
	if newState.Payload != nil {
		if err := t.repo.SavePayload(ctx, newState.Payload); err != nil {
			return err
		}
		newState.PayloadID = &newState.Payload.ID
	}
	if err := t.repo.SaveState(ctx, newState); err != nil {
		return err
	}
	metrics.TransitionsAccepted.WithLabelValues(string(newState.Status)).Inc()
	return nil
}
