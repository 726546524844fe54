package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"orcabus-run-manager/internal/core/ports"
	"orcabus-run-manager/internal/domain"
	"orcabus-run-manager/internal/metrics"
)

var (
	// ErrUnknownWorkflow is returned in strict mode when an event references
	// a (name, version) pair that was never registered.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrUnknownLibrary is returned in strict mode when a linked library is
	// not known locally.
	ErrUnknownLibrary = errors.New("unknown library")

	// ErrLibraryMismatch is returned when a linked library references a known
	// orcabus id with a conflicting library id. Reconciliation fails closed
	// rather than overwriting the identity.
	ErrLibraryMismatch = errors.New("library id mismatch")
)

// ReconcilePolicy selects between on-the-fly entity creation (the current
// production behaviour) and failing closed on unknown identities.
type ReconcilePolicy struct {
	StrictWorkflows bool
	StrictLibraries bool
}

// Reconciler ingests run-state-change events: it finds-or-creates the
// Workflow and WorkflowRun the event refers to, links libraries exactly once
// (at run creation), and delegates the proposed state to the transition
// policy. Everything runs inside one database transaction.
type Reconciler struct {
	repo   ports.RunRepository
	policy ReconcilePolicy
}

func NewReconciler(repo ports.RunRepository, policy ReconcilePolicy) *Reconciler {
	return &Reconciler{repo: repo, policy: policy}
}

// Reconcile applies one inbound event. It returns the canonical outbound
// event when a new state was persisted, or (nil, nil) when the transition
// policy dropped the event — an expected outcome, not a failure.
func (s *Reconciler) Reconcile(ctx context.Context, kind domain.RunKind, ev *domain.RunStateChange) (*domain.RunStateChange, error) {
	var out *domain.RunStateChange

	err := s.repo.Transaction(ctx, func(tx ports.RunRepository) error {
		workflow, err := s.findOrCreateWorkflow(ctx, tx, ev)
		if err != nil {
			return err
		}

		run, created, err := s.findOrCreateRun(ctx, tx, workflow, kind, ev)
		if err != nil {
			return err
		}

		states, err := tx.ListStates(ctx, run.ID)
		if err != nil {
			return err
		}

		newState := domain.NewState(ev.Status, ev.Timestamp)
		if ev.Payload != nil {
			newState.Payload = domain.NewPayload(ev.Payload.Version, ev.Payload.Data)
		}

		ok, err := NewRunTransitioner(tx).TransitionTo(ctx, run, states, newState)
		if err != nil {
			return err
		}
		if !ok {
			// Non-advancing event: commit whatever find-or-create did, emit nothing
			return nil
		}

		if created {
			metrics.RunsCreated.WithLabelValues(string(kind)).Inc()
		}
		out = mapOutboundEvent(ev, newState)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Reconciler) findOrCreateWorkflow(ctx context.Context, tx ports.RunRepository, ev *domain.RunStateChange) (*domain.Workflow, error) {
	workflow, err := tx.GetWorkflow(ctx, ev.WorkflowName, ev.WorkflowVersion)
	if err == nil {
		return workflow, nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return nil, err
	}
	if s.policy.StrictWorkflows {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownWorkflow, ev.WorkflowName, ev.WorkflowVersion)
	}

	log.Printf("No Workflow record found for %s/%s, creating new entry", ev.WorkflowName, ev.WorkflowVersion)
	workflow = domain.NewWorkflow(ev.WorkflowName, ev.WorkflowVersion)
	if err := tx.CreateWorkflow(ctx, workflow); err != nil {
		return nil, err
	}
	return workflow, nil
}

func (s *Reconciler) findOrCreateRun(ctx context.Context, tx ports.RunRepository, workflow *domain.Workflow, kind domain.RunKind, ev *domain.RunStateChange) (*domain.WorkflowRun, bool, error) {
	run, err := tx.GetRunForUpdate(ctx, ev.PortalRunID)
	if err == nil {
		return run, false, nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return nil, false, err
	}

	log.Printf("No run record found for %s, creating new entry", ev.PortalRunID)
	run = domain.NewWorkflowRun(workflow, kind, ev.PortalRunID, ev.ExecutionID, ev.WorkflowRunName)
	if ev.AnalysisRunID != "" {
		analysisRunID := ev.AnalysisRunID
		run.AnalysisRunID = &analysisRunID
	}
	if err := tx.CreateRun(ctx, run); err != nil {
		return nil, false, err
	}

	// Library linking is established at run creation time only; later events
	// for the same portal run id never re-link.
	for _, rec := range ev.LinkedLibraries {
		if err := s.linkLibrary(ctx, tx, run, rec); err != nil {
			return nil, false, err
		}
	}
	return run, true, nil
}

func (s *Reconciler) linkLibrary(ctx context.Context, tx ports.RunRepository, run *domain.WorkflowRun, rec domain.LibraryRecord) error {
	orcaID := sanitizeOrcabusID(rec.OrcabusID)

	library, err := tx.GetLibrary(ctx, orcaID)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		// Library records are synced from the metadata service; until that
		// sync is in place, create a record on demand.
		if s.policy.StrictLibraries {
			return fmt.Errorf("%w: %s", ErrUnknownLibrary, orcaID)
		}
		library = &domain.Library{OrcabusID: orcaID, LibraryID: rec.LibraryID}
		if err := tx.CreateLibrary(ctx, library); err != nil {
			return err
		}
	case err != nil:
		return err
	case library.LibraryID != rec.LibraryID:
		return fmt.Errorf("%w: %s is %s locally, event says %s", ErrLibraryMismatch, orcaID, library.LibraryID, rec.LibraryID)
	}

	return tx.CreateLibraryAssociation(ctx, domain.NewLibraryAssociation(run, library))
}

// sanitizeOrcabusID strips any prefix, keeping the 26-char ULID tail used
// for lookups.
func sanitizeOrcabusID(orcabusID string) string {
	if len(orcabusID) > 26 {
		return orcabusID[len(orcabusID)-26:]
	}
	return orcabusID
}

// mapOutboundEvent maps the inbound event plus the just-persisted state back
// to the canonical outbound shape. Pure function of its inputs; the payload
// ref id replaces the inbound placeholder.
func mapOutboundEvent(in *domain.RunStateChange, newState *domain.State) *domain.RunStateChange {
	out := &domain.RunStateChange{
		PortalRunID:     in.PortalRunID,
		Timestamp:       in.Timestamp,
		Status:          string(newState.Status), // ensure we follow conventions
		WorkflowName:    in.WorkflowName,
		WorkflowVersion: in.WorkflowVersion,
		WorkflowRunName: in.WorkflowRunName,
		ExecutionID:     in.ExecutionID,
		AnalysisRunID:   in.AnalysisRunID,
		LinkedLibraries: in.LinkedLibraries,
	}
	if newState.Payload != nil {
		out.Payload = &domain.PayloadDetail{
			RefID:   newState.Payload.PayloadRefID,
			Version: newState.Payload.Version,
			Data:    json.RawMessage(newState.Payload.Data),
		}
	}
	return out
}
