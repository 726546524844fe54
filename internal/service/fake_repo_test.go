package service

import (
	"context"

	"orcabus-run-manager/internal/core/ports"
	"orcabus-run-manager/internal/domain"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory RunRepository for exercising the reconciliation
// and transition logic without a database.
type fakeRepo struct {
	workflows    []*domain.Workflow
	runs         []*domain.WorkflowRun
	libraries    map[string]*domain.Library
	associations []*domain.LibraryAssociation
	states       map[uuid.UUID][]domain.State
	payloads     []*domain.Payload
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		libraries: make(map[string]*domain.Library),
		states:    make(map[uuid.UUID][]domain.State),
	}
}

func (f *fakeRepo) Transaction(ctx context.Context, fn func(ports.RunRepository) error) error {
	// No rollback semantics; good enough for the accept/reject paths under test
	return fn(f)
}

func (f *fakeRepo) GetWorkflow(ctx context.Context, name, version string) (*domain.Workflow, error) {
	for _, w := range f.workflows {
		if w.WorkflowName == name && w.WorkflowVersion == version {
			return w, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (f *fakeRepo) CreateWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	f.workflows = append(f.workflows, workflow)
	return nil
}

func (f *fakeRepo) GetRunForUpdate(ctx context.Context, portalRunID string) (*domain.WorkflowRun, error) {
	return f.GetRun(ctx, portalRunID)
}

func (f *fakeRepo) GetRun(ctx context.Context, portalRunID string) (*domain.WorkflowRun, error) {
	for _, r := range f.runs {
		if r.PortalRunID == portalRunID {
			return r, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (f *fakeRepo) CreateRun(ctx context.Context, run *domain.WorkflowRun) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRepo) GetLibrary(ctx context.Context, orcabusID string) (*domain.Library, error) {
	if lib, ok := f.libraries[orcabusID]; ok {
		return lib, nil
	}
	return nil, ports.ErrNotFound
}

func (f *fakeRepo) CreateLibrary(ctx context.Context, library *domain.Library) error {
	f.libraries[library.OrcabusID] = library
	return nil
}

func (f *fakeRepo) CreateLibraryAssociation(ctx context.Context, assoc *domain.LibraryAssociation) error {
	f.associations = append(f.associations, assoc)
	return nil
}

func (f *fakeRepo) ListLibraryAssociations(ctx context.Context, runID uuid.UUID) ([]domain.LibraryAssociation, error) {
	var out []domain.LibraryAssociation
	for _, a := range f.associations {
		if a.WorkflowRunID == runID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListStates(ctx context.Context, runID uuid.UUID) ([]domain.State, error) {
	return f.states[runID], nil
}

func (f *fakeRepo) SavePayload(ctx context.Context, payload *domain.Payload) error {
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeRepo) SaveState(ctx context.Context, state *domain.State) error {
	f.states[state.WorkflowRunID] = append(f.states[state.WorkflowRunID], *state)
	return nil
}

func (f *fakeRepo) FindSiblingRuns(ctx context.Context, workflowID uuid.UUID, orcabusIDs []string, excludeRunID uuid.UUID) ([]domain.WorkflowRun, error) {
	shared := make(map[string]bool, len(orcabusIDs))
	for _, id := range orcabusIDs {
		shared[id] = true
	}
	var out []domain.WorkflowRun
	for _, r := range f.runs {
		if r.WorkflowID != workflowID || r.ID == excludeRunID {
			continue
		}
		for _, a := range f.associations {
			if a.WorkflowRunID == r.ID && shared[a.LibraryOrcabusID] {
				out = append(out, *r)
				break
			}
		}
	}
	return out, nil
}
