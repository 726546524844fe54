package ports

import (
	"context"
	"errors"

	"orcabus-run-manager/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookup methods when no matching row exists.
// Repository implementations translate their driver's sentinel to this one.
var ErrNotFound = errors.New("record not found")

// RunRepository represents the entity store for runs and their satellites.
type RunRepository interface {
	// Transaction runs fn against a repository bound to one database
	// transaction. All writes inside fn commit or roll back together.
	Transaction(ctx context.Context, fn func(RunRepository) error) error

	// Workflow identity is (name, version); created on first sight.
	GetWorkflow(ctx context.Context, name, version string) (*domain.Workflow, error)
	CreateWorkflow(ctx context.Context, workflow *domain.Workflow) error

	// GetRunForUpdate locks the run row (SELECT ... FOR UPDATE) so that the
	// subsequent latest-state check and insert cannot race a concurrent
	// delivery for the same portal run id.
	GetRunForUpdate(ctx context.Context, portalRunID string) (*domain.WorkflowRun, error)
	GetRun(ctx context.Context, portalRunID string) (*domain.WorkflowRun, error)
	CreateRun(ctx context.Context, run *domain.WorkflowRun) error

	GetLibrary(ctx context.Context, orcabusID string) (*domain.Library, error)
	CreateLibrary(ctx context.Context, library *domain.Library) error
	CreateLibraryAssociation(ctx context.Context, assoc *domain.LibraryAssociation) error
	ListLibraryAssociations(ctx context.Context, runID uuid.UUID) ([]domain.LibraryAssociation, error)

	// ListStates returns the run's full status history ordered by timestamp.
	ListStates(ctx context.Context, runID uuid.UUID) ([]domain.State, error)
	// SavePayload must be called before SaveState for a state that carries a
	// payload (FK ordering).
	SavePayload(ctx context.Context, payload *domain.Payload) error
	SaveState(ctx context.Context, state *domain.State) error

	// FindSiblingRuns lists other runs of the same workflow that share at
	// least one of the given libraries (rerun duplication check).
	FindSiblingRuns(ctx context.Context, workflowID uuid.UUID, orcabusIDs []string, excludeRunID uuid.UUID) ([]domain.WorkflowRun, error)
}

// EventBus represents the pub/sub transport for run-state-change events.
type EventBus interface {
	// PublishRunStateChange broadcasts a canonical outbound event.
	PublishRunStateChange(ctx context.Context, kind domain.RunKind, ev *domain.RunStateChange) error

	// SubscribeToInbound opens a continuous stream of raw inbound events for
	// one run kind. Raw bytes, so malformed events can be dead-lettered.
	SubscribeToInbound(ctx context.Context, kind domain.RunKind) (<-chan []byte, error)
}

// DeadLetterQueue holds inbound events that failed deserialization.
type DeadLetterQueue interface {
	Push(ctx context.Context, raw []byte) error
}
