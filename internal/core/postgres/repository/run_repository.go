package repository

import (
	"context"
	"errors"

	"orcabus-run-manager/internal/core/ports"
	"orcabus-run-manager/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type runRepository struct {
	db *gorm.DB
}

// NewRunRepository creates the gorm-backed RunRepository.
func NewRunRepository(db *gorm.DB) ports.RunRepository {
	return &runRepository{db: db}
}

// AutoMigrate creates/updates the run manager tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Workflow{},
		&domain.WorkflowRun{},
		&domain.Library{},
		&domain.LibraryAssociation{},
		&domain.Payload{},
		&domain.State{},
	)
}

func (r *runRepository) Transaction(ctx context.Context, fn func(ports.RunRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&runRepository{db: tx})
	})
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ports.ErrNotFound
	}
	return err
}

func (r *runRepository) GetWorkflow(ctx context.Context, name, version string) (*domain.Workflow, error) {
	var workflow domain.Workflow
	err := r.db.WithContext(ctx).
		Where("workflow_name = ? AND workflow_version = ?", name, version).
		First(&workflow).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &workflow, nil
}

func (r *runRepository) CreateWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	return r.db.WithContext(ctx).Create(workflow).Error
}

// GetRunForUpdate takes a row lock on the run so two concurrent deliveries
// for the same portal run id serialize on the latest-state check.
func (r *runRepository) GetRunForUpdate(ctx context.Context, portalRunID string) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("portal_run_id = ?", portalRunID).
		First(&run).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &run, nil
}

func (r *runRepository) GetRun(ctx context.Context, portalRunID string) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	err := r.db.WithContext(ctx).
		Preload("Workflow").
		Preload("States", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC")
		}).
		Preload("States.Payload").
		Where("portal_run_id = ?", portalRunID).
		First(&run).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &run, nil
}

func (r *runRepository) CreateRun(ctx context.Context, run *domain.WorkflowRun) error {
	// Omit the association so gorm does not upsert the (immutable) Workflow.
	return r.db.WithContext(ctx).Omit("Workflow").Create(run).Error
}

func (r *runRepository) GetLibrary(ctx context.Context, orcabusID string) (*domain.Library, error) {
	var library domain.Library
	err := r.db.WithContext(ctx).
		Where("orcabus_id = ?", orcabusID).
		First(&library).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &library, nil
}

func (r *runRepository) CreateLibrary(ctx context.Context, library *domain.Library) error {
	return r.db.WithContext(ctx).Create(library).Error
}

func (r *runRepository) CreateLibraryAssociation(ctx context.Context, assoc *domain.LibraryAssociation) error {
	return r.db.WithContext(ctx).Omit("Library").Create(assoc).Error
}

func (r *runRepository) ListLibraryAssociations(ctx context.Context, runID uuid.UUID) ([]domain.LibraryAssociation, error) {
	var assocs []domain.LibraryAssociation
	err := r.db.WithContext(ctx).
		Preload("Library").
		Where("workflow_run_id = ?", runID).
		Order("association_date ASC").
		Find(&assocs).Error
	return assocs, err
}

func (r *runRepository) ListStates(ctx context.Context, runID uuid.UUID) ([]domain.State, error) {
	var states []domain.State
	err := r.db.WithContext(ctx).
		Where("workflow_run_id = ?", runID).
		Order("timestamp ASC").
		Find(&states).Error
	return states, err
}

func (r *runRepository) SavePayload(ctx context.Context, payload *domain.Payload) error {
	return r.db.WithContext(ctx).Create(payload).Error
}

func (r *runRepository) SaveState(ctx context.Context, state *domain.State) error {
	return r.db.WithContext(ctx).Omit("Payload").Create(state).Error
}

func (r *runRepository) FindSiblingRuns(ctx context.Context, workflowID uuid.UUID, orcabusIDs []string, excludeRunID uuid.UUID) ([]domain.WorkflowRun, error) {
	if len(orcabusIDs) == 0 {
		return nil, nil
	}
	var runs []domain.WorkflowRun
	err := r.db.WithContext(ctx).
		Distinct("workflow_runs.*").
		Joins("JOIN library_associations ON library_associations.workflow_run_id = workflow_runs.id").
		Where("workflow_runs.workflow_id = ?", workflowID).
		Where("workflow_runs.id != ?", excludeRunID).
		Where("library_associations.library_orcabus_id IN ?", orcabusIDs).
		Find(&runs).Error
	return runs, err
}
