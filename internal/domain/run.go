package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunKind discriminates the three run-state-change families that share this
// entity model and transition policy.
type RunKind string

const (
	RunKindWorkflow RunKind = "workflow"
	RunKindSequence RunKind = "sequence"
	RunKindCase     RunKind = "case"
)

func ParseRunKind(s string) (RunKind, bool) {
	switch RunKind(s) {
	case RunKindWorkflow, RunKindSequence, RunKindCase:
		return RunKind(s), true
	}
	return "", false
}

// Workflow identity is (name, version). Created on first sight of a new pair,
// immutable thereafter.
type Workflow struct {
	ID                        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	WorkflowName              string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_workflow_name_version" json:"workflowName"`
	WorkflowVersion           string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_workflow_name_version" json:"workflowVersion"`
	ExecutionEngine           string    `gorm:"type:varchar(100)" json:"executionEngine"`
	ExecutionEnginePipelineID string    `gorm:"type:varchar(255)" json:"executionEnginePipelineId"`
	ApprovalState             string    `gorm:"type:varchar(50)" json:"approvalState"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// NewWorkflow builds an on-the-fly Workflow record with placeholder execution
// metadata, for workflows that were not pre-registered.
func NewWorkflow(name, version string) *Workflow {
	return &Workflow{
		ID:                        uuid.New(),
		WorkflowName:              name,
		WorkflowVersion:           version,
		ExecutionEngine:           "Unknown",
		ExecutionEnginePipelineID: "Unknown",
	}
}

// WorkflowRun is the aggregate root for one execution of a Workflow. The
// portal run id is the externally supplied business key; ID is surrogate.
type WorkflowRun struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	PortalRunID     string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"portalRunId"`
	RunKind         RunKind   `gorm:"type:varchar(20);not null;default:'workflow'" json:"runKind"`
	ExecutionID     string    `gorm:"type:varchar(255)" json:"executionId"`
	WorkflowRunName string    `gorm:"type:varchar(255)" json:"workflowRunName"`
	Comment         *string   `gorm:"type:text" json:"comment,omitempty"`
	AnalysisRunID   *string   `gorm:"type:varchar(50)" json:"analysisRunId,omitempty"`

	WorkflowID uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	Workflow   *Workflow `gorm:"foreignKey:WorkflowID" json:"workflow,omitempty"`

	States []State `gorm:"foreignKey:WorkflowRunID" json:"states,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func NewWorkflowRun(workflow *Workflow, kind RunKind, portalRunID, executionID, runName string) *WorkflowRun {
	return &WorkflowRun{
		ID:              uuid.New(),
		PortalRunID:     portalRunID,
		RunKind:         kind,
		ExecutionID:     executionID,
		WorkflowRunName: runName,
		WorkflowID:      workflow.ID,
		Workflow:        workflow,
	}
}

// Library is a biological sample library, identified by an externally minted
// orcabus id (26-char ULID tail) with a human-readable library id.
type Library struct {
	OrcabusID string `gorm:"type:varchar(26);primary_key" json:"orcabusId"`
	LibraryID string `gorm:"type:varchar(50);not null;index" json:"libraryId"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

const AssociationStatusActive = "ACTIVE"

// LibraryAssociation links a WorkflowRun to a Library. Associations are
// established once, at run creation time; later events never re-link.
type LibraryAssociation struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	WorkflowRunID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_run_library" json:"-"`
	LibraryOrcabusID string    `gorm:"type:varchar(26);not null;uniqueIndex:idx_run_library" json:"orcabusId"`
	AssociationDate  time.Time `gorm:"not null" json:"associationDate"`
	Status           string    `gorm:"type:varchar(20);not null" json:"status"`

	Library *Library `gorm:"foreignKey:LibraryOrcabusID;references:OrcabusID" json:"library,omitempty"`
}

func NewLibraryAssociation(run *WorkflowRun, lib *Library) *LibraryAssociation {
	return &LibraryAssociation{
		ID:               uuid.New(),
		WorkflowRunID:    run.ID,
		LibraryOrcabusID: lib.OrcabusID,
		AssociationDate:  time.Now().UTC(),
		Status:           AssociationStatusActive,
	}
}

// CreatePortalRunID mints a fresh portal run id: the UTC date followed by
// 8 hex characters, e.g. "2024111144ce2633".
func CreatePortalRunID() string {
	now := time.Now().UTC()
	return fmt.Sprintf("%04d%02d%02d%s", now.Year(), int(now.Month()), now.Day(), uuid.NewString()[:8])
}
