package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"orcabus-run-manager/internal/api/dto"
	"orcabus-run-manager/internal/core/ports"
	"orcabus-run-manager/internal/domain"
	"orcabus-run-manager/internal/service"

	"github.com/gin-gonic/gin"
)

// validManualStates maps a manually requestable status to the latest statuses
// it may follow. Only the human-curated FAILED -> RESOLVED edge is supported.
var validManualStates = map[domain.Status][]domain.Status{
	domain.StatusResolved: {domain.StatusFailed},
}

type RunHandler struct {
	reconciler *service.Reconciler
	repo       ports.RunRepository
	bus        ports.EventBus
}

func NewRunHandler(reconciler *service.Reconciler, repo ports.RunRepository, bus ports.EventBus) *RunHandler {
	return &RunHandler{reconciler: reconciler, repo: repo, bus: bus}
}

// IngestEvent accepts one raw run-state-change event for the given run kind
// and runs it through reconciliation synchronously.
func (h *RunHandler) IngestEvent(c *gin.Context) {
	kind, ok := domain.ParseRunKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown run kind: " + c.Param("kind")})
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev, err := domain.UnmarshallRunStateChange(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.reconciler.Reconcile(c.Request.Context(), kind, ev)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if out == nil {
		// Non-advancing event; dropped by the transition policy
		c.JSON(http.StatusOK, dto.IngestResponse{Accepted: false})
		return
	}

	if err := h.bus.PublishRunStateChange(c.Request.Context(), kind, out); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.IngestResponse{Accepted: true, Event: out})
}

// GetRun returns a run with its workflow and full state history.
func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.repo.GetRun(c.Request.Context(), c.Param("portalRunId"))
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no run with portal run id " + c.Param("portalRunId")})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// CreateState adds a manual state to a run. Only RESOLVED following FAILED
// is valid, and a comment is required.
func (h *RunHandler) CreateState(c *gin.Context) {
	var req dto.CreateStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requested := domain.NormalizeStatus(req.Status)
	allowedFrom, ok := validManualStates[requested]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "manual state " + string(requested) + " is not supported"})
		return
	}
	if req.Comment == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment is required when requesting status " + string(requested)})
		return
	}

	portalRunID := c.Param("portalRunId")
	var newState *domain.State
	status := http.StatusCreated
	var apiErr string

	err := h.repo.Transaction(c.Request.Context(), func(tx ports.RunRepository) error {
		run, err := tx.GetRunForUpdate(c.Request.Context(), portalRunID)
		if err != nil {
			return err
		}
		states, err := tx.ListStates(c.Request.Context(), run.ID)
		if err != nil {
			return err
		}

		latest := domain.LatestState(states)
		if latest == nil || !statusIn(latest.Status, allowedFrom) {
			status, apiErr = http.StatusBadRequest, "invalid state request: can't add "+string(requested)+" to current state"
			return nil
		}

		newState = domain.NewState(string(requested), time.Now().UTC())
		newState.Comment = &req.Comment

		ok, err := service.NewRunTransitioner(tx).TransitionTo(c.Request.Context(), run, states, newState)
		if err != nil {
			return err
		}
		if !ok {
			status, apiErr = http.StatusBadRequest, "invalid state request: transition rejected"
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no run with portal run id " + portalRunID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if apiErr != "" {
		c.JSON(status, gin.H{"error": apiErr})
		return
	}
	c.JSON(status, newState)
}

// Rerun mints a fresh portal run id and pushes a DRAFT event for the same
// workflow and libraries through reconciliation.
func (h *RunHandler) Rerun(c *gin.Context) {
	var req dto.RerunRequest
	// An empty body is fine; everything else is a bad request
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	run, err := h.repo.GetRun(ctx, c.Param("portalRunId"))
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no run with portal run id " + c.Param("portalRunId")})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	assocs, err := h.repo.ListLibraryAssociations(ctx, run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	libraries := make([]domain.LibraryRecord, 0, len(assocs))
	orcabusIDs := make([]string, 0, len(assocs))
	for _, assoc := range assocs {
		rec := domain.LibraryRecord{OrcabusID: assoc.LibraryOrcabusID}
		if assoc.Library != nil {
			rec.LibraryID = assoc.Library.LibraryID
		}
		libraries = append(libraries, rec)
		orcabusIDs = append(orcabusIDs, assoc.LibraryOrcabusID)
	}

	if !req.AllowDuplication {
		siblings, err := h.repo.FindSiblingRuns(ctx, run.WorkflowID, orcabusIDs, run.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(siblings) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "another run of this workflow already covers these libraries; set allowDuplication to rerun anyway",
			})
			return
		}
	}

	ev := &domain.RunStateChange{
		PortalRunID:     domain.CreatePortalRunID(),
		Timestamp:       time.Now().UTC(),
		Status:          string(domain.StatusDraft),
		WorkflowName:    run.Workflow.WorkflowName,
		WorkflowVersion: run.Workflow.WorkflowVersion,
		WorkflowRunName: run.WorkflowRunName,
		LinkedLibraries: libraries,
	}

	out, err := h.reconciler.Reconcile(ctx, run.RunKind, ev)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if out != nil {
		if err := h.bus.PublishRunStateChange(ctx, run.RunKind, out); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, ev)
}

func statusIn(s domain.Status, set []domain.Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
