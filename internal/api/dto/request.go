package dto

import "orcabus-run-manager/internal/domain"

// CreateStateRequest is the manual state-change request body. Only the
// FAILED -> RESOLVED intervention is supported, and it requires a comment.
type CreateStateRequest struct {
	Status  string `json:"status" binding:"required"`
	Comment string `json:"comment"`
}

// RerunRequest triggers a fresh run of an existing workflow run.
type RerunRequest struct {
	AllowDuplication bool `json:"allowDuplication"`
}

type IngestResponse struct {
	Accepted bool                   `json:"accepted"`
	Event    *domain.RunStateChange `json:"event,omitempty"`
}
