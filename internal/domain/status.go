package domain

import "strings"

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusReady     Status = "READY"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusAborted   Status = "ABORTED"
	StatusResolved  Status = "RESOLVED"
)

// statusAliases maps recognized upstream spellings to the controlled vocabulary.
// Keys are already upper-cased with hyphens replaced by underscores.
var statusAliases = map[string]Status{
	"DRAFT":       StatusDraft,
	"INITIAL":     StatusDraft,
	"CREATED":     StatusDraft,
	"READY":       StatusReady,
	"RUNNING":     StatusRunning,
	"IN_PROGRESS": StatusRunning,
	"ONGOING":     StatusRunning,
	"SUCCEEDED":   StatusSucceeded,
	"SUCCESS":     StatusSucceeded,
	"DONE":        StatusSucceeded,
	"FAILED":      StatusFailed,
	"FAILURE":     StatusFailed,
	"FAIL":        StatusFailed,
	"ERROR":       StatusFailed,
	"ABORTED":     StatusAborted,
	"CANCELLED":   StatusAborted,
	"CANCELED":    StatusAborted,
	"RESOLVED":    StatusResolved,
}

// NormalizeStatus maps a free-text status onto the controlled vocabulary.
// Statuses outside the vocabulary are passed through (upper-cased) so that
// engine-specific statuses are tracked verbatim rather than rejected.
func NormalizeStatus(s string) Status {
	key := strings.ReplaceAll(strings.ToUpper(s), "-", "_")
	if canonical, ok := statusAliases[key]; ok {
		return canonical
	}
	return Status(key)
}

func (s Status) IsDraft() bool   { return s == StatusDraft }
func (s Status) IsReady() bool   { return s == StatusReady }
func (s Status) IsRunning() bool { return s == StatusRunning }

// IsTerminal reports whether no further transition may follow this status,
// except the explicit FAILED -> RESOLVED manual intervention edge.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusAborted
}
