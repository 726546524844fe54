package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// LibraryRecord is the wire shape of one linked library on a run-state-change
// event.
type LibraryRecord struct {
	OrcabusID string `json:"orcabusId"`
	LibraryID string `json:"libraryId"`
}

// PayloadDetail is the wire shape of an event payload. RefID is empty (null)
// on inbound events and populated by the run manager on outbound events.
type PayloadDetail struct {
	RefID   string          `json:"refId,omitempty"`
	Version string          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// RunStateChange is the canonical run-state-change notification, shared by
// the workflow, sequence and case run families (detail-type
// "WorkflowRunStateChange" and friends on the bus).
type RunStateChange struct {
	PortalRunID     string          `json:"portalRunId"`
	Timestamp       time.Time       `json:"timestamp"`
	Status          string          `json:"status"`
	WorkflowName    string          `json:"workflowName"`
	WorkflowVersion string          `json:"workflowVersion"`
	WorkflowRunName string          `json:"workflowRunName"`
	ExecutionID     string          `json:"executionId,omitempty"`
	AnalysisRunID   string          `json:"analysisRunId,omitempty"`
	LinkedLibraries []LibraryRecord `json:"linkedLibraries,omitempty"`
	Payload         *PayloadDetail  `json:"payload,omitempty"`
}

// DeserializationError marks an inbound event that cannot be mapped onto
// RunStateChange. It is fatal for the invocation; the hosting framework
// decides between retry and dead-letter.
type DeserializationError struct {
	Field  string
	Reason string
}

func (e *DeserializationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("run state change event: field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("run state change event: %s", e.Reason)
}

// UnmarshallRunStateChange parses a raw wire event and validates the
// mandatory fields.
func UnmarshallRunStateChange(raw []byte) (*RunStateChange, error) {
	var ev RunStateChange
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, &DeserializationError{Reason: err.Error()}
	}

	mandatory := []struct {
		field string
		value string
	}{
		{"portalRunId", ev.PortalRunID},
		{"status", ev.Status},
		{"workflowName", ev.WorkflowName},
		{"workflowVersion", ev.WorkflowVersion},
	}
	for _, m := range mandatory {
		if m.value == "" {
			return nil, &DeserializationError{Field: m.field, Reason: "missing or empty"}
		}
	}
	if ev.Timestamp.IsZero() {
		return nil, &DeserializationError{Field: "timestamp", Reason: "missing or not a valid RFC 3339 timestamp"}
	}
	if ev.Payload != nil && ev.Payload.Version == "" {
		return nil, &DeserializationError{Field: "payload.version", Reason: "missing or empty"}
	}
	return &ev, nil
}

// Marshall produces the camelCase wire representation.
func (e *RunStateChange) Marshall() ([]byte, error) {
	return json.Marshal(e)
}
