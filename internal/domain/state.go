package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// State is one immutable point in a run's status history. The timestamp is
// caller-supplied (event time, not wall-clock) and drives ordering.
type State struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	WorkflowRunID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_run_status_timestamp" json:"-"`
	Status        Status    `gorm:"type:varchar(100);not null;uniqueIndex:idx_run_status_timestamp" json:"status"`
	Timestamp     time.Time `gorm:"not null;uniqueIndex:idx_run_status_timestamp" json:"timestamp"`
	Comment       *string   `gorm:"type:text" json:"comment,omitempty"`

	PayloadID *uuid.UUID `gorm:"type:uuid" json:"-"`
	Payload   *Payload   `gorm:"foreignKey:PayloadID" json:"payload,omitempty"`

	CreatedAt time.Time `json:"-"`
}

func NewState(status string, timestamp time.Time) *State {
	return &State{
		ID:        uuid.New(),
		Status:    NormalizeStatus(status),
		Timestamp: timestamp,
	}
}

// Payload is the opaque versioned data blob attached to a State. The ref id
// is minted server-side and travels on the outbound event.
type Payload struct {
	ID           uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	PayloadRefID string         `gorm:"type:varchar(36);not null;uniqueIndex" json:"refId"`
	Version      string         `gorm:"type:varchar(50);not null" json:"version"`
	Data         datatypes.JSON `gorm:"type:jsonb" json:"data"`

	CreatedAt time.Time `json:"-"`
}

func NewPayload(version string, data []byte) *Payload {
	return &Payload{
		ID:           uuid.New(),
		PayloadRefID: uuid.NewString(),
		Version:      version,
		Data:         datatypes.JSON(data),
	}
}

// LatestState returns the state with the newest timestamp, or nil for an
// empty history.
func LatestState(states []State) *State {
	if len(states) == 0 {
		return nil
	}
	last := &states[0]
	for i := range states {
		if states[i].Timestamp.After(last.Timestamp) {
			last = &states[i]
		}
	}
	return last
}

// ContainsStatus reports whether the history already holds a state with the
// given status. Statuses are assumed to follow conventions already.
func ContainsStatus(states []State, status Status) bool {
	for i := range states {
		if states[i].Status == status {
			return true
		}
	}
	return false
}
