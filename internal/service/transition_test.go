package service

import (
	"context"
	"testing"
	"time"

	"orcabus-run-manager/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 11, 11, 0, 0, 0, 0, time.UTC)

func seedRun(t *testing.T, repo *fakeRepo, history ...*domain.State) *domain.WorkflowRun {
	t.Helper()
	workflow := domain.NewWorkflow("rnasum", "1.0")
	require.NoError(t, repo.CreateWorkflow(context.Background(), workflow))
	run := domain.NewWorkflowRun(workflow, domain.RunKindWorkflow, "2024111144ce2633", "exec-1", "run1")
	require.NoError(t, repo.CreateRun(context.Background(), run))
	for _, s := range history {
		s.WorkflowRunID = run.ID
		require.NoError(t, repo.SaveState(context.Background(), s))
	}
	return run
}

func attempt(t *testing.T, repo *fakeRepo, run *domain.WorkflowRun, newState *domain.State) bool {
	t.Helper()
	states, err := repo.ListStates(context.Background(), run.ID)
	require.NoError(t, err)
	ok, err := NewRunTransitioner(repo).TransitionTo(context.Background(), run, states, newState)
	require.NoError(t, err)
	return ok
}

func TestTransitionFirstStateDraft(t *testing.T) {
	repo := newFakeRepo()
	run := seedRun(t, repo)

	ok := attempt(t, repo, run, domain.NewState("DRAFT", t0))
	assert.True(t, ok)
	assert.Len(t, repo.states[run.ID], 1)
}

func TestTransitionFirstStateNonDraftStillPersisted(t *testing.T) {
	// Some engines never emit a DRAFT state; the first state is accepted
	// (with a warning) whatever it is.
	repo := newFakeRepo()
	run := seedRun(t, repo)

	ok := attempt(t, repo, run, domain.NewState("SUCCEEDED", t0))
	assert.True(t, ok)
	require.Len(t, repo.states[run.ID], 1)
	assert.Equal(t, domain.StatusSucceeded, repo.states[run.ID][0].Status)
}

func TestTransitionStaleTimestampRejected(t *testing.T) {
	repo := newFakeRepo()
	run := seedRun(t, repo, domain.NewState("RUNNING", t0.Add(time.Hour)))

	ok := attempt(t, repo, run, domain.NewState("FAILED", t0))
	assert.False(t, ok)
	require.Len(t, repo.states[run.ID], 1)
	assert.Equal(t, domain.StatusRunning, repo.states[run.ID][0].Status)
}

func TestTransitionTerminalStatesAreAbsorbing(t *testing.T) {
	tests := []struct {
		name     string
		terminal string
		next     string
		accepted bool
	}{
		{"succeeded then running", "SUCCEEDED", "RUNNING", false},
		{"succeeded then failed", "SUCCEEDED", "FAILED", false},
		{"succeeded then resolved", "SUCCEEDED", "RESOLVED", false},
		{"aborted then resolved", "ABORTED", "RESOLVED", false},
		{"failed then resolved", "FAILED", "RESOLVED", true},
		{"failed then running", "FAILED", "RUNNING", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo()
			run := seedRun(t, repo, domain.NewState(tc.terminal, t0))

			ok := attempt(t, repo, run, domain.NewState(tc.next, t0.Add(time.Minute)))
			assert.Equal(t, tc.accepted, ok)
		})
	}
}

func TestTransitionFromDraft(t *testing.T) {
	tests := []struct {
		next     string
		accepted bool
	}{
		{"DRAFT", true}, // draft content updates are allowed
		{"READY", true},
		{"RUNNING", false},
		{"SUCCEEDED", false},
		{"QUEUED_CUSTOM", false},
	}
	for _, tc := range tests {
		t.Run("draft to "+tc.next, func(t *testing.T) {
			repo := newFakeRepo()
			run := seedRun(t, repo, domain.NewState("DRAFT", t0))

			ok := attempt(t, repo, run, domain.NewState(tc.next, t0.Add(time.Minute)))
			assert.Equal(t, tc.accepted, ok)
		})
	}
}

func TestTransitionFromReady(t *testing.T) {
	tests := []struct {
		next     string
		accepted bool
	}{
		{"DRAFT", false}, // no going back
		{"READY", false}, // no redundant READY
		{"RUNNING", true},
		{"SUCCEEDED", true}, // pipelines may skip RUNNING
		{"QUEUED_CUSTOM", true},
	}
	for _, tc := range tests {
		t.Run("ready to "+tc.next, func(t *testing.T) {
			repo := newFakeRepo()
			run := seedRun(t, repo,
				domain.NewState("DRAFT", t0),
				domain.NewState("READY", t0.Add(time.Minute)),
			)

			ok := attempt(t, repo, run, domain.NewState(tc.next, t0.Add(2*time.Minute)))
			assert.Equal(t, tc.accepted, ok)
		})
	}
}

func TestTransitionRunningHeartbeatThrottling(t *testing.T) {
	t.Run("updates under one hour apart are dropped", func(t *testing.T) {
		repo := newFakeRepo()
		run := seedRun(t, repo, domain.NewState("RUNNING", t0))

		ok := attempt(t, repo, run, domain.NewState("RUNNING", t0.Add(59*time.Minute)))
		assert.False(t, ok)
		assert.Len(t, repo.states[run.ID], 1)
	})

	t.Run("updates an hour or more apart are persisted", func(t *testing.T) {
		repo := newFakeRepo()
		run := seedRun(t, repo, domain.NewState("RUNNING", t0))

		ok := attempt(t, repo, run, domain.NewState("RUNNING", t0.Add(time.Hour)))
		assert.True(t, ok)
		assert.Len(t, repo.states[run.ID], 2)
	})

	t.Run("no going back to DRAFT or READY", func(t *testing.T) {
		repo := newFakeRepo()
		run := seedRun(t, repo, domain.NewState("RUNNING", t0))

		assert.False(t, attempt(t, repo, run, domain.NewState("READY", t0.Add(time.Minute))))
		assert.False(t, attempt(t, repo, run, domain.NewState("DRAFT", t0.Add(time.Minute))))
	})
}

func TestTransitionDuplicateDeliveryIsNoOp(t *testing.T) {
	// At-least-once delivery: the exact same (status, timestamp) pair must
	// never produce a second row.
	repo := newFakeRepo()
	run := seedRun(t, repo, domain.NewState("DRAFT", t0))

	ok := attempt(t, repo, run, domain.NewState("DRAFT", t0))
	assert.False(t, ok)
	assert.Len(t, repo.states[run.ID], 1)
}

func TestTransitionUncontrolledStatusPassesThroughOnce(t *testing.T) {
	repo := newFakeRepo()
	run := seedRun(t, repo,
		domain.NewState("DRAFT", t0),
		domain.NewState("READY", t0.Add(time.Minute)),
	)

	ok := attempt(t, repo, run, domain.NewState("QUEUED_CUSTOM", t0.Add(2*time.Minute)))
	assert.True(t, ok)

	// Repeats of the same uncontrolled status are duplicates
	ok = attempt(t, repo, run, domain.NewState("QUEUED_CUSTOM", t0.Add(3*time.Minute)))
	assert.False(t, ok)
}

func TestTransitionNormalizesAliases(t *testing.T) {
	repo := newFakeRepo()
	run := seedRun(t, repo,
		domain.NewState("DRAFT", t0),
		domain.NewState("READY", t0.Add(time.Minute)),
	)

	ok := attempt(t, repo, run, domain.NewState("in-progress", t0.Add(2*time.Minute)))
	assert.True(t, ok)
	states := repo.states[run.ID]
	assert.Equal(t, domain.StatusRunning, states[len(states)-1].Status)
}
