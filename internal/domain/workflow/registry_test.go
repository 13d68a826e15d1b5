package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const definitionsYAML = `
workflows:
  - request_type: expense
    stages:
      - name: finance_manager_review
        required_capability: finance_manager
      - name: admin_review
        required_capability: admin
        amount_policy: no_increase
  - request_type: travel_advance
    resubmit_to: rejected_stage
    stages:
      - name: department_head_review
        required_capability: department_head
      - name: finance_manager_review
        required_capability: finance_manager
      - name: cfo_review
        required_capability: cfo
`

func TestParseDefinitions(t *testing.T) {
	reg, err := ParseDefinitions([]byte(definitionsYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"expense", "travel_advance"}, reg.Types())

	stages, err := reg.Get("expense")
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "finance_manager_review", stages[0].Name)
	assert.Equal(t, AmountPolicyAny, stages[0].AmountPolicy)
	assert.Equal(t, AmountPolicyNoIncrease, stages[1].AmountPolicy)

	travel, err := reg.Definition("travel_advance")
	require.NoError(t, err)
	assert.Equal(t, ResubmitToRejectedStage, travel.ResubmitPolicy)
	assert.Equal(t, []string{"department_head_review", "finance_manager_review", "cfo_review"}, travel.StageNames())
}

func TestLoadDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definitionsYAML), 0644))

	reg, err := LoadDefinitions(path)
	require.NoError(t, err)
	assert.Len(t, reg.Types(), 2)

	_, err = LoadDefinitions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseDefinitions_Invalid(t *testing.T) {
	t.Run("empty document", func(t *testing.T) {
		_, err := ParseDefinitions([]byte("workflows: []"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ParseDefinitions([]byte("workflows: ["))
		assert.Error(t, err)
	})

	t.Run("duplicate type", func(t *testing.T) {
		doc := `
workflows:
  - request_type: expense
    stages: [{name: a, required_capability: x}]
  - request_type: expense
    stages: [{name: b, required_capability: y}]
`
		_, err := ParseDefinitions([]byte(doc))
		assert.Error(t, err)
	})
}

func TestRegistry_GetUnknownType(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	_, err = reg.Get("petty_cash")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	reg, err := ParseDefinitions([]byte(definitionsYAML))
	require.NoError(t, err)

	stages, err := reg.Get("expense")
	require.NoError(t, err)
	stages[0].Name = "mutated"

	again, err := reg.Get("expense")
	require.NoError(t, err)
	assert.Equal(t, "finance_manager_review", again[0].Name)
}

func TestReplay(t *testing.T) {
	d := expenseDefinition(t, ResubmitToFirst)

	steps := []Step{
		{Action: ActionSubmit, To: "finance_manager_review", Version: 0},
		{Action: ActionReject, From: "finance_manager_review", To: StateRejected, Version: 1},
		{Action: ActionResubmit, From: StateRejected, To: "finance_manager_review", Version: 2},
		{Action: ActionApprove, From: "finance_manager_review", To: "admin_review", Version: 3},
		{Action: ActionApprove, From: "admin_review", To: StateApproved, Version: 4},
	}

	got, err := d.Replay(steps)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, got)
}

func TestReplay_DetectsInconsistency(t *testing.T) {
	d := expenseDefinition(t, ResubmitToFirst)

	tests := []struct {
		name  string
		steps []Step
	}{
		{"empty", nil},
		{"no submit", []Step{{Action: ActionApprove, From: "finance_manager_review", To: "admin_review"}}},
		{"skipped stage", []Step{
			{Action: ActionSubmit, To: "finance_manager_review", Version: 0},
			{Action: ActionApprove, From: "finance_manager_review", To: StateApproved, Version: 1},
		}},
		{"version gap", []Step{
			{Action: ActionSubmit, To: "finance_manager_review", Version: 0},
			{Action: ActionApprove, From: "finance_manager_review", To: "admin_review", Version: 2},
		}},
		{"broken chain", []Step{
			{Action: ActionSubmit, To: "finance_manager_review", Version: 0},
			{Action: ActionApprove, From: "admin_review", To: StateApproved, Version: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Replay(tt.steps)
			assert.Error(t, err)
		})
	}
}

func TestError_IsAndKind(t *testing.T) {
	err := NewError(KindConflict, "approve", "R1", "version %d is stale", 3)

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrTerminalState))
	assert.Equal(t, "conflict: approve request=R1: version 3 is stale", err.Error())

	wrapped := fmt.Errorf("bulk item: %w", err)
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("disk full")))
}

func TestCapabilitySet(t *testing.T) {
	set := NewCapabilitySet("admin", "", "finance_manager", "admin")

	assert.True(t, set.Has("admin"))
	assert.False(t, set.Has(""))
	assert.Equal(t, []Capability{"admin", "finance_manager"}, set.Sorted())
}
