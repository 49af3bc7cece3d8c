package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testMachine() *StateMachine[string] {
	return NewStateMachine(map[string][]string{
		"DRAFT":     {"SUBMITTED"},
		"SUBMITTED": {"APPROVED", "REJECTED"},
		"APPROVED":  {},
		"REJECTED":  {"DRAFT"},
	})
}

func TestCanTransition(t *testing.T) {
	sm := testMachine()

	assert.True(t, sm.CanTransition("DRAFT", "SUBMITTED"))
	assert.True(t, sm.CanTransition("SUBMITTED", "REJECTED"))
	assert.False(t, sm.CanTransition("DRAFT", "APPROVED"))
	assert.False(t, sm.CanTransition("APPROVED", "DRAFT"))
	assert.False(t, sm.CanTransition("UNKNOWN", "DRAFT"))
}

func TestCanTransitionToSameStatus(t *testing.T) {
	sm := testMachine()

	assert.True(t, sm.CanTransition("APPROVED", "APPROVED"))
	assert.False(t, sm.CanTransition("UNKNOWN", "UNKNOWN"))
}

func TestGetAllowedTransitions(t *testing.T) {
	sm := testMachine()

	assert.ElementsMatch(t, []string{"APPROVED", "REJECTED"}, sm.GetAllowedTransitions("SUBMITTED"))
	assert.Empty(t, sm.GetAllowedTransitions("UNKNOWN"))

	// callers cannot mutate the table through the returned slice
	got := sm.GetAllowedTransitions("DRAFT")
	got[0] = "APPROVED"
	assert.Equal(t, []string{"SUBMITTED"}, sm.GetAllowedTransitions("DRAFT"))
}

func TestKnows(t *testing.T) {
	sm := testMachine()

	assert.True(t, sm.Knows("APPROVED"))
	assert.False(t, sm.Knows("ARCHIVED"))
}
