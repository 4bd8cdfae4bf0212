package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var allStatuses = []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusRejected}

func TestTransitionTable(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusPending, StatusRejected}:    true,
		{StatusConfirmed, StatusCompleted}: true,
		{StatusConfirmed, StatusCancelled}: true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransitionsNeverLeaveTerminalStates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(allStatuses).Draw(t, "from")
		to := rapid.SampledFrom(allStatuses).Draw(t, "to")
		if !CanTransition(from, to) {
			return
		}
		if from.Terminal() {
			t.Fatalf("terminal %s moved to %s", from, to)
		}
		if to == StatusPending || to == from {
			t.Fatalf("%s -> %s re-enters a non-terminal state", from, to)
		}
	})
}

func TestStatusValid(t *testing.T) {
	for _, s := range allStatuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("archived").Valid())
	assert.True(t, TypeFixedTerm.Valid())
	assert.False(t, Type("weekly").Valid())
}
