package requests

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdjacencyList(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusSubmitted, StatusPendingReview},
		{StatusPendingReview, StatusNeedsMoreInfo},
		{StatusPendingReview, StatusApproved},
		{StatusPendingReview, StatusCancelled},
		{StatusNeedsMoreInfo, StatusPendingReview},
		{StatusNeedsMoreInfo, StatusCancelled},
		{StatusApproved, StatusScheduled},
		{StatusApproved, StatusCancelled},
		{StatusScheduled, StatusConfirmed},
		{StatusScheduled, StatusCancelled},
		{StatusConfirmed, StatusCompleted},
		{StatusConfirmed, StatusCancelled},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to Status }{
		{StatusSubmitted, StatusApproved},
		{StatusSubmitted, StatusScheduled},
		{StatusPendingReview, StatusScheduled},
		{StatusPendingReview, StatusConfirmed},
		{StatusNeedsMoreInfo, StatusApproved},
		{StatusApproved, StatusConfirmed},
		{StatusScheduled, StatusCompleted},
		{StatusCompleted, StatusCancelled},
		{StatusCompleted, StatusPendingReview},
		{StatusCancelled, StatusPendingReview},
		{StatusCancelled, StatusCompleted},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, IsTerminal(StatusCompleted))
	assert.True(t, IsTerminal(StatusCancelled))
	for _, s := range []Status{StatusSubmitted, StatusPendingReview, StatusNeedsMoreInfo, StatusApproved, StatusScheduled, StatusConfirmed} {
		assert.False(t, IsTerminal(s), "%s should not be terminal", s)
	}
}

func TestTransitionLeavesStatusUnchangedOnConflict(t *testing.T) {
	req := &ConsultationRequest{Status: StatusCancelled}
	err := req.Transition(StatusPendingReview)
	assert.Error(t, err)
	assert.Equal(t, StatusCancelled, req.Status)
}
