package graph

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRejectionCandidateIsManual(t *testing.T) {
	owner := uuid.New()
	a, b := uuid.New(), uuid.New()

	c := rejectionCandidate(owner, a, b)

	// A rejection is an owner decision, never attributed to a detection tier.
	assert.Equal(t, MatchTypeManual, c.MatchType)
	assert.Equal(t, CandidateStatusRejected, c.Status)
	assert.Equal(t, 0.0, c.Score)
	assert.True(t, c.Reasons.RejectedByUser)

	// The pair key is canonical regardless of argument order.
	ca, cb := CanonicalPair(a, b)
	assert.Equal(t, ca, c.AID)
	assert.Equal(t, cb, c.BID)

	swapped := rejectionCandidate(owner, b, a)
	assert.Equal(t, c.AID, swapped.AID)
	assert.Equal(t, c.BID, swapped.BID)
}
