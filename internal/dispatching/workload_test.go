package dispatching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

func TestWorkloadTrackerNeverNil(t *testing.T) {
	counts, err := NewWorkloadTracker(fakeWorkload(nil)).ActiveCounts(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, counts)
}

func TestEligibleCandidatesExcludesFullAgents(t *testing.T) {
	agents := []domain.Agent{
		{ID: "full"},
		{ID: "over"},
		{ID: "own-cap", MaxCapacity: 2},
		{ID: "free"},
	}
	loads := map[string]int{"full": 5, "over": 9, "own-cap": 2, "free": 4}

	got := eligibleCandidates(agents, loads, 5)
	require.Len(t, got, 1)
	assert.Equal(t, "free", got[0].agent.ID)
	assert.InDelta(t, 0.8, got[0].loadRatio(), 1e-9)
}

func TestEligibleCandidatesZeroCapacity(t *testing.T) {
	assert.Empty(t, eligibleCandidates([]domain.Agent{{ID: "a"}}, nil, 0))
}

func TestRankResultsTieBreaks(t *testing.T) {
	results := []domain.DispatchResult{
		{AgentID: "c", Score: 0.5, CurrentLoad: 1},
		{AgentID: "b", Score: 0.5, CurrentLoad: 1},
		{AgentID: "a", Score: 0.5, CurrentLoad: 2},
		{AgentID: "d", Score: 0.9, CurrentLoad: 4},
	}
	ranked := rankResults(results, 3)

	var ids []string
	for _, r := range ranked {
		ids = append(ids, r.AgentID)
	}
	assert.Equal(t, []string{"d", "b", "c"}, ids)
}
