package dispatching

import (
	"context"
	"fmt"
	"sort"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// WorkloadTracker snapshots active ticket counts per agent.
type WorkloadTracker struct {
	source WorkloadSource
}

// NewWorkloadTracker creates a tracker over source.
func NewWorkloadTracker(source WorkloadSource) *WorkloadTracker {
	return &WorkloadTracker{source: source}
}

// ActiveCounts returns agentID -> number of assigned tickets not yet COMPLETED or FAILED.
// Agents with no active tickets are absent from the map.
func (w *WorkloadTracker) ActiveCounts(ctx context.Context) (map[string]int, error) {
	counts, err := w.source.ActiveTicketCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("active ticket counts: %w", err)
	}
	if counts == nil {
		counts = map[string]int{}
	}
	return counts, nil
}

// candidate is an agent under capacity together with its load.
type candidate struct {
	agent    domain.Agent
	load     int
	capacity int
}

func (c candidate) loadRatio() float64 {
	if c.capacity <= 0 {
		return 1
	}
	return float64(c.load) / float64(c.capacity)
}

// capacityFor resolves the agent's own capacity, falling back to the domain limit.
func capacityFor(agent domain.Agent, domainMax int) int {
	if agent.MaxCapacity > 0 {
		return agent.MaxCapacity
	}
	return domainMax
}

// eligibleCandidates drops agents at or above capacity.
func eligibleCandidates(agents []domain.Agent, loads map[string]int, domainMax int) []candidate {
	out := make([]candidate, 0, len(agents))
	for _, agent := range agents {
		capacity := capacityFor(agent, domainMax)
		load := loads[agent.ID]
		if capacity <= 0 || load >= capacity {
			continue
		}
		out = append(out, candidate{agent: agent, load: load, capacity: capacity})
	}
	return out
}

// rankResults sorts by score descending, then lower load, then agent ID, and keeps count.
func rankResults(results []domain.DispatchResult, count int) []domain.DispatchResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].CurrentLoad != results[j].CurrentLoad {
			return results[i].CurrentLoad < results[j].CurrentLoad
		}
		return results[i].AgentID < results[j].AgentID
	})
	if count > 0 && len(results) > count {
		results = results[:count]
	}
	return results
}
