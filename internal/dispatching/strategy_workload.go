package dispatching

import (
	"context"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// WorkloadOnlyStrategy prefers the least loaded agents. It is the fallback for
// every other strategy.
type WorkloadOnlyStrategy struct {
	candidates candidateSource
}

// NewWorkloadOnlyStrategy creates the strategy.
func NewWorkloadOnlyStrategy(agents AgentStore, workload *WorkloadTracker, domains DomainConfig) *WorkloadOnlyStrategy {
	return &WorkloadOnlyStrategy{candidates: candidateSource{agents: agents, workload: workload, domains: domains}}
}

func (s *WorkloadOnlyStrategy) Name() string { return StrategyWorkloadOnly }

// Recommend scores each eligible agent by 1 - load/capacity.
func (s *WorkloadOnlyStrategy) Recommend(ctx context.Context, req Request, count int) ([]domain.DispatchResult, error) {
	candidates, err := s.candidates.load(ctx, req.DomainID)
	if err != nil {
		return nil, err
	}
	results := make([]domain.DispatchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, domain.DispatchResult{
			AgentID:     c.agent.ID,
			Score:       clampUnit(1 - c.loadRatio()),
			Reasons:     []string{workloadReason(c)},
			CurrentLoad: c.load,
			MaxCapacity: c.capacity,
		})
	}
	return rankResults(results, count), nil
}

func (s *WorkloadOnlyStrategy) Retrain(context.Context) (RetrainOutcome, error) {
	return RetrainNotApplicable, nil
}
