package dispatching

import (
	"context"
	"strings"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// ZoneBasedStrategy only considers agents in the customer's region.
type ZoneBasedStrategy struct {
	candidates candidateSource
}

// NewZoneBasedStrategy creates the strategy.
func NewZoneBasedStrategy(agents AgentStore, workload *WorkloadTracker, domains DomainConfig) *ZoneBasedStrategy {
	return &ZoneBasedStrategy{candidates: candidateSource{agents: agents, workload: workload, domains: domains}}
}

func (s *ZoneBasedStrategy) Name() string { return StrategyZoneBased }

// Recommend returns nothing when the customer has no region or nobody serves it.
func (s *ZoneBasedStrategy) Recommend(ctx context.Context, req Request, count int) ([]domain.DispatchResult, error) {
	if req.Customer == nil || strings.TrimSpace(req.Customer.Region) == "" {
		return nil, nil
	}
	region := strings.TrimSpace(req.Customer.Region)

	candidates, err := s.candidates.load(ctx, req.DomainID)
	if err != nil {
		return nil, err
	}
	var results []domain.DispatchResult
	for _, c := range candidates {
		if !strings.EqualFold(strings.TrimSpace(c.agent.Region), region) {
			continue
		}
		results = append(results, domain.DispatchResult{
			AgentID:     c.agent.ID,
			Score:       clampUnit(1 - c.loadRatio()),
			Reasons:     []string{"region match: " + region, workloadReason(c)},
			CurrentLoad: c.load,
			MaxCapacity: c.capacity,
		})
	}
	return rankResults(results, count), nil
}

func (s *ZoneBasedStrategy) Retrain(context.Context) (RetrainOutcome, error) {
	return RetrainNotApplicable, nil
}
