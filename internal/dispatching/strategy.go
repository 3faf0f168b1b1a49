package dispatching

import (
	"context"
	"fmt"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// Strategy names as they appear in domain configuration.
const (
	StrategyMatrixFactorization = "MatrixFactorization"
	StrategyWorkloadOnly        = "WorkloadOnly"
	StrategyZoneBased           = "ZoneBased"
)

// Request is the ticket being dispatched.
type Request struct {
	DomainID string
	Ticket   *domain.Ticket
	Customer *domain.Customer
}

// Strategy ranks agents for a ticket.
type Strategy interface {
	Name() string
	// Recommend returns at most count results ordered best first. Agents at
	// or above capacity are never included.
	Recommend(ctx context.Context, req Request, count int) ([]domain.DispatchResult, error)
	Retrain(ctx context.Context) (RetrainOutcome, error)
}

// candidateSource loads agents under capacity for a domain.
type candidateSource struct {
	agents   AgentStore
	workload *WorkloadTracker
	domains  DomainConfig
}

func (s candidateSource) load(ctx context.Context, domainID string) ([]candidate, error) {
	agents, err := s.agents.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	loads, err := s.workload.ActiveCounts(ctx)
	if err != nil {
		return nil, err
	}
	return eligibleCandidates(agents, loads, s.domains.MaxCapacity(domainID)), nil
}

func workloadReason(c candidate) string {
	return fmt.Sprintf("workload: %d/%d", c.load, c.capacity)
}
