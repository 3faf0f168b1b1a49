package dispatching

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// DefaultWorkloadPenalty is the share of score a fully loaded agent loses.
const DefaultWorkloadPenalty = 0.5

// MatrixFactorizationConfig tunes the model-backed strategy.
type MatrixFactorizationConfig struct {
	WorkloadPenalty float64
	Weights         ScoringWeights
}

// MatrixFactorizationStrategy scores agents with the affinity model, domain
// signals and a workload penalty.
type MatrixFactorizationStrategy struct {
	candidates candidateSource
	pipeline   *ModelPipeline
	scorer     AffinityScorer
	penalty    float64
	logger     *zap.Logger
}

// NewMatrixFactorizationStrategy creates the strategy.
func NewMatrixFactorizationStrategy(
	cfg MatrixFactorizationConfig,
	agents AgentStore,
	workload *WorkloadTracker,
	domains DomainConfig,
	pipeline *ModelPipeline,
	logger *zap.Logger,
) *MatrixFactorizationStrategy {
	if cfg.WorkloadPenalty < 0 || cfg.WorkloadPenalty > 1 {
		cfg.WorkloadPenalty = DefaultWorkloadPenalty
	}
	if cfg.Weights == (ScoringWeights{}) {
		cfg.Weights = DefaultScoringWeights()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatrixFactorizationStrategy{
		candidates: candidateSource{agents: agents, workload: workload, domains: domains},
		pipeline:   pipeline,
		scorer:     NewAffinityScorer(cfg.Weights),
		penalty:    cfg.WorkloadPenalty,
		logger:     logger,
	}
}

func (s *MatrixFactorizationStrategy) Name() string { return StrategyMatrixFactorization }

// Recommend applies adjusted = raw * (1 - penalty * load/capacity) to every
// agent under capacity. Without a loaded model it schedules a retrain and
// returns ErrModelUnavailable.
func (s *MatrixFactorizationStrategy) Recommend(ctx context.Context, req Request, count int) ([]domain.DispatchResult, error) {
	model, _, ok := s.pipeline.Model()
	if !ok {
		s.pipeline.TriggerRetrain()
		return nil, ErrModelUnavailable
	}
	if req.Ticket == nil {
		return nil, nil
	}

	candidates, err := s.candidates.load(ctx, req.DomainID)
	if err != nil {
		return nil, err
	}

	customerID := req.Ticket.CustomerID
	if req.Customer != nil && req.Customer.ID != "" {
		customerID = req.Customer.ID
	}

	results := make([]domain.DispatchResult, 0, len(candidates))
	for _, c := range candidates {
		value, known := model.Predict(c.agent.ID, customerID)
		pred := Prediction{Value: value, Known: known}
		eval := s.scorer.Evaluate(pred, req.Ticket, c.agent, req.Customer)
		factor := 1 - s.penalty*c.loadRatio()
		adjusted := clampUnit(eval.Score * factor)

		s.logger.Debug("scored agent",
			zap.String("agent_id", c.agent.ID),
			zap.String("ticket_id", req.Ticket.ID),
			zap.Float64("raw", eval.Score),
			zap.Float64("adjusted", adjusted))

		results = append(results, domain.DispatchResult{
			AgentID:     c.agent.ID,
			Score:       adjusted,
			Reasons:     append(eval.Reasons, workloadReason(c)),
			Explanation: fmt.Sprintf("%s; workload factor %.2f", eval.Explanation, factor),
			CurrentLoad: c.load,
			MaxCapacity: c.capacity,
		})
	}
	return rankResults(results, count), nil
}

// Retrain delegates to the model pipeline.
func (s *MatrixFactorizationStrategy) Retrain(ctx context.Context) (RetrainOutcome, error) {
	return s.pipeline.Retrain(ctx)
}
