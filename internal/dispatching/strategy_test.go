package dispatching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/recommender"
)

func scenarioAgents() *fakeAgents {
	return &fakeAgents{
		agents: []domain.Agent{
			{ID: "agent1", Specializations: []string{"Database"}},
			{ID: "agent2", Specializations: []string{"Database"}},
			{ID: "agent3", Specializations: []string{"Networking"}},
		},
		history: resolvedHistory(3),
	}
}

func scenarioDomains() fakeDomains {
	return fakeDomains{defaultID: "it", max: 5, minRecords: 3, strategies: map[string]string{"it": StrategyMatrixFactorization}}
}

func untrainedPipeline(t *testing.T, agents *fakeAgents, trainer *constTrainer) *ModelPipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)
	p := NewModelPipeline(PipelineConfig{DomainID: "it"}, PipelineDependencies{
		History: agents,
		Domains: scenarioDomains(),
		Trainer: trainer,
		Store:   recommender.NewFileStore(t.TempDir(), 3, logger),
		Logger:  logger,
	})
	t.Cleanup(p.Close)
	return p
}

func trainedPipeline(t *testing.T, agents *fakeAgents, trainer *constTrainer) *ModelPipeline {
	t.Helper()
	p := untrainedPipeline(t, agents, trainer)
	outcome, err := p.Retrain(context.Background())
	require.NoError(t, err)
	require.Equal(t, RetrainTrained, outcome)
	return p
}

func ids(results []domain.DispatchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.AgentID)
	}
	return out
}

func TestMatrixFactorizationScenario(t *testing.T) {
	agents := scenarioAgents()
	workload := NewWorkloadTracker(fakeWorkload{"agent1": 5, "agent2": 2, "agent3": 0})
	pipeline := trainedPipeline(t, agents, &constTrainer{value: 3})
	strategy := NewMatrixFactorizationStrategy(MatrixFactorizationConfig{WorkloadPenalty: 0.5, Weights: DefaultScoringWeights()},
		agents, workload, scenarioDomains(), pipeline, zaptest.NewLogger(t))

	req := Request{
		DomainID: "it",
		Ticket:   &domain.Ticket{ID: "t1", CustomerID: "c1", RequiredSkills: []string{"Database"}},
		Customer: &domain.Customer{ID: "c1"},
	}
	results, err := strategy.Recommend(context.Background(), req, 3)
	require.NoError(t, err)

	require.Equal(t, []string{"agent2", "agent3"}, ids(results))
	assert.InDelta(t, 0.4, results[0].Score, 1e-9)
	assert.InDelta(t, 0.2, results[1].Score, 1e-9)
	assert.Equal(t, 2, results[0].CurrentLoad)
	assert.Equal(t, 5, results[0].MaxCapacity)
	assert.Contains(t, results[0].Reasons, "skill match: Database")
	assert.Contains(t, results[0].Reasons, "workload: 2/5")
	assert.Contains(t, results[0].Explanation, "workload factor 0.80")
}

func TestMatrixFactorizationColdStartPair(t *testing.T) {
	agents := &fakeAgents{
		agents:  []domain.Agent{{ID: "known"}, {ID: "stranger", Languages: []string{"de"}}},
		history: resolvedHistory(3),
	}
	trainer := &constTrainer{value: 5}
	pipeline := trainedPipeline(t, agents, trainer)
	// The trained constModel knows everyone; swap in one that knows only "known".
	pipeline.current.Store(&loadedModel{model: constModel{Value: 5, Known: map[string]bool{"known": true}}})

	strategy := NewMatrixFactorizationStrategy(MatrixFactorizationConfig{WorkloadPenalty: 0.5},
		agents, NewWorkloadTracker(fakeWorkload{}), scenarioDomains(), pipeline, zaptest.NewLogger(t))
	results, err := strategy.Recommend(context.Background(), Request{
		DomainID: "it",
		Ticket:   &domain.Ticket{ID: "t"},
		Customer: &domain.Customer{ID: "c", Language: "de"},
	}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[string]domain.DispatchResult{}
	for _, r := range results {
		byID[r.AgentID] = r
	}
	assert.InDelta(t, 0.4, byID["known"].Score, 1e-9)
	assert.InDelta(t, 0.2, byID["stranger"].Score, 1e-9)
	assert.Equal(t, "no interaction history", byID["stranger"].Reasons[0])
}

func TestMatrixFactorizationWithoutModel(t *testing.T) {
	agents := scenarioAgents()
	pipeline := untrainedPipeline(t, agents, &constTrainer{value: 3})

	strategy := NewMatrixFactorizationStrategy(MatrixFactorizationConfig{}, agents,
		NewWorkloadTracker(fakeWorkload{}), scenarioDomains(), pipeline, zaptest.NewLogger(t))
	_, err := strategy.Recommend(context.Background(), Request{DomainID: "it", Ticket: &domain.Ticket{ID: "t"}}, 3)
	assert.ErrorIs(t, err, ErrModelUnavailable)

	assert.Eventually(t, func() bool {
		_, _, ok := pipeline.Model()
		return ok
	}, 2*time.Second, 10*time.Millisecond, "a background retrain should have been scheduled")
}

func TestWorkloadOnlyStrategy(t *testing.T) {
	agents := scenarioAgents()
	strategy := NewWorkloadOnlyStrategy(agents, NewWorkloadTracker(fakeWorkload{"agent1": 5, "agent2": 2}), scenarioDomains())

	results, err := strategy.Recommend(context.Background(), Request{DomainID: "it"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent3", "agent2"}, ids(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.6, results[1].Score, 1e-9)

	outcome, err := strategy.Retrain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RetrainNotApplicable, outcome)
}

func TestWorkloadOnlyEveryoneFull(t *testing.T) {
	agents := scenarioAgents()
	strategy := NewWorkloadOnlyStrategy(agents, NewWorkloadTracker(fakeWorkload{"agent1": 5, "agent2": 5, "agent3": 7}), scenarioDomains())

	results, err := strategy.Recommend(context.Background(), Request{DomainID: "it"}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestZoneBasedStrategy(t *testing.T) {
	agents := &fakeAgents{agents: []domain.Agent{
		{ID: "emea-busy", Region: "EMEA"},
		{ID: "emea-free", Region: "emea"},
		{ID: "apac", Region: "APAC"},
	}}
	strategy := NewZoneBasedStrategy(agents, NewWorkloadTracker(fakeWorkload{"emea-busy": 3}), scenarioDomains())
	ctx := context.Background()

	results, err := strategy.Recommend(ctx, Request{DomainID: "it", Customer: &domain.Customer{Region: "EMEA"}}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"emea-free", "emea-busy"}, ids(results))
	assert.Equal(t, []string{"region match: EMEA", "workload: 0/5"}, results[0].Reasons)

	results, err = strategy.Recommend(ctx, Request{DomainID: "it", Customer: &domain.Customer{}}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
