package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/dispatch-service/internal/dispatching"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/recommender"
)

type engineFixture struct {
	service    DispatchingService
	tickets    *memoryTickets
	pipeline   *dispatching.ModelPipeline
	dispatcher events.Dispatcher

	mu        sync.Mutex
	published []events.Event
}

func (f *engineFixture) events(eventType events.EventType) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newEngine(t *testing.T, domains fakeDomains, agents *fakeAgents) *engineFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	tickets := newMemoryTickets()
	workload := dispatching.NewWorkloadTracker(tickets)

	pipeline := dispatching.NewModelPipeline(dispatching.PipelineConfig{DomainID: "it"}, dispatching.PipelineDependencies{
		History: agents,
		Domains: domains,
		Trainer: flatTrainer{value: 3},
		Store:   recommender.NewFileStore(t.TempDir(), 3, logger),
		Logger:  logger,
	})
	t.Cleanup(pipeline.Close)

	fallback := dispatching.NewWorkloadOnlyStrategy(agents, workload, domains)
	resolver := dispatching.NewResolver(domains,
		dispatching.NewMatrixFactorizationStrategy(dispatching.MatrixFactorizationConfig{WorkloadPenalty: 0.5}, agents, workload, domains, pipeline, logger),
		fallback,
		dispatching.NewZoneBasedStrategy(agents, workload, domains),
	)

	f := &engineFixture{tickets: tickets, pipeline: pipeline, dispatcher: events.NewInMemoryDispatcher()}
	record := func(_ context.Context, e events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published = append(f.published, e)
		return nil
	}
	f.dispatcher.Subscribe(events.EventTicketDispatched, record)
	f.dispatcher.Subscribe(events.EventModelRetrained, record)

	f.service = NewDispatchingService(true, DispatchDependencies{
		Tickets:  tickets,
		Domains:  domains,
		Resolver: resolver,
		Fallback: fallback,
		Pipeline: pipeline,
		Managers: NewProjectManagerService(DefaultProjectManagerConfig(), ProjectManagerDependencies{
			Agents:   agents,
			Projects: fakeProjects{},
			Workload: workload,
			Logger:   logger,
		}),
		Dispatcher: f.dispatcher,
		Logger:     logger,
	})
	return f
}

func fiveAgents() *fakeAgents {
	return &fakeAgents{agents: []domain.Agent{
		{ID: "agent1"}, {ID: "agent2"}, {ID: "agent3"}, {ID: "agent4"}, {ID: "agent5"},
	}}
}

func openTicket(id string, created time.Time) domain.Ticket {
	return domain.Ticket{ID: id, DomainID: "it", CustomerID: "cust", Status: domain.TicketStatusPending, CreatedAt: created}
}

func TestTopRecommendedAgentsDefaultCount(t *testing.T) {
	f := newEngine(t, fakeDomains{strategy: dispatching.StrategyWorkloadOnly, max: 5}, fiveAgents())
	f.tickets.addCustomer(domain.Customer{ID: "cust"})
	f.tickets.add(openTicket("t1", time.Now()))

	results := f.service.TopRecommendedAgents(context.Background(), "t1", 0)
	assert.Len(t, results, DefaultRecommendationCount)

	results = f.service.TopRecommendedAgents(context.Background(), "t1", 10)
	assert.Len(t, results, 5)
}

func TestRecommendationsNeverIncludeFullAgents(t *testing.T) {
	agents := &fakeAgents{agents: []domain.Agent{{ID: "busy"}, {ID: "free"}}}
	f := newEngine(t, fakeDomains{strategy: dispatching.StrategyWorkloadOnly, max: 1}, agents)
	f.tickets.addCustomer(domain.Customer{ID: "cust"})
	busy := "busy"
	f.tickets.add(domain.Ticket{ID: "old", CustomerID: "cust", AssigneeID: &busy, Status: domain.TicketStatusInProgress})
	f.tickets.add(openTicket("t1", time.Now()))

	results := f.service.TopRecommendedAgents(context.Background(), "t1", 5)
	require.Len(t, results, 1)
	assert.Equal(t, "free", results[0].AgentID)
}

func TestFallsBackWhenModelUnavailable(t *testing.T) {
	f := newEngine(t, fakeDomains{strategy: "matrixfactorization", max: 5, minRecords: 3}, fiveAgents())
	f.tickets.addCustomer(domain.Customer{ID: "cust"})
	f.tickets.add(openTicket("t1", time.Now()))

	results := f.service.TopRecommendedAgents(context.Background(), "t1", 3)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"workload: 0/5"}, results[0].Reasons)

	agentID, ok := f.service.RecommendedAgent(context.Background(), "t1")
	assert.True(t, ok)
	assert.Equal(t, "agent1", agentID)
}

func TestUsesModelOnceTrained(t *testing.T) {
	agents := fiveAgents()
	agents.history = resolvedHistory(3)
	f := newEngine(t, fakeDomains{strategy: dispatching.StrategyMatrixFactorization, max: 5, minRecords: 3}, agents)
	f.tickets.addCustomer(domain.Customer{ID: "cust"})
	f.tickets.add(openTicket("t1", time.Now()))

	outcome, err := f.service.RetrainModel(context.Background())
	require.NoError(t, err)
	require.Equal(t, dispatching.RetrainTrained, outcome)

	results := f.service.TopRecommendedAgents(context.Background(), "t1", 1)
	require.Len(t, results, 1)
	assert.Equal(t, "affinity: 3.00/5", results[0].Reasons[0])
	assert.InDelta(t, 0.2, results[0].Score, 1e-9)

	info, ok := f.service.ModelInfo()
	require.True(t, ok)
	assert.Equal(t, 1, info.Version)
	require.Len(t, f.events(events.EventModelRetrained), 1)
}

func TestFallsBackWhenStrategyFindsNobody(t *testing.T) {
	agents := &fakeAgents{agents: []domain.Agent{{ID: "apac", Region: "APAC"}}}
	f := newEngine(t, fakeDomains{strategy: dispatching.StrategyZoneBased, max: 5}, agents)
	f.tickets.addCustomer(domain.Customer{ID: "cust", Region: "EMEA"})
	f.tickets.add(openTicket("t1", time.Now()))

	results := f.service.TopRecommendedAgents(context.Background(), "t1", 3)
	require.Len(t, results, 1)
	assert.Equal(t, "apac", results[0].AgentID)
}

func TestUnknownStrategyFallsBack(t *testing.T) {
	f := newEngine(t, fakeDomains{strategy: "RoundRobin", max: 5}, fiveAgents())
	f.tickets.addCustomer(domain.Customer{ID: "cust"})
	f.tickets.add(openTicket("t1", time.Now()))

	assert.Len(t, f.service.TopRecommendedAgents(context.Background(), "t1", 2), 2)
}

func TestMissingTicketOrCustomer(t *testing.T) {
	f := newEngine(t, fakeDomains{strategy: dispatching.StrategyWorkloadOnly, max: 5}, fiveAgents())
	f.tickets.add(openTicket("orphan", time.Now()))

	assert.Empty(t, f.service.TopRecommendedAgents(context.Background(), "missing", 3))
	assert.Empty(t, f.service.TopRecommendedAgents(context.Background(), "orphan", 3))
	_, ok := f.service.RecommendedAgent(context.Background(), "missing")
	assert.False(t, ok)
	assert.False(t, f.service.AutoDispatchTicket(context.Background(), "missing"))
}

func TestAutoDispatchAssignsAndTags(t *testing.T) {
	f := newEngine(t, fakeDomains{strategy: dispatching.StrategyWorkloadOnly, max: 5}, fiveAgents())
	f.tickets.addCustomer(domain.Customer{ID: "cust"})
	f.tickets.add(openTicket("t1", time.Now()))

	require.True(t, f.service.AutoDispatchTicket(context.Background(), "t1"))

	stored := f.tickets.get("t1")
	require.NotNil(t, stored.AssigneeID)
	assert.Equal(t, "agent1", *stored.AssigneeID)
	assert.Equal(t, domain.TicketStatusAssigned, stored.Status)
	assert.Equal(t, []string{domain.TagAIDispatched}, stored.Tags)

	published := f.events(events.EventTicketDispatched)
	require.Len(t, published, 1)
	assert.Equal(t, "t1", published[0].TicketID)
	payload, ok := published[0].Payload.(events.TicketDispatchedPayload)
	require.True(t, ok)
	assert.Equal(t, "agent1", payload.AgentID)
	assert.Equal(t, "it", payload.DomainID)
}

func TestAutoDispatchPersistFailureLeavesTicketUntouched(t *testing.T) {
	f := newEngine(t, fakeDomains{strategy: dispatching.StrategyWorkloadOnly, max: 5}, fiveAgents())
	f.tickets.addCustomer(domain.Customer{ID: "cust"})
	f.tickets.add(openTicket("t1", time.Now()))
	f.tickets.updateErr = errors.New("db down")

	assert.False(t, f.service.AutoDispatchTicket(context.Background(), "t1"))

	stored := f.tickets.get("t1")
	assert.Nil(t, stored.AssigneeID)
	assert.Equal(t, domain.TicketStatusPending, stored.Status)
	assert.Empty(t, stored.Tags)
	assert.Empty(t, f.events(events.EventTicketDispatched))
}

func TestAutoDispatchSkipsResolvedTickets(t *testing.T) {
	f := newEngine(t, fakeDomains{strategy: dispatching.StrategyWorkloadOnly, max: 5}, fiveAgents())
	f.tickets.addCustomer(domain.Customer{ID: "cust"})
	closed := openTicket("t1", time.Now())
	closed.Status = domain.TicketStatusCompleted
	f.tickets.add(closed)

	assert.False(t, f.service.AutoDispatchTicket(context.Background(), "t1"))
	assert.Equal(t, 0, f.tickets.updates)
}

func TestAutoDispatchDoesNotReopenTicketResolvedMeanwhile(t *testing.T) {
	f := newEngine(t, fakeDomains{strategy: dispatching.StrategyWorkloadOnly, max: 5}, fiveAgents())
	f.tickets.addCustomer(domain.Customer{ID: "cust"})
	f.tickets.add(openTicket("t1", time.Now()))
	completedAt := time.Now()
	f.tickets.beforeUpdate = func(stored *domain.Ticket) {
		stored.Status = domain.TicketStatusCompleted
		stored.CompletedAt = &completedAt
	}

	assert.False(t, f.service.AutoDispatchTicket(context.Background(), "t1"))

	stored := f.tickets.get("t1")
	assert.Equal(t, domain.TicketStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, completedAt, *stored.CompletedAt)
	assert.Nil(t, stored.AssigneeID)
	assert.Empty(t, stored.Tags)
	assert.Equal(t, 0, f.tickets.updates)
	assert.Empty(t, f.events(events.EventTicketDispatched))
}

func TestAutoDispatchWhenEveryoneIsFull(t *testing.T) {
	agents := &fakeAgents{agents: []domain.Agent{{ID: "only"}}}
	f := newEngine(t, fakeDomains{strategy: dispatching.StrategyWorkloadOnly, max: 1}, agents)
	f.tickets.addCustomer(domain.Customer{ID: "cust"})
	only := "only"
	f.tickets.add(domain.Ticket{ID: "old", CustomerID: "cust", AssigneeID: &only, Status: domain.TicketStatusAssigned})
	f.tickets.add(openTicket("t1", time.Now()))

	assert.False(t, f.service.AutoDispatchTicket(context.Background(), "t1"))
}

func TestDispatchBacklogRespectsCapacity(t *testing.T) {
	agents := &fakeAgents{agents: []domain.Agent{{ID: "a"}, {ID: "b"}}}
	f := newEngine(t, fakeDomains{strategy: dispatching.StrategyWorkloadOnly, max: 1}, agents)
	f.tickets.addCustomer(domain.Customer{ID: "cust"})
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	f.tickets.add(openTicket("t1", base))
	f.tickets.add(openTicket("t2", base.Add(time.Minute)))
	f.tickets.add(openTicket("t3", base.Add(2*time.Minute)))

	report := f.service.DispatchBacklog(context.Background(), 10)

	assert.Equal(t, 3, report.Examined)
	assert.Equal(t, 2, report.Dispatched)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, map[string]string{"t1": "a", "t2": "b"}, report.Assignments)
	assert.Nil(t, f.tickets.get("t3").AssigneeID)
}

func TestRecommendedProjectManagerRequiresTicket(t *testing.T) {
	f := newEngine(t, fakeDomains{strategy: dispatching.StrategyWorkloadOnly, max: 5}, fiveAgents())
	f.tickets.addCustomer(domain.Customer{ID: "cust"})
	f.tickets.add(openTicket("t1", time.Now()))

	_, ok := f.service.RecommendedProjectManager(context.Background(), "missing")
	assert.False(t, ok)

	result, ok := f.service.RecommendedProjectManager(context.Background(), "t1")
	require.True(t, ok)
	assert.Equal(t, "agent1", result.AgentID)
}

func TestNoopDispatchingService(t *testing.T) {
	svc := NewDispatchingService(false, DispatchDependencies{})
	ctx := context.Background()

	assert.False(t, svc.Enabled())
	_, ok := svc.RecommendedAgent(ctx, "t1")
	assert.False(t, ok)
	assert.Empty(t, svc.TopRecommendedAgents(ctx, "t1", 3))
	assert.False(t, svc.AutoDispatchTicket(ctx, "t1"))
	_, ok = svc.RecommendedProjectManager(ctx, "t1")
	assert.False(t, ok)
	_, ok = svc.ModelInfo()
	assert.False(t, ok)
	assert.Equal(t, 0, svc.DispatchBacklog(ctx, 10).Examined)

	outcome, err := svc.RetrainModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, dispatching.RetrainDisabled, outcome)
}
