package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/dispatching"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/recommender"
)

// DefaultRecommendationCount is used when callers ask for a non-positive count.
const DefaultRecommendationCount = 3

// DispatchingService is the dispatch engine facade used by handlers and workers.
// Lookup and scoring failures never surface as errors: they yield an empty result.
type DispatchingService interface {
	Enabled() bool
	RecommendedAgent(ctx context.Context, ticketID string) (string, bool)
	TopRecommendedAgents(ctx context.Context, ticketID string, count int) []domain.DispatchResult
	AutoDispatchTicket(ctx context.Context, ticketID string) bool
	RetrainModel(ctx context.Context) (dispatching.RetrainOutcome, error)
	RecommendedProjectManager(ctx context.Context, ticketID string) (domain.DispatchResult, bool)
	DispatchBacklog(ctx context.Context, limit int) BacklogReport
	ModelInfo() (recommender.ModelInfo, bool)
}

// BacklogReport summarizes a DispatchBacklog sweep.
type BacklogReport struct {
	Examined    int               `json:"examined"`
	Dispatched  int               `json:"dispatched"`
	Skipped     int               `json:"skipped"`
	Assignments map[string]string `json:"assignments"`
}

// DispatchDependencies bundles collaborators of the dispatch engine.
type DispatchDependencies struct {
	Tickets    dispatching.TicketStore
	Domains    dispatching.DomainConfig
	Resolver   *dispatching.Resolver
	Fallback   dispatching.Strategy
	Pipeline   *dispatching.ModelPipeline
	Managers   *ProjectManagerService
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewDispatchingService returns the active engine, or a no-op one when
// dispatching is switched off.
func NewDispatchingService(enabled bool, deps DispatchDependencies) DispatchingService {
	if !enabled {
		return NoopDispatchingService{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &dispatchingService{
		tickets:    deps.Tickets,
		domains:    deps.Domains,
		resolver:   deps.Resolver,
		fallback:   deps.Fallback,
		pipeline:   deps.Pipeline,
		managers:   deps.Managers,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
	}
}

type dispatchingService struct {
	tickets    dispatching.TicketStore
	domains    dispatching.DomainConfig
	resolver   *dispatching.Resolver
	fallback   dispatching.Strategy
	pipeline   *dispatching.ModelPipeline
	managers   *ProjectManagerService
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func (s *dispatchingService) Enabled() bool { return true }

// RecommendedAgent returns the single best agent for the ticket.
func (s *dispatchingService) RecommendedAgent(ctx context.Context, ticketID string) (string, bool) {
	results := s.TopRecommendedAgents(ctx, ticketID, 1)
	if len(results) == 0 {
		return "", false
	}
	return results[0].AgentID, true
}

// TopRecommendedAgents ranks up to count agents for the ticket.
func (s *dispatchingService) TopRecommendedAgents(ctx context.Context, ticketID string, count int) []domain.DispatchResult {
	if count <= 0 {
		count = DefaultRecommendationCount
	}
	ticket, customer, ok := s.lookup(ctx, ticketID)
	if !ok {
		return nil
	}
	return s.recommend(ctx, ticket, customer, count)
}

// AutoDispatchTicket assigns the best agent, tags the ticket and persists it.
func (s *dispatchingService) AutoDispatchTicket(ctx context.Context, ticketID string) bool {
	agentID, result := s.autoDispatch(ctx, ticketID)
	s.metrics.RecordAutoDispatch(result)
	return agentID != ""
}

func (s *dispatchingService) autoDispatch(ctx context.Context, ticketID string) (string, string) {
	ticket, customer, ok := s.lookup(ctx, ticketID)
	if !ok {
		return "", "not_found"
	}
	if ticket.Status.IsTerminal() {
		s.logger.Info("ticket already resolved, not dispatching",
			zap.String("ticket_id", ticketID),
			zap.String("status", string(ticket.Status)))
		return "", "terminal"
	}

	results := s.recommend(ctx, ticket, customer, 1)
	if len(results) == 0 {
		s.logger.Warn("no agent available for auto-dispatch", zap.String("ticket_id", ticketID))
		return "", "no_candidate"
	}
	best := results[0]

	// Work on a copy so a failed write leaves nothing half-applied.
	updated := ticket.Clone()
	if err := updated.Assign(best.AgentID); err != nil {
		s.logger.Error("invalid dispatch assignment", zap.String("ticket_id", ticketID), zap.Error(err))
		return "", "error"
	}
	updated.AddTag(domain.TagAIDispatched)
	if err := s.tickets.UpdateTicket(ctx, updated); err != nil {
		if errors.Is(err, dispatching.ErrTicketClosed) {
			s.logger.Info("ticket resolved before dispatch could be saved",
				zap.String("ticket_id", ticketID),
				zap.String("agent_id", best.AgentID))
			return "", "terminal"
		}
		s.logger.Error("failed to persist auto-dispatch",
			zap.String("ticket_id", ticketID),
			zap.String("agent_id", best.AgentID),
			zap.Error(err))
		return "", "persist_failed"
	}

	s.logger.Info("ticket auto-dispatched",
		zap.String("ticket_id", ticketID),
		zap.String("agent_id", best.AgentID),
		zap.Float64("score", best.Score))
	s.publishDispatchEvent(ctx, ticket, updated, best)
	return best.AgentID, "assigned"
}

// RetrainModel retrains the engine's configured domain model.
func (s *dispatchingService) RetrainModel(ctx context.Context) (dispatching.RetrainOutcome, error) {
	if s.pipeline == nil {
		return dispatching.RetrainNotApplicable, nil
	}
	outcome, err := s.pipeline.Retrain(ctx)
	if err != nil {
		s.logger.Error("model retraining failed", zap.Error(err))
		return dispatching.RetrainFailed, err
	}
	if outcome == dispatching.RetrainTrained {
		info, _ := s.ModelInfo()
		s.publish(ctx, events.EventModelRetrained, "", events.ModelRetrainedPayload{
			DomainID: s.pipeline.DomainID(),
			Outcome:  string(outcome),
			Version:  info.Version,
		})
	}
	return outcome, nil
}

// RecommendedProjectManager picks a manager for the ticket's project.
func (s *dispatchingService) RecommendedProjectManager(ctx context.Context, ticketID string) (domain.DispatchResult, bool) {
	if s.managers == nil {
		return domain.DispatchResult{}, false
	}
	if _, _, ok := s.lookup(ctx, ticketID); !ok {
		return domain.DispatchResult{}, false
	}
	result, ok, err := s.managers.Recommend(ctx)
	if err != nil {
		s.logger.Error("project manager recommendation failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return domain.DispatchResult{}, false
	}
	return result, ok
}

// DispatchBacklog auto-dispatches up to limit unassigned tickets, oldest first.
func (s *dispatchingService) DispatchBacklog(ctx context.Context, limit int) BacklogReport {
	report := BacklogReport{Assignments: map[string]string{}}
	backlog, err := s.tickets.ListUnassigned(ctx, limit)
	if err != nil {
		s.logger.Error("failed to list unassigned tickets", zap.Error(err))
		return report
	}
	for _, t := range backlog {
		if ctx.Err() != nil {
			break
		}
		report.Examined++
		agentID, result := s.autoDispatch(ctx, t.ID)
		s.metrics.RecordAutoDispatch(result)
		if agentID == "" {
			report.Skipped++
			continue
		}
		report.Dispatched++
		report.Assignments[t.ID] = agentID
	}
	if report.Examined > 0 {
		s.logger.Info("backlog dispatch finished",
			zap.Int("examined", report.Examined),
			zap.Int("dispatched", report.Dispatched),
			zap.Int("skipped", report.Skipped))
	}
	return report
}

func (s *dispatchingService) ModelInfo() (recommender.ModelInfo, bool) {
	if s.pipeline == nil {
		return recommender.ModelInfo{}, false
	}
	_, info, ok := s.pipeline.Model()
	return info, ok
}

func (s *dispatchingService) lookup(ctx context.Context, ticketID string) (*domain.Ticket, *domain.Customer, bool) {
	ticket, customer, err := s.tickets.GetTicketWithCustomer(ctx, ticketID)
	switch {
	case errors.Is(err, dispatching.ErrNotFound):
		s.logger.Debug("ticket not found", zap.String("ticket_id", ticketID))
		return nil, nil, false
	case err != nil:
		s.logger.Error("failed to load ticket", zap.String("ticket_id", ticketID), zap.Error(err))
		return nil, nil, false
	case ticket == nil:
		return nil, nil, false
	case customer == nil:
		s.logger.Debug("customer not found for ticket", zap.String("ticket_id", ticketID))
		return nil, nil, false
	}
	return ticket, customer, true
}

// recommend runs the domain strategy and falls back to workload-only ranking
// when it fails or has nothing to offer.
func (s *dispatchingService) recommend(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer, count int) []domain.DispatchResult {
	domainID := ticket.DomainID
	if domainID == "" {
		domainID = s.domains.DefaultDomainID()
	}
	req := dispatching.Request{DomainID: domainID, Ticket: ticket, Customer: customer}

	strategy, err := s.resolver.Resolve(domainID)
	if err != nil {
		s.logger.Error("cannot resolve dispatching strategy", zap.String("domain_id", domainID), zap.Error(err))
	} else {
		results, err := strategy.Recommend(ctx, req, count)
		reason := ""
		switch {
		case errors.Is(err, dispatching.ErrModelUnavailable):
			reason = "model_unavailable"
			s.logger.Info("model not ready, using workload fallback", zap.String("ticket_id", ticket.ID))
		case err != nil:
			reason = "error"
			s.logger.Warn("strategy failed, using workload fallback",
				zap.String("strategy", strategy.Name()),
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		case len(results) == 0:
			reason = "empty"
		default:
			s.metrics.RecordRecommendation(strategy.Name(), "ok")
			return results
		}
		if s.fallback == nil || strategy.Name() == s.fallback.Name() {
			s.metrics.RecordRecommendation(strategy.Name(), reason)
			return nil
		}
		s.metrics.RecordFallback(strategy.Name(), reason)
	}

	if s.fallback == nil {
		return nil
	}
	results, err := s.fallback.Recommend(ctx, req, count)
	if err != nil {
		s.logger.Error("fallback strategy failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		s.metrics.RecordRecommendation(s.fallback.Name(), "error")
		return nil
	}
	if len(results) == 0 {
		s.metrics.RecordRecommendation(s.fallback.Name(), "empty")
		return nil
	}
	s.metrics.RecordRecommendation(s.fallback.Name(), "ok")
	return results
}

func (s *dispatchingService) publishDispatchEvent(ctx context.Context, before, after *domain.Ticket, best domain.DispatchResult) {
	domainID := after.DomainID
	if domainID == "" {
		domainID = s.domains.DefaultDomainID()
	}
	payload := events.TicketDispatchedPayload{
		AgentID:  best.AgentID,
		DomainID: domainID,
		Score:    best.Score,
		Reasons:  best.Reasons,
	}
	if before.AssigneeID != nil {
		payload.PreviousAgentID = *before.AssigneeID
	}
	s.publish(ctx, events.EventTicketDispatched, after.ID, payload)
}

func (s *dispatchingService) publish(ctx context.Context, eventType events.EventType, ticketID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

// NoopDispatchingService is used when dispatching is disabled: nothing is
// recommended and nothing is assigned.
type NoopDispatchingService struct{}

func (NoopDispatchingService) Enabled() bool { return false }

func (NoopDispatchingService) RecommendedAgent(context.Context, string) (string, bool) {
	return "", false
}

func (NoopDispatchingService) TopRecommendedAgents(context.Context, string, int) []domain.DispatchResult {
	return nil
}

func (NoopDispatchingService) AutoDispatchTicket(context.Context, string) bool { return false }

func (NoopDispatchingService) RetrainModel(context.Context) (dispatching.RetrainOutcome, error) {
	return dispatching.RetrainDisabled, nil
}

func (NoopDispatchingService) RecommendedProjectManager(context.Context, string) (domain.DispatchResult, bool) {
	return domain.DispatchResult{}, false
}

func (NoopDispatchingService) DispatchBacklog(context.Context, int) BacklogReport {
	return BacklogReport{Assignments: map[string]string{}}
}

func (NoopDispatchingService) ModelInfo() (recommender.ModelInfo, bool) {
	return recommender.ModelInfo{}, false
}
