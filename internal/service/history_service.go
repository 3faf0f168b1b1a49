package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
)

// HistoryStore persists ticket audit entries.
type HistoryStore interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

// HistoryService records engine assignments in the ticket audit trail.
type HistoryService struct {
	store      HistoryStore
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewHistoryService creates the service.
func NewHistoryService(store HistoryStore, dispatcher events.Dispatcher, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{store: store, dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to dispatch events.
func (h *HistoryService) RegisterHandlers() {
	if h.dispatcher == nil || h.store == nil {
		return
	}
	h.dispatcher.Subscribe(events.EventTicketDispatched, h.handleTicketDispatched)
}

// TicketHistory lists a ticket's audit entries, oldest first.
func (h *HistoryService) TicketHistory(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	entries, err := h.store.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list ticket history: %w", err)
	}
	return entries, nil
}

func (h *HistoryService) handleTicketDispatched(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketDispatchedPayload)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", event.Type, event.Payload)
	}

	var oldValue map[string]any
	if payload.PreviousAgentID != "" {
		oldValue = map[string]any{"assignee_id": payload.PreviousAgentID}
	}
	entry := &domain.TicketHistory{
		TicketID:   event.TicketID,
		ChangedBy:  domain.ChangedByDispatchEngine,
		ChangeType: domain.ChangeTypeAutoDispatch,
		OldValue:   oldValue,
		NewValue: map[string]any{
			"assignee_id": payload.AgentID,
			"domain_id":   payload.DomainID,
			"score":       payload.Score,
			"reasons":     payload.Reasons,
			"tag":         domain.TagAIDispatched,
		},
	}
	if err := h.store.Create(ctx, entry); err != nil {
		h.logger.Error("failed to record dispatch history",
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		return err
	}
	return nil
}
