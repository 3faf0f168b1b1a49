package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/service"
	apperrors "github.com/spec-kit/dispatch-service/pkg/util/errorutil"
)

const maxRecommendationCount = 50

// DispatchHandler exposes the dispatch engine over HTTP.
type DispatchHandler struct {
	service    service.DispatchingService
	dispatcher events.Dispatcher
}

// NewDispatchHandler constructs handler.
func NewDispatchHandler(dispatchService service.DispatchingService, dispatcher events.Dispatcher) *DispatchHandler {
	return &DispatchHandler{service: dispatchService, dispatcher: dispatcher}
}

// Recommendations GET /dispatch/tickets/:id/recommendations.
func (h *DispatchHandler) Recommendations(c *fiber.Ctx) error {
	count, err := queryInt(c, "count", service.DefaultRecommendationCount)
	if err != nil {
		return err
	}
	if count > maxRecommendationCount {
		return apperrors.NewValidationError("count too large", map[string]any{"max": maxRecommendationCount})
	}
	results := h.service.TopRecommendedAgents(c.UserContext(), c.Params("id"), count)
	if results == nil {
		results = []domain.DispatchResult{}
	}
	return c.JSON(fiber.Map{"data": results})
}

// AutoDispatch POST /dispatch/tickets/:id/auto.
func (h *DispatchHandler) AutoDispatch(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	dispatched := h.service.AutoDispatchTicket(c.UserContext(), ticketID)
	return c.JSON(fiber.Map{"data": fiber.Map{
		"ticket_id":  ticketID,
		"dispatched": dispatched,
	}})
}

// ProjectManager GET /dispatch/tickets/:id/project-manager.
func (h *DispatchHandler) ProjectManager(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	result, ok := h.service.RecommendedProjectManager(c.UserContext(), ticketID)
	if !ok {
		return apperrors.NewNotFound("project manager recommendation", map[string]any{"ticket_id": ticketID})
	}
	return c.JSON(fiber.Map{"data": result})
}

// Retrain POST /dispatch/model/retrain.
func (h *DispatchHandler) Retrain(c *fiber.Ctx) error {
	outcome, err := h.service.RetrainModel(c.UserContext())
	if err != nil {
		return fmt.Errorf("retrain model: %w", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"outcome": outcome}})
}

// Model GET /dispatch/model.
func (h *DispatchHandler) Model(c *fiber.Ctx) error {
	info, ok := h.service.ModelInfo()
	if !ok {
		return apperrors.NewNotFound("dispatch model", nil)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"domain_id":    info.DomainID,
		"version":      info.Version,
		"trained_at":   info.TrainedAt,
		"record_count": info.RecordCount,
		"checksum":     info.Checksum,
	}})
}

// Backlog POST /dispatch/backlog.
func (h *DispatchHandler) Backlog(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		return err
	}
	report := h.service.DispatchBacklog(c.UserContext(), limit)
	return c.JSON(fiber.Map{"data": report})
}

type ticketResolvedRequest struct {
	TicketID string `json:"ticket_id"`
	AgentID  string `json:"agent_id"`
	Status   string `json:"status"`
}

// TicketResolved POST /dispatch/events/ticket-resolved. The ticket system calls
// it when a ticket reaches COMPLETED or FAILED.
func (h *DispatchHandler) TicketResolved(c *fiber.Ctx) error {
	var req ticketResolvedRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status := domain.TicketStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if req.TicketID == "" || !status.IsTerminal() {
		return apperrors.NewValidationError("ticket_id and a terminal status required", map[string]any{
			"allowed_status": []domain.TicketStatus{domain.TicketStatusCompleted, domain.TicketStatusFailed},
		})
	}
	if h.dispatcher != nil {
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventTicketResolved,
			TicketID:  req.TicketID,
			Timestamp: time.Now(),
			Payload:   events.TicketResolvedPayload{AgentID: req.AgentID, Status: string(status)},
		}
		if err := h.dispatcher.Publish(c.UserContext(), event); err != nil {
			return apperrors.NewInternalError(err)
		}
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func queryInt(c *fiber.Ctx, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.NewValidationError("invalid "+key, map[string]any{key: raw})
	}
	return v, nil
}
