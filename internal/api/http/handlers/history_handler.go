package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/service"
	apperrors "github.com/spec-kit/dispatch-service/pkg/util/errorutil"
)

// HistoryHandler serves the dispatch audit trail.
type HistoryHandler struct {
	history *service.HistoryService
}

// NewHistoryHandler constructs handler.
func NewHistoryHandler(history *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// TicketHistory GET /dispatch/tickets/:id/history.
func (h *HistoryHandler) TicketHistory(c *fiber.Ctx) error {
	entries, err := h.history.TicketHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": entries})
}
