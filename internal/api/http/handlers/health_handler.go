package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/recommender"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency readiness can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelStatus reports the dispatch model currently served.
type ModelStatus func() (recommender.ModelInfo, bool)

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	deps        []dependency
	model       ModelStatus
}

type dependency struct {
	name   string
	pinger Pinger
}

// NewHealthHandler returns a new handler instance. A missing model does not
// fail readiness since recommendations fall back to workload ranking.
func NewHealthHandler(serviceName, version string, postgres, redis Pinger, model ModelStatus) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		deps:        []dependency{{name: "postgres", pinger: postgres}, {name: "redis", pinger: redis}},
		model:       model,
	}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true
	for _, dep := range h.deps {
		if dep.pinger == nil {
			depStatus[dep.name] = "not configured"
			ready = false
			continue
		}
		if err := dep.pinger.Ping(ctx); err != nil {
			depStatus[dep.name] = err.Error()
			ready = false
		} else {
			depStatus[dep.name] = "ok"
		}
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": depStatus,
			},
		})
	}
	return c.JSON(fiber.Map{
		"status":         "ready",
		"dependencies":   depStatus,
		"dispatch_model": h.modelStatus(),
	})
}

func (h *HealthHandler) modelStatus() fiber.Map {
	if h.model == nil {
		return fiber.Map{"loaded": false}
	}
	info, ok := h.model()
	if !ok {
		return fiber.Map{"loaded": false}
	}
	return fiber.Map{
		"loaded":     true,
		"domain_id":  info.DomainID,
		"version":    info.Version,
		"trained_at": info.TrainedAt,
	}
}
