package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/dispatch-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Dispatch *handlers.DispatchHandler
	History  *handlers.HistoryHandler
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	dispatch := app.Group("/dispatch")
	dispatch.Get("/tickets/:id/recommendations", cfg.Dispatch.Recommendations)
	dispatch.Post("/tickets/:id/auto", cfg.Dispatch.AutoDispatch)
	dispatch.Get("/tickets/:id/project-manager", cfg.Dispatch.ProjectManager)
	dispatch.Get("/model", cfg.Dispatch.Model)
	dispatch.Post("/model/retrain", cfg.Dispatch.Retrain)
	dispatch.Post("/backlog", cfg.Dispatch.Backlog)
	dispatch.Post("/events/ticket-resolved", cfg.Dispatch.TicketResolved)
	if cfg.History != nil {
		dispatch.Get("/tickets/:id/history", cfg.History.TicketHistory)
	}
}
