package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Activity       *handlers.ActivityHandler
	SLA            *handlers.SLAHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/internal/metrics", cfg.Health.Metrics)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	api.Post("/tickets", cfg.Tickets.CreateTicket)
	api.Get("/tickets", cfg.Tickets.ListTickets)
	api.Get("/tickets/:id", cfg.Tickets.GetTicket)
	api.Get("/tickets/:id/history", cfg.Tickets.History)
	api.Post("/tickets/:id/status", cfg.Tickets.ChangeStatus)
	api.Post("/tickets/:id/comments", cfg.Activity.AddComment)
	api.Post("/tickets/:id/attachments", cfg.Activity.UploadAttachment)
	api.Get("/attachments/:id", cfg.Activity.DownloadAttachment)
	api.Delete("/attachments/:id", cfg.Activity.DeleteAttachment)

	staff := api.Group("", auth.RequireStaffRole())
	staff.Post("/tickets/:id/priority", cfg.Tickets.ChangePriority)
	staff.Post("/tickets/:id/assign", cfg.Tickets.Assign)
	staff.Post("/tickets/:id/assign/self", cfg.Tickets.SelfAssign)
	staff.Get("/sla/policies", cfg.SLA.ListPolicies)
	staff.Post("/sla/scan", cfg.SLA.RunScan)
}
