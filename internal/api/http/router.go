package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cozycabin/cozycabin/internal/api/http/handlers"
	"github.com/cozycabin/cozycabin/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Attachments    *handlers.AttachmentsHandler
	Invites        *handlers.InvitesHandler
	Stats          *handlers.StatsHandler
	Functions      *handlers.FunctionsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/signup", cfg.Auth.SignUp)
	authGroup.Post("/signin", cfg.Auth.SignIn)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)

	app.Get("/invites/verify", cfg.Invites.Verify)

	// function-style endpoints authenticate themselves and answer 405 to
	// anything but POST
	app.All("/adminAgent", cfg.Functions.AdminAgent)
	app.All("/handle-invite", cfg.Functions.HandleInvite)
	app.All("/invite-user", cfg.Functions.InviteUser)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	protected.Patch("/profiles/me", cfg.Auth.UpdateMe)
	protected.Patch("/profiles/:id", auth.RequireAdmin(), cfg.Auth.UpdateProfile)

	protected.Get("/tickets", cfg.Tickets.ListTickets)
	protected.Post("/tickets", cfg.Tickets.CreateTicket)
	protected.Get("/tickets/:id", cfg.Tickets.GetTicket)
	protected.Patch("/tickets/:id", cfg.Tickets.UpdateTicket)
	protected.Post("/tickets/:id/assign-self", auth.RequireStaff(), cfg.Tickets.AssignToSelf)
	protected.Delete("/tickets/:id", auth.RequireAdmin(), cfg.Tickets.DeleteTicket)
	protected.Post("/tickets/:id/comments", cfg.Tickets.AddComment)
	protected.Patch("/comments/:id", cfg.Tickets.EditComment)

	protected.Post("/tickets/:id/attachments", cfg.Attachments.Upload)
	protected.Get("/attachments/:id/download", cfg.Attachments.Download)
	protected.Delete("/attachments/:id", cfg.Attachments.Delete)

	protected.Get("/invites", auth.RequireAdmin(), cfg.Invites.List)
	protected.Get("/agents/me/stats", auth.RequireStaff(), cfg.Stats.MyStats)
}
