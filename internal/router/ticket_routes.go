package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// RegisterTickets wires purchase, cancel and listings.  Every route needs a
// token; purchase additionally passes the rate limiter, which runs after
// JWTAuth so it can key on the user.
func RegisterTickets(e *echo.Echo, h *handler.TicketHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	jwt := middleware.JWTAuth(jwtSecret)
	member := middleware.RequireRole(model.RoleUser, model.RoleAdmin)

	e.POST("/v1/tickets", h.Purchase, jwt, member, limiter)
	e.DELETE("/v1/tickets/:id", h.Cancel, jwt, member)
	e.GET("/v1/my-tickets", h.MyTickets, jwt, member)
	e.GET("/v1/tickets", h.ListAll, jwt, middleware.RequireRole(model.RoleAdmin))
}
