package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// RegisterEvents wires the catalogue.  Browsing is public and the list is
// served through the response cache; creation and reports need ADMIN.
func RegisterEvents(e *echo.Echo, h *handler.EventHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	e.GET("/v1/events", h.List, cache)
	e.GET("/v1/events/search", h.Search)
	e.GET("/v1/events/:id/seats", h.SeatMap)

	admin := []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin)}
	e.POST("/v1/events", h.Create, admin...)
	e.GET("/v1/events/:id/report", h.Report, admin...)
}
