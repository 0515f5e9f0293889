package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/booking"
	"github.com/iliyamo/event-ticketing/internal/middleware"
)

// TicketHandler exposes purchase, cancel and ticket listings.
type TicketHandler struct {
	Coordinator *booking.Coordinator
	Ledger      *booking.Ledger
	Logger      *zap.Logger
}

func NewTicketHandler(coord *booking.Coordinator, ledger *booking.Ledger, logger *zap.Logger) *TicketHandler {
	return &TicketHandler{Coordinator: coord, Ledger: ledger, Logger: logger.Named("tickets")}
}

// Purchase buys the requested seats for the caller.
func (h *TicketHandler) Purchase(c echo.Context) error {
	var req booking.PurchaseRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.EventID == 0 {
		return badRequest(c, "eventId is required")
	}
	t, err := h.Coordinator.Purchase(c.Request().Context(), req, middleware.Username(c))
	if err != nil {
		return bookingError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// Cancel deletes a ticket owned by the caller, or any ticket for admins.
func (h *TicketHandler) Cancel(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}
	if err := h.Coordinator.Cancel(c.Request().Context(), id, actorOf(c)); err != nil {
		return bookingError(c, h.Logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MyTickets lists the caller's tickets, newest first.
func (h *TicketHandler) MyTickets(c echo.Context) error {
	ts, err := h.Ledger.ListByUsername(c.Request().Context(), middleware.Username(c))
	if err != nil {
		return internalError(c, h.Logger, "failed to list tickets", err)
	}
	return c.JSON(http.StatusOK, ts)
}

// ListAll lists every ticket; admin only.
func (h *TicketHandler) ListAll(c echo.Context) error {
	ts, err := h.Ledger.ListAll(c.Request().Context())
	if err != nil {
		return internalError(c, h.Logger, "failed to list tickets", err)
	}
	return c.JSON(http.StatusOK, ts)
}
