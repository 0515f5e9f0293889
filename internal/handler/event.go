package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/booking"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/report"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// maxSeatsPerEvent keeps seat generation inside one reasonable transaction.
const maxSeatsPerEvent = 5000

// EventHandler serves the event catalogue: creation with seat generation,
// listing, search, seat maps and sales reports.
type EventHandler struct {
	Events    *repository.EventRepo
	Seats     *repository.SeatRepo
	Inventory *booking.Inventory
	Reports   *report.Service
	Logger    *zap.Logger
}

func NewEventHandler(events *repository.EventRepo, seats *repository.SeatRepo, inv *booking.Inventory, reports *report.Service, logger *zap.Logger) *EventHandler {
	return &EventHandler{Events: events, Seats: seats, Inventory: inv, Reports: reports, Logger: logger.Named("events")}
}

type createEventReq struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	City        string      `json:"city"`
	Venue       string      `json:"venue"`
	Type        string      `json:"type"`
	DateTime    time.Time   `json:"dateTime"`
	TotalSeats  int         `json:"totalSeats"`
	Price       model.Cents `json:"price"`
}

// Create inserts the event and its seats in one transaction.
func (h *EventHandler) Create(c echo.Context) error {
	var req createEventReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	e := model.Event{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		City:        strings.TrimSpace(req.City),
		Venue:       strings.TrimSpace(req.Venue),
		Type:        strings.ToUpper(strings.TrimSpace(req.Type)),
		DateTime:    req.DateTime.UTC().Truncate(time.Second),
		TotalSeats:  req.TotalSeats,
		PriceCents:  req.Price,
	}
	switch {
	case e.Title == "" || e.City == "" || e.Venue == "":
		return badRequest(c, "title, city and venue are required")
	case e.DateTime.IsZero():
		return badRequest(c, "dateTime is required")
	case e.TotalSeats < 1 || e.TotalSeats > maxSeatsPerEvent:
		return badRequest(c, "totalSeats must be between 1 and 5000")
	case e.PriceCents <= 0:
		return badRequest(c, "price must be positive")
	}

	ctx := c.Request().Context()
	tx, err := h.Events.DB().BeginTx(ctx, nil)
	if err != nil {
		return internalError(c, h.Logger, "failed to start transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Events.CreateTx(ctx, tx, &e); err != nil {
		return internalError(c, h.Logger, "failed to create event", err)
	}
	if err := h.Seats.GenerateTx(ctx, tx, e.ID, e.TotalSeats); err != nil {
		return internalError(c, h.Logger, "failed to generate seats", err)
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, h.Logger, "failed to commit transaction", err)
	}
	committed = true
	h.Logger.Info("event created", zap.Uint64("event_id", e.ID), zap.Int("seats", e.TotalSeats))
	return c.JSON(http.StatusCreated, e)
}

// List returns every event ordered by date.
func (h *EventHandler) List(c echo.Context) error {
	events, err := h.Events.List(c.Request().Context())
	if err != nil {
		return internalError(c, h.Logger, "failed to list events", err)
	}
	return c.JSON(http.StatusOK, events)
}

// Search filters by city, type, title fragment (q) and an inclusive date
// range given as RFC 3339 (from, to).  A reversed range is swapped.
func (h *EventHandler) Search(c echo.Context) error {
	f := repository.EventFilter{
		City:  strings.TrimSpace(c.QueryParam("city")),
		Type:  strings.TrimSpace(c.QueryParam("type")),
		Query: strings.TrimSpace(c.QueryParam("q")),
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := strings.TrimSpace(c.QueryParam(name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest(c, name+" must be an RFC 3339 timestamp")
		}
		*dst = &t
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		f.From, f.To = f.To, f.From
	}
	events, err := h.Events.Search(c.Request().Context(), f)
	if err != nil {
		return internalError(c, h.Logger, "failed to search events", err)
	}
	return c.JSON(http.StatusOK, events)
}

type seatView struct {
	ID     uint64 `json:"id"`
	Label  string `json:"label"`
	Row    string `json:"row"`
	Number int    `json:"number"`
	Sold   bool   `json:"sold"`
}

// SeatMap returns the seats of an event with availability.
func (h *EventHandler) SeatMap(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	ctx := c.Request().Context()
	if _, err := h.Events.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "NOT_FOUND", "message": "event not found"})
		}
		return internalError(c, h.Logger, "failed to load event", err)
	}
	seats, err := h.Inventory.SeatMap(ctx, id)
	if err != nil {
		return internalError(c, h.Logger, "failed to load seats", err)
	}
	out := make([]seatView, 0, len(seats))
	available := 0
	for _, s := range seats {
		out = append(out, seatView{ID: s.ID, Label: s.Label(), Row: s.Row, Number: s.Number, Sold: s.Sold})
		if !s.Sold {
			available++
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"eventId": id, "available": available, "seats": out})
}

// Report returns the sales report of an event.  X-Cache tells whether it
// was served from Redis.
func (h *EventHandler) Report(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	r, cached, err := h.Reports.ForEvent(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, report.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "NOT_FOUND", "message": "event not found"})
		}
		return internalError(c, h.Logger, "failed to build report", err)
	}
	if cached {
		c.Response().Header().Set("X-Cache", "HIT")
	} else {
		c.Response().Header().Set("X-Cache", "MISS")
	}
	return c.JSON(http.StatusOK, r)
}
