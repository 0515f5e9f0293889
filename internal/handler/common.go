package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/booking"
	"github.com/iliyamo/event-ticketing/internal/middleware"
)

// actorOf builds the explicit identity passed to booking operations.
func actorOf(c echo.Context) booking.Actor {
	a := booking.Actor{Username: middleware.Username(c)}
	if r := middleware.Role(c); r != "" {
		a.Roles = []string{r}
	}
	return a
}

// idParam parses a positive numeric path parameter.
func idParam(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "BAD_REQUEST", "message": msg})
}

func internalError(c echo.Context, logger *zap.Logger, msg string, err error) error {
	logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL", "message": msg})
}

// statusOf maps booking error kinds to HTTP statuses.
func statusOf(k booking.Kind) int {
	switch k {
	case booking.KindValidation:
		return http.StatusBadRequest
	case booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindAlreadySold, booking.KindConflict:
		return http.StatusConflict
	case booking.KindAuthorization:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// bookingError renders a booking.Error as {"error": CODE, "message": ...};
// anything else is a 500.
func bookingError(c echo.Context, logger *zap.Logger, err error) error {
	var be *booking.Error
	if !errors.As(err, &be) {
		return internalError(c, logger, "booking failed", err)
	}
	body := echo.Map{"error": string(be.Code), "message": be.Error()}
	if be.SeatID != 0 {
		body["seatId"] = be.SeatID
	}
	return c.JSON(statusOf(be.Code.Kind()), body)
}
