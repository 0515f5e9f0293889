// Package report builds per-event sales summaries from the ticket ledger
// and caches them in Redis until the next sale or cancellation.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// ErrEventNotFound is returned for an unknown event id.
var ErrEventNotFound = errors.New("event not found")

// SalesReport summarises one event.
type SalesReport struct {
	EventID         uint64      `json:"eventId"`
	Title           string      `json:"title"`
	City            string      `json:"city"`
	Venue           string      `json:"venue"`
	DateTime        time.Time   `json:"dateTime"`
	TotalSeats      int         `json:"totalSeats"`
	Sold            int         `json:"sold"`
	Remaining       int         `json:"remaining"`
	SeatsFlagged    int         `json:"seatsFlaggedSold"`
	CurrentPrice    model.Cents `json:"currentPrice"`
	Revenue         model.Cents `json:"revenue"`
	Tickets         int         `json:"tickets"`
	SoldLast24Hours int         `json:"soldLast24Hours"`
	GeneratedAt     time.Time   `json:"generatedAt"`
}

// Service computes reports.  With a nil Redis client every call reads the
// database.
type Service struct {
	events  *repository.EventRepo
	tickets *repository.TicketRepo
	seats   *repository.SeatRepo
	rdb     *redis.Client
	ttl     time.Duration
	prefix  string
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(events *repository.EventRepo, tickets *repository.TicketRepo, seats *repository.SeatRepo, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		events:  events,
		tickets: tickets,
		seats:   seats,
		rdb:     rdb,
		ttl:     ttl,
		prefix:  "sales_report",
		logger:  logger.Named("report"),
		now:     time.Now,
	}
}

func (s *Service) key(eventID uint64) string {
	return s.prefix + ":" + strconv.FormatUint(eventID, 10)
}

// ForEvent returns the report and whether it came from the cache.
func (s *Service) ForEvent(ctx context.Context, eventID uint64) (SalesReport, bool, error) {
	if s.rdb != nil {
		if b, err := s.rdb.Get(ctx, s.key(eventID)).Bytes(); err == nil {
			var r SalesReport
			if err := json.Unmarshal(b, &r); err == nil {
				return r, true, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("report cache read failed", zap.Uint64("event_id", eventID), zap.Error(err))
		}
	}
	r, err := s.build(ctx, eventID)
	if err != nil {
		return SalesReport{}, false, err
	}
	if s.rdb != nil {
		if b, err := json.Marshal(r); err == nil {
			if err := s.rdb.SetEx(ctx, s.key(eventID), b, s.ttl).Err(); err != nil {
				s.logger.Warn("report cache write failed", zap.Uint64("event_id", eventID), zap.Error(err))
			}
		}
	}
	return r, false, nil
}

func (s *Service) build(ctx context.Context, eventID uint64) (SalesReport, error) {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return SalesReport{}, ErrEventNotFound
		}
		return SalesReport{}, fmt.Errorf("load event: %w", err)
	}
	sold, err := s.tickets.SumQuantity(ctx, eventID)
	if err != nil {
		return SalesReport{}, fmt.Errorf("sum sold: %w", err)
	}
	revenue, err := s.tickets.Revenue(ctx, eventID)
	if err != nil {
		return SalesReport{}, fmt.Errorf("sum revenue: %w", err)
	}
	count, err := s.tickets.CountByEvent(ctx, eventID)
	if err != nil {
		return SalesReport{}, fmt.Errorf("count tickets: %w", err)
	}
	flagged, err := s.seats.CountSold(ctx, eventID)
	if err != nil {
		return SalesReport{}, fmt.Errorf("count sold seats: %w", err)
	}
	now := s.now().UTC().Truncate(time.Second)
	sold24h, err := s.tickets.SumQuantityBetween(ctx, eventID, now.Add(-24*time.Hour), now)
	if err != nil {
		return SalesReport{}, fmt.Errorf("sum 24h: %w", err)
	}
	if flagged != sold {
		s.logger.Warn("seat flags and ledger disagree",
			zap.Uint64("event_id", eventID), zap.Int("ledger_sold", sold), zap.Int("seats_sold", flagged))
	}
	occ := model.NewOccupancy(e.TotalSeats, sold)
	return SalesReport{
		EventID:         e.ID,
		Title:           e.Title,
		City:            e.City,
		Venue:           e.Venue,
		DateTime:        e.DateTime,
		TotalSeats:      occ.TotalSeats,
		Sold:            occ.Sold,
		Remaining:       occ.Remaining,
		SeatsFlagged:    flagged,
		CurrentPrice:    e.PriceCents,
		Revenue:         revenue,
		Tickets:         count,
		SoldLast24Hours: sold24h,
		GeneratedAt:     now,
	}, nil
}

// Evict drops the cached report of an event.
func (s *Service) Evict(ctx context.Context, eventID uint64) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, s.key(eventID)).Err(); err != nil {
		s.logger.Warn("report cache evict failed", zap.Uint64("event_id", eventID), zap.Error(err))
	}
}
