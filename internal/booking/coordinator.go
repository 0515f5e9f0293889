// Package booking is the purchase engine: seat claims, the ticket ledger,
// and the coordinator that runs a purchase under bounded optimistic
// retry.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/pricing"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/retry"
)

const (
	// MaxAttempts bounds purchase attempts that lose a version race.
	MaxAttempts = 3
	// BackoffStep is multiplied by the attempt number between attempts.
	BackoffStep = 100 * time.Millisecond
	// afterCommitTimeout bounds the price surge, eviction and notification
	// that follow a committed sale.
	afterCommitTimeout = 10 * time.Second
)

// DefaultPolicy is the retry policy of purchases and cancellations.
func DefaultPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: MaxAttempts, Backoff: retry.Linear(BackoffStep)}
}

// PurchaseRequest is what a buyer asks for.
type PurchaseRequest struct {
	EventID    uint64   `json:"eventId"`
	Quantity   int      `json:"quantity"`
	SeatIDs    []uint64 `json:"seatIds"`
	CouponCode string   `json:"couponCode,omitempty"`
}

// Notifier accepts a notification without blocking.
type Notifier interface {
	Emit(msg queue.TicketPurchased) error
}

// CacheEvicter drops cached aggregates of an event after its sales change.
type CacheEvicter interface {
	Evict(ctx context.Context, eventID uint64)
}

// Coordinator runs purchases and cancellations.
type Coordinator struct {
	db       *sql.DB
	events   *repository.EventRepo
	users    *repository.UserRepo
	seats    SeatClaimer
	ledger   *Ledger
	pricing  pricing.Engine
	notifier Notifier
	evicter  CacheEvicter
	policy   retry.Policy
	fallback string
	logger   *zap.Logger
	tracer   trace.Tracer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p retry.Policy) Option { return func(c *Coordinator) { c.policy = p } }

// WithNotifier sets where committed sales are announced.
func WithNotifier(n Notifier) Option { return func(c *Coordinator) { c.notifier = n } }

// WithEvicter sets the cache to invalidate after sales change.
func WithEvicter(e CacheEvicter) Option { return func(c *Coordinator) { c.evicter = e } }

// WithFallbackEmail is used in notifications for buyers without an email.
func WithFallbackEmail(addr string) Option { return func(c *Coordinator) { c.fallback = addr } }

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option { return func(c *Coordinator) { c.tracer = t } }

// WithSeatClaimer replaces the inventory used for claims.
func WithSeatClaimer(s SeatClaimer) Option { return func(c *Coordinator) { c.seats = s } }

func NewCoordinator(db *sql.DB, events *repository.EventRepo, users *repository.UserRepo, inventory *Inventory, ledger *Ledger, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		db:       db,
		events:   events,
		users:    users,
		seats:    inventory,
		ledger:   ledger,
		policy:   DefaultPolicy(),
		fallback: "test@example.com",
		logger:   logger.Named("booking"),
		tracer:   otel.Tracer("github.com/iliyamo/event-ticketing/internal/booking"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// committed is the outcome of a successful attempt.
type committed struct {
	ticket model.Ticket
	event  model.Event
	quote  pricing.Quote
}

// Purchase validates req, then claims the seats and records the ticket in
// one transaction per attempt.  Attempts that lose a version race are
// retried with fresh reads; every other failure is returned at once.
// Price surge, cache eviction and the notification happen after commit
// and never fail the purchase.
func (c *Coordinator) Purchase(ctx context.Context, req PurchaseRequest, buyer string) (model.Ticket, error) {
	ctx, span := c.tracer.Start(ctx, "booking.purchase", trace.WithAttributes(
		attribute.Int64("event.id", int64(req.EventID)),
		attribute.Int("quantity", req.Quantity),
	))
	defer span.End()

	t, err := c.purchase(ctx, req, buyer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(CodeOf(err)))
		return model.Ticket{}, err
	}
	span.SetAttributes(attribute.Int64("ticket.id", int64(t.ID)))
	span.SetStatus(codes.Ok, "")
	return t, nil
}

func (c *Coordinator) purchase(ctx context.Context, req PurchaseRequest, buyer string) (model.Ticket, error) {
	seatIDs, err := validate(req)
	if err != nil {
		return model.Ticket{}, err
	}
	user, err := c.users.GetByUsername(ctx, buyer)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Ticket{}, newError(CodeNotFound, "user %q not found", buyer)
		}
		return model.Ticket{}, fmt.Errorf("load buyer: %w", err)
	}
	if _, err := c.events.GetByID(ctx, req.EventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Ticket{}, newError(CodeNotFound, "event %d not found", req.EventID)
		}
		return model.Ticket{}, fmt.Errorf("load event: %w", err)
	}

	res := retry.Do(ctx, c.policy, classify, func(ctx context.Context, n int) (committed, error) {
		return c.attempt(ctx, n, req, seatIDs, user.Username)
	})
	switch res.Status {
	case retry.Exhausted:
		c.logger.Warn("purchase gave up",
			zap.Uint64("event_id", req.EventID), zap.String("buyer", buyer),
			zap.Int("attempts", res.Attempts), zap.Error(res.Err))
		return model.Ticket{}, &Error{
			Code:    CodeRetryExhausted,
			Message: fmt.Sprintf("seats kept changing, gave up after %d attempts", res.Attempts),
			Err:     res.Err,
		}
	case retry.Failed:
		return model.Ticket{}, res.Err
	}

	done := res.Value
	c.logger.Info("ticket purchased",
		zap.Uint64("ticket_id", done.ticket.ID),
		zap.Uint64("event_id", done.event.ID),
		zap.String("buyer", user.Username),
		zap.Int("quantity", done.ticket.Quantity),
		zap.Stringer("unit_price", done.quote.UnitPrice),
		zap.String("coupon", done.quote.Coupon),
		zap.Int("attempts", res.Attempts))
	c.afterCommit(ctx, done, user)
	return done.ticket, nil
}

// validate checks the request shape and returns the distinct seat ids in
// request order.
func validate(req PurchaseRequest) ([]uint64, error) {
	if req.Quantity < 1 {
		return nil, newError(CodeInvalidQuantity, "quantity must be at least 1, got %d", req.Quantity)
	}
	if len(req.SeatIDs) == 0 {
		return nil, newError(CodeNoSeatsSelected, "no seats selected")
	}
	seen := make(map[uint64]struct{}, len(req.SeatIDs))
	ids := make([]uint64, 0, len(req.SeatIDs))
	for _, id := range req.SeatIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) != req.Quantity {
		return nil, newError(CodeSeatCountMismatch, "quantity %d does not match %d selected seats", req.Quantity, len(ids))
	}
	return ids, nil
}

func (c *Coordinator) attempt(ctx context.Context, n int, req PurchaseRequest, seatIDs []uint64, buyer string) (committed, error) {
	ctx, span := c.tracer.Start(ctx, "booking.purchase.attempt", trace.WithAttributes(attribute.Int("attempt", n)))
	defer span.End()

	out, err := c.attemptTx(ctx, req, seatIDs, buyer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(CodeOf(err)))
		if errors.Is(err, ErrConflict) {
			c.logger.Debug("purchase attempt conflicted",
				zap.Uint64("event_id", req.EventID), zap.Int("attempt", n), zap.Error(err))
		}
		return committed{}, err
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (c *Coordinator) attemptTx(ctx context.Context, req PurchaseRequest, seatIDs []uint64, buyer string) (committed, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return committed{}, storeError("begin tx", err)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	event, err := c.events.GetByIDTx(ctx, tx, req.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return committed{}, newError(CodeNotFound, "event %d not found", req.EventID)
		}
		return committed{}, storeError("load event", err)
	}
	quote, err := c.pricing.Quote(event.PriceCents, req.Quantity, len(seatIDs), req.CouponCode)
	if err != nil {
		return committed{}, &Error{Code: CodeQuantityLimitExceeded, Message: err.Error(), Err: err}
	}
	claim, err := c.seats.Claim(ctx, tx, event.ID, seatIDs)
	if err != nil {
		return committed{}, err
	}
	ticket, err := c.ledger.Record(ctx, tx, event, buyer, quote.UnitPrice, claim)
	if err != nil {
		return committed{}, err
	}
	if err := tx.Commit(); err != nil {
		return committed{}, storeError("commit purchase", err)
	}
	done = true
	return committed{ticket: ticket, event: event, quote: quote}, nil
}

// afterCommit runs detached from the caller's cancellation: once the sale
// is committed a client hanging up must not skip the surge or the
// notification.
func (c *Coordinator) afterCommit(parent context.Context, done committed, user model.User) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), afterCommitTimeout)
	defer cancel()
	event := done.event
	if surged, err := c.applySurge(ctx, event.ID); err != nil {
		c.logger.Error("dynamic pricing failed", zap.Uint64("event_id", event.ID), zap.Error(err))
	} else if surged.ID != 0 {
		event = surged
	}
	if c.evicter != nil {
		c.evicter.Evict(ctx, event.ID)
	}
	c.notify(ctx, done.ticket, event, user)
}

// applySurge raises the event price when the ledger occupancy reached the
// threshold.  The write is version checked and re-evaluated on conflict.
// It returns the updated event, or a zero event when no change was made.
func (c *Coordinator) applySurge(ctx context.Context, eventID uint64) (model.Event, error) {
	res := retry.Do(ctx, c.policy, classify, func(ctx context.Context, _ int) (model.Event, error) {
		event, err := c.events.GetByID(ctx, eventID)
		if err != nil {
			return model.Event{}, fmt.Errorf("load event: %w", err)
		}
		occ, err := c.ledger.Occupancy(ctx, event)
		if err != nil {
			return model.Event{}, err
		}
		price, raise := c.pricing.Surge(event.PriceCents, occ.Sold, event.TotalSeats)
		if !raise {
			return model.Event{}, nil
		}
		if err := c.events.UpdatePrice(ctx, event.ID, price, event.Version); err != nil {
			return model.Event{}, storeError("update price", err)
		}
		c.logger.Info("event price raised",
			zap.Uint64("event_id", event.ID),
			zap.Stringer("old_price", event.PriceCents),
			zap.Stringer("new_price", price),
			zap.Int("sold", occ.Sold),
			zap.Int("total_seats", event.TotalSeats))
		event.PriceCents = price
		event.Version++
		return event, nil
	})
	if res.Status != retry.Succeeded {
		return model.Event{}, res.Err
	}
	return res.Value, nil
}

// notify builds the notification from fresh aggregates and makes one
// non-blocking hand-off.  Failures are logged only.
func (c *Coordinator) notify(ctx context.Context, t model.Ticket, event model.Event, user model.User) {
	if c.notifier == nil {
		return
	}
	occ, err := c.ledger.Occupancy(ctx, event)
	if err != nil {
		c.logger.Warn("notification skipped: occupancy", zap.Uint64("ticket_id", t.ID), zap.Error(err))
		return
	}
	sold24h, err := c.ledger.SoldLast24Hours(ctx, event.ID)
	if err != nil {
		c.logger.Warn("notification skipped: 24h sales", zap.Uint64("ticket_id", t.ID), zap.Error(err))
		return
	}
	email := user.Email
	if email == "" {
		email = c.fallback
	}
	msg := queue.TicketPurchased{
		TicketID:        t.ID,
		EventID:         event.ID,
		Username:        t.Username,
		EventTitle:      event.Title,
		Quantity:        t.Quantity,
		TotalPrice:      t.Total(),
		Email:           email,
		RemainingSeats:  occ.Remaining,
		SoldLast24Hours: sold24h,
	}
	if err := c.notifier.Emit(msg); err != nil {
		c.logger.Warn("ticket notification dropped", zap.Uint64("ticket_id", t.ID), zap.Error(err))
	}
}

// Cancel deletes a ticket for actor, releases its seats and invalidates
// cached aggregates of the event.
func (c *Coordinator) Cancel(ctx context.Context, ticketID uint64, actor Actor) error {
	ctx, span := c.tracer.Start(ctx, "booking.cancel", trace.WithAttributes(attribute.Int64("ticket.id", int64(ticketID))))
	defer span.End()

	t, err := c.ledger.Cancel(ctx, ticketID, actor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(CodeOf(err)))
		return err
	}
	c.logger.Info("ticket cancelled",
		zap.Uint64("ticket_id", t.ID),
		zap.Uint64("event_id", t.EventID),
		zap.String("owner", t.Username),
		zap.String("actor", actor.Username))
	if c.evicter != nil {
		c.evicter.Evict(ctx, t.EventID)
	}
	return nil
}
