package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/retry"
)

// Ledger is the record of sales.  Sold counts are always aggregated from
// ticket rows, never kept in a counter.
type Ledger struct {
	db        *sql.DB
	tickets   *repository.TicketRepo
	inventory *Inventory
	policy    retry.Policy
	now       func() time.Time
	logger    *zap.Logger
}

// NewLedger builds a ledger.  policy bounds the retries of Cancel when
// releasing seats races with another writer.
func NewLedger(db *sql.DB, tickets *repository.TicketRepo, inventory *Inventory, policy retry.Policy, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:        db,
		tickets:   tickets,
		inventory: inventory,
		policy:    policy,
		now:       time.Now,
		logger:    logger.Named("ledger"),
	}
}

func (l *Ledger) clock() time.Time { return l.now().UTC().Truncate(time.Second) }

// Record inserts a ticket covering the claimed seats at unitPrice and
// links the seats to it.  It runs inside the purchase transaction.
func (l *Ledger) Record(ctx context.Context, tx *sql.Tx, event model.Event, buyer string, unitPrice model.Cents, claim ClaimResult) (model.Ticket, error) {
	t := model.Ticket{
		EventID:    event.ID,
		Username:   buyer,
		Quantity:   len(claim.Seats),
		PriceCents: unitPrice,
		CreatedAt:  l.clock(),
	}
	if err := l.tickets.CreateTx(ctx, tx, &t); err != nil {
		return model.Ticket{}, storeError("insert ticket", err)
	}
	if err := l.inventory.Attach(ctx, tx, t.ID, claim); err != nil {
		return model.Ticket{}, err
	}
	return t, nil
}

// Cancel deletes a ticket on behalf of actor and releases its seats.  Only
// the owner or an administrator may cancel.  It returns the deleted
// ticket.
func (l *Ledger) Cancel(ctx context.Context, ticketID uint64, actor Actor) (model.Ticket, error) {
	res := retry.Do(ctx, l.policy, classify, func(ctx context.Context, _ int) (model.Ticket, error) {
		return l.cancelOnce(ctx, ticketID, actor)
	})
	switch res.Status {
	case retry.Succeeded:
		return res.Value, nil
	case retry.Exhausted:
		return model.Ticket{}, &Error{
			Code:    CodeRetryExhausted,
			Message: fmt.Sprintf("cancel ticket %d: gave up after %d attempts", ticketID, res.Attempts),
			Err:     res.Err,
		}
	}
	return model.Ticket{}, res.Err
}

func (l *Ledger) cancelOnce(ctx context.Context, ticketID uint64, actor Actor) (model.Ticket, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Ticket{}, storeError("begin tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	t, err := l.tickets.GetByIDTx(ctx, tx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Ticket{}, newError(CodeNotFound, "ticket %d not found", ticketID)
		}
		return model.Ticket{}, storeError("load ticket", err)
	}
	if !actor.Owns(t) && !actor.IsAdmin() {
		return model.Ticket{}, newError(CodeForbidden, "ticket %d belongs to another user", ticketID)
	}
	released, err := l.inventory.Release(ctx, tx, ticketID)
	if err != nil {
		return model.Ticket{}, err
	}
	if len(released) != t.Quantity {
		l.logger.Warn("ticket seat link out of step with quantity",
			zap.Uint64("ticket_id", t.ID), zap.Int("quantity", t.Quantity), zap.Int("released", len(released)))
	}
	if err := l.tickets.DeleteTx(ctx, tx, ticketID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Ticket{}, newError(CodeNotFound, "ticket %d not found", ticketID)
		}
		return model.Ticket{}, storeError("delete ticket", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Ticket{}, storeError("commit cancel", err)
	}
	committed = true
	return t, nil
}

// Occupancy aggregates sold seats for the event from the ticket rows.
func (l *Ledger) Occupancy(ctx context.Context, event model.Event) (model.Occupancy, error) {
	sold, err := l.tickets.SumQuantity(ctx, event.ID)
	if err != nil {
		return model.Occupancy{}, fmt.Errorf("sum sold: %w", err)
	}
	return model.NewOccupancy(event.TotalSeats, sold), nil
}

// SoldLast24Hours sums tickets sold for the event in the trailing day.
func (l *Ledger) SoldLast24Hours(ctx context.Context, eventID uint64) (int, error) {
	now := l.clock()
	return l.tickets.SumQuantityBetween(ctx, eventID, now.Add(-24*time.Hour), now)
}

// ListByUsername returns the tickets owned by username.
func (l *Ledger) ListByUsername(ctx context.Context, username string) ([]model.Ticket, error) {
	return l.tickets.ListByUsername(ctx, username)
}

// ListAll returns every ticket.
func (l *Ledger) ListAll(ctx context.Context) ([]model.Ticket, error) {
	return l.tickets.ListAll(ctx)
}

// classify marks CONFLICT as the only retryable outcome.
func classify(err error) retry.Class {
	if errors.Is(err, ErrConflict) {
		return retry.Transient
	}
	return retry.Terminal
}
