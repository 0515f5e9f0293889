package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// SeatClaimer moves seats from available to sold inside a transaction.
type SeatClaimer interface {
	Claim(ctx context.Context, tx *sql.Tx, eventID uint64, seatIDs []uint64) (ClaimResult, error)
}

// ClaimResult lists the seats a successful claim marked sold, in the
// order they were requested.
type ClaimResult struct {
	EventID uint64
	Seats   []model.Seat
}

// SeatIDs returns the ids of the claimed seats.
func (r ClaimResult) SeatIDs() []uint64 {
	ids := make([]uint64, len(r.Seats))
	for i, s := range r.Seats {
		ids[i] = s.ID
	}
	return ids
}

// Inventory is the seat-level state of all events.  It never caches: each
// call reads the rows it is about to write inside the caller's
// transaction.
type Inventory struct {
	seats *repository.SeatRepo
}

func NewInventory(seats *repository.SeatRepo) *Inventory {
	return &Inventory{seats: seats}
}

// Claim marks every requested seat sold or none of them.  Unknown seats
// or seats of another event fail with NOT_FOUND, the first sold seat in
// request order with ALREADY_SOLD, and a lost version race with CONFLICT.
// On any error the caller must roll back tx.
func (inv *Inventory) Claim(ctx context.Context, tx *sql.Tx, eventID uint64, seatIDs []uint64) (ClaimResult, error) {
	if len(seatIDs) == 0 {
		return ClaimResult{}, newError(CodeNoSeatsSelected, "no seats selected")
	}
	rows, err := inv.seats.GetManyTx(ctx, tx, seatIDs)
	if err != nil {
		return ClaimResult{}, storeError("load seats", err)
	}
	byID := make(map[uint64]model.Seat, len(rows))
	for _, s := range rows {
		if s.EventID == eventID {
			byID[s.ID] = s
		}
	}
	if len(byID) != len(seatIDs) {
		for _, id := range seatIDs {
			if _, ok := byID[id]; !ok {
				return ClaimResult{}, newError(CodeNotFound, "seat %d not found for event %d", id, eventID)
			}
		}
		return ClaimResult{}, newError(CodeNotFound, "requested %d seats, found %d", len(seatIDs), len(byID))
	}

	claimed := make([]model.Seat, len(seatIDs))
	for i, id := range seatIDs {
		s := byID[id]
		if s.Sold {
			return ClaimResult{}, &Error{
				Code:    CodeAlreadySold,
				Message: fmt.Sprintf("seat %s is already sold", s.Label()),
				SeatID:  s.ID,
			}
		}
		claimed[i] = s
	}

	// Write in id order so concurrent claims over overlapping seats take
	// row locks in the same order.
	order := append([]model.Seat(nil), claimed...)
	sort.Slice(order, func(i, j int) bool { return order[i].ID < order[j].ID })
	for _, s := range order {
		if err := inv.seats.MarkSoldTx(ctx, tx, s); err != nil {
			return ClaimResult{}, storeError("claim seat", err)
		}
	}
	for i := range claimed {
		claimed[i].Sold = true
		claimed[i].Version++
	}
	return ClaimResult{EventID: eventID, Seats: claimed}, nil
}

// Attach links claimed seats to the ticket that paid for them.
func (inv *Inventory) Attach(ctx context.Context, tx *sql.Tx, ticketID uint64, claim ClaimResult) error {
	if err := inv.seats.AttachTx(ctx, tx, ticketID, claim.SeatIDs()); err != nil {
		return storeError("attach seats", err)
	}
	return nil
}

// Release returns every seat held by the ticket to the pool.
func (inv *Inventory) Release(ctx context.Context, tx *sql.Tx, ticketID uint64) ([]model.Seat, error) {
	held, err := inv.seats.ListByTicketTx(ctx, tx, ticketID)
	if err != nil {
		return nil, storeError("load ticket seats", err)
	}
	for i, s := range held {
		if err := inv.seats.ReleaseTx(ctx, tx, s); err != nil {
			return nil, storeError("release seat", err)
		}
		held[i].Sold = false
		held[i].TicketID = nil
		held[i].Version++
	}
	return held, nil
}

// SeatMap returns the current seats of an event.
func (inv *Inventory) SeatMap(ctx context.Context, eventID uint64) ([]model.Seat, error) {
	return inv.seats.ListByEvent(ctx, eventID)
}

// storeError turns version mismatches and lock contention into CONFLICT
// and wraps everything else.
func storeError(op string, err error) error {
	if errors.Is(err, repository.ErrConflict) || repository.IsLockContention(err) {
		return &Error{Code: CodeConflict, Message: op + ": concurrent update", Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
