package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// TicketRepo stores tickets.  Tickets are inserted and deleted, never
// updated.
type TicketRepo struct {
	db *sql.DB
}

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, event_id, username, quantity, price_cents, created_at`

func scanTicket(s rowScanner) (model.Ticket, error) {
	var t model.Ticket
	err := s.Scan(&t.ID, &t.EventID, &t.Username, &t.Quantity, &t.PriceCents, &t.CreatedAt)
	return t, err
}

// CreateTx inserts the ticket and sets its ID.
func (r *TicketRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tickets (event_id, username, quantity, price_cents, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.EventID, t.Username, t.Quantity, t.PriceCents, t.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// GetByIDTx returns ErrNotFound for a missing ticket.
func (r *TicketRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Ticket, error) {
	t, err := scanTicket(tx.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// GetByID is GetByIDTx outside a transaction.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// DeleteTx hard-deletes a ticket.
func (r *TicketRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SumQuantity is the ledger view of sold seats for an event.
func (r *TicketRepo) SumQuantity(ctx context.Context, eventID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM tickets WHERE event_id = ?`, eventID).Scan(&n)
	return n, err
}

// SumQuantityBetween sums quantity of tickets created in [from, to].
func (r *TicketRepo) SumQuantityBetween(ctx context.Context, eventID uint64, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM tickets WHERE event_id = ? AND created_at >= ? AND created_at <= ?`,
		eventID, from.UTC(), to.UTC()).Scan(&n)
	return n, err
}

// Revenue sums quantity * unit price for an event.
func (r *TicketRepo) Revenue(ctx context.Context, eventID uint64) (model.Cents, error) {
	var c model.Cents
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity * price_cents), 0) FROM tickets WHERE event_id = ?`, eventID).Scan(&c)
	return c, err
}

// CountByEvent counts ticket rows, mainly for reporting.
func (r *TicketRepo) CountByEvent(ctx context.Context, eventID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE event_id = ?`, eventID).Scan(&n)
	return n, err
}

// ListByUsername returns a user's tickets, newest first.
func (r *TicketRepo) ListByUsername(ctx context.Context, username string) ([]model.Ticket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE username = ? ORDER BY created_at DESC, id DESC`, username)
}

// ListAll returns every ticket, newest first.
func (r *TicketRepo) ListAll(ctx context.Context) ([]model.Ticket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC, id DESC`)
}

func (r *TicketRepo) list(ctx context.Context, q string, args ...any) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
