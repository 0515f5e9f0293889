package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// EventRepo provides access to the events table.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the handle so callers can open transactions spanning several
// repositories.
func (r *EventRepo) DB() *sql.DB { return r.db }

const eventColumns = `id, title, description, city, venue, type, date_time, total_seats, price_cents, version, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (model.Event, error) {
	var e model.Event
	err := s.Scan(&e.ID, &e.Title, &e.Description, &e.City, &e.Venue, &e.Type,
		&e.DateTime, &e.TotalSeats, &e.PriceCents, &e.Version, &e.CreatedAt)
	return e, err
}

// CreateTx inserts the event and fills in its ID.  Version starts at 0.
func (r *EventRepo) CreateTx(ctx context.Context, tx *sql.Tx, e *model.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (title, description, city, venue, type, date_time, total_seats, price_cents, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		e.Title, e.Description, e.City, e.Venue, e.Type, e.DateTime.UTC(), e.TotalSeats, e.PriceCents, e.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	e.Version = 0
	return nil
}

// GetByID returns ErrNotFound when the event does not exist.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

// GetByIDTx reads the event inside tx.
func (r *EventRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Event, error) {
	e, err := scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

// UpdatePrice writes a new price if the row still carries version.
// ErrConflict means someone else changed the event first.
func (r *EventRepo) UpdatePrice(ctx context.Context, id uint64, price model.Cents, version uint32) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET price_cents = ?, version = version + 1 WHERE id = ? AND version = ?`,
		price, id, version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// List returns all events ordered by start time.
func (r *EventRepo) List(ctx context.Context) ([]model.Event, error) {
	return r.query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY date_time ASC, id ASC`)
}

// EventFilter narrows Search.  Empty fields are ignored; From/To bound
// date_time inclusively.
type EventFilter struct {
	City  string
	Type  string
	Query string
	From  *time.Time
	To    *time.Time
}

// Search filters events by city, type, title fragment and date range.
func (r *EventRepo) Search(ctx context.Context, f EventFilter) ([]model.Event, error) {
	where := []string{}
	args := []any{}
	if f.City != "" {
		where = append(where, "LOWER(city) = ?")
		args = append(args, strings.ToLower(f.City))
	}
	if f.Type != "" {
		where = append(where, "LOWER(type) = ?")
		args = append(args, strings.ToLower(f.Type))
	}
	if f.Query != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Query)+"%")
	}
	if f.From != nil {
		where = append(where, "date_time >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "date_time <= ?")
		args = append(args, f.To.UTC())
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	return r.query(ctx, `SELECT `+eventColumns+` FROM events WHERE `+cond+` ORDER BY date_time ASC, id ASC`, args...)
}

func (r *EventRepo) query(ctx context.Context, q string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
