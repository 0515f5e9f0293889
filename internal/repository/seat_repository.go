package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// SeatsPerRow is the width of a generated seating row.
const SeatsPerRow = 10

// SeatRepo handles persistence for seats.  Every state change is a
// compare-and-swap on the version column.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo returns a new SeatRepo.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// RowLabel converts a zero-based row index to A, B, ... Z, AA, AB ...
func RowLabel(i int) string {
	if i < 0 {
		return ""
	}
	res := []rune{}
	for {
		res = append(res, rune('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for l, r := 0, len(res)-1; l < r; l, r = l+1, r-1 {
		res[l], res[r] = res[r], res[l]
	}
	return string(res)
}

// GenerateTx inserts total seats for the event, SeatsPerRow per row.  Rows
// are inserted in batches of one row per statement.
func (r *SeatRepo) GenerateTx(ctx context.Context, tx *sql.Tx, eventID uint64, total int) error {
	for row := 0; row*SeatsPerRow < total; row++ {
		label := RowLabel(row)
		query := `INSERT INTO seats (event_id, row_label, number, sold, version) VALUES `
		args := make([]any, 0, SeatsPerRow*3)
		for n := 1; n <= SeatsPerRow && row*SeatsPerRow+n <= total; n++ {
			if n > 1 {
				query += ","
			}
			query += "(?, ?, ?, 0, 0)"
			args = append(args, eventID, label, n)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

const seatColumns = `id, event_id, row_label, number, sold, ticket_id, version`

func scanSeats(rows *sql.Rows) ([]model.Seat, error) {
	defer rows.Close()
	out := []model.Seat{}
	for rows.Next() {
		var (
			s        model.Seat
			ticketID sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.EventID, &s.Row, &s.Number, &s.Sold, &ticketID, &s.Version); err != nil {
			return nil, err
		}
		if ticketID.Valid {
			id := uint64(ticketID.Int64)
			s.TicketID = &id
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByEvent returns the seat map of an event ordered by id, which is
// generation order (row then number).
func (r *SeatRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+seatColumns+` FROM seats WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, err
	}
	return scanSeats(rows)
}

// GetManyTx loads the seats with the given ids.  Missing ids are simply
// absent from the result; callers compare lengths.
func (r *SeatRepo) GetManyTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]model.Seat, error) {
	if len(ids) == 0 {
		return []model.Seat{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := tx.QueryContext(ctx, `SELECT `+seatColumns+` FROM seats WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	return scanSeats(rows)
}

// MarkSoldTx flips an available seat to sold if its version is unchanged.
func (r *SeatRepo) MarkSoldTx(ctx context.Context, tx *sql.Tx, s model.Seat) error {
	return expectOne(tx.ExecContext(ctx,
		`UPDATE seats SET sold = 1, version = version + 1 WHERE id = ? AND version = ? AND sold = 0`,
		s.ID, s.Version))
}

// AttachTx links freshly claimed seats to their ticket.  The seats must
// already be sold inside the same transaction.
func (r *SeatRepo) AttachTx(ctx context.Context, tx *sql.Tx, ticketID uint64, seatIDs []uint64) error {
	if len(seatIDs) == 0 {
		return nil
	}
	args := make([]any, 0, len(seatIDs)+1)
	args = append(args, ticketID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE seats SET ticket_id = ? WHERE sold = 1 AND ticket_id IS NULL AND id IN (`+placeholders(len(seatIDs))+`)`,
		args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(seatIDs) {
		return ErrConflict
	}
	return nil
}

// ListByTicketTx returns the seats held by a ticket.
func (r *SeatRepo) ListByTicketTx(ctx context.Context, tx *sql.Tx, ticketID uint64) ([]model.Seat, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+seatColumns+` FROM seats WHERE ticket_id = ? ORDER BY id`, ticketID)
	if err != nil {
		return nil, err
	}
	return scanSeats(rows)
}

// ReleaseTx returns a sold seat to the pool if its version is unchanged.
func (r *SeatRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, s model.Seat) error {
	return expectOne(tx.ExecContext(ctx,
		`UPDATE seats SET sold = 0, ticket_id = NULL, version = version + 1 WHERE id = ? AND version = ?`,
		s.ID, s.Version))
}

// CountSold counts seats flagged sold for an event.
func (r *SeatRepo) CountSold(ctx context.Context, eventID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seats WHERE event_id = ? AND sold = 1`, eventID).Scan(&n)
	return n, err
}

// expectOne maps a zero-row update to ErrConflict.
func expectOne(res sql.Result, err error) error {
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
