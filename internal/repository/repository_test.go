package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/testutil"
)

func seedEvent(t *testing.T, db *sql.DB, title, city, typ string, at time.Time, total int) model.Event {
	t.Helper()
	ctx := context.Background()
	e := model.Event{Title: title, City: city, Venue: "Hall", Type: typ, DateTime: at, TotalSeats: total, PriceCents: 10000}
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, NewEventRepo(db).CreateTx(ctx, tx, &e))
	require.NoError(t, NewSeatRepo(db).GenerateTx(ctx, tx, e.ID, total))
	require.NoError(t, tx.Commit())
	return e
}

func TestRowLabel(t *testing.T) {
	cases := map[int]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA", 701: "ZZ", 702: "AAA"}
	for i, want := range cases {
		assert.Equal(t, want, RowLabel(i), "index %d", i)
	}
	assert.Equal(t, "", RowLabel(-1))
}

func TestGenerateSeats(t *testing.T) {
	db := testutil.OpenDB(t)
	e := seedEvent(t, db, "Gala", "Ankara", "CONCERT", time.Now().UTC(), 23)

	seats, err := NewSeatRepo(db).ListByEvent(context.Background(), e.ID)
	require.NoError(t, err)
	require.Len(t, seats, 23)
	assert.Equal(t, "A1", seats[0].Label())
	assert.Equal(t, "A10", seats[9].Label())
	assert.Equal(t, "B1", seats[10].Label())
	assert.Equal(t, "C3", seats[22].Label())
	for _, s := range seats {
		assert.False(t, s.Sold)
		assert.Nil(t, s.TicketID)
		assert.Equal(t, uint32(0), s.Version)
	}
}

func TestMarkSoldIsCompareAndSwap(t *testing.T) {
	db := testutil.OpenDB(t)
	e := seedEvent(t, db, "Gala", "Ankara", "CONCERT", time.Now().UTC(), 2)
	seats := NewSeatRepo(db)
	ctx := context.Background()

	all, err := seats.ListByEvent(ctx, e.ID)
	require.NoError(t, err)
	first := all[0]

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, seats.MarkSoldTx(ctx, tx, first))
	// same stale version again
	assert.ErrorIs(t, seats.MarkSoldTx(ctx, tx, first), ErrConflict)
	require.NoError(t, tx.Commit())

	n, err := seats.CountSold(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// fresh version but already sold
	fresh, err := seats.ListByEvent(ctx, e.ID)
	require.NoError(t, err)
	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	assert.ErrorIs(t, seats.MarkSoldTx(ctx, tx, fresh[0]), ErrConflict)
}

func TestAttachAndRelease(t *testing.T) {
	db := testutil.OpenDB(t)
	e := seedEvent(t, db, "Gala", "Ankara", "CONCERT", time.Now().UTC(), 3)
	seats := NewSeatRepo(db)
	tickets := NewTicketRepo(db)
	ctx := context.Background()

	all, err := seats.ListByEvent(ctx, e.ID)
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	tk := model.Ticket{EventID: e.ID, Username: "ayse", Quantity: 2, PriceCents: 10000, CreatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, seats.MarkSoldTx(ctx, tx, all[0]))
	require.NoError(t, seats.MarkSoldTx(ctx, tx, all[1]))
	require.NoError(t, tickets.CreateTx(ctx, tx, &tk))
	require.NoError(t, seats.AttachTx(ctx, tx, tk.ID, []uint64{all[0].ID, all[1].ID}))
	// an unsold seat cannot be attached
	assert.ErrorIs(t, seats.AttachTx(ctx, tx, tk.ID, []uint64{all[2].ID}), ErrConflict)
	require.NoError(t, tx.Commit())

	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	held, err := seats.ListByTicketTx(ctx, tx, tk.ID)
	require.NoError(t, err)
	require.Len(t, held, 2)
	for _, s := range held {
		require.NoError(t, seats.ReleaseTx(ctx, tx, s))
		assert.ErrorIs(t, seats.ReleaseTx(ctx, tx, s), ErrConflict)
	}
	require.NoError(t, tickets.DeleteTx(ctx, tx, tk.ID))
	assert.ErrorIs(t, tickets.DeleteTx(ctx, tx, tk.ID), ErrNotFound)
	require.NoError(t, tx.Commit())

	after, err := seats.ListByEvent(ctx, e.ID)
	require.NoError(t, err)
	for _, s := range after {
		assert.False(t, s.Sold)
		assert.Nil(t, s.TicketID)
	}
	assert.Equal(t, uint32(2), after[0].Version)
}

func TestUpdatePriceChecksVersion(t *testing.T) {
	db := testutil.OpenDB(t)
	e := seedEvent(t, db, "Gala", "Ankara", "CONCERT", time.Now().UTC(), 1)
	events := NewEventRepo(db)
	ctx := context.Background()

	require.NoError(t, events.UpdatePrice(ctx, e.ID, 11000, 0))
	assert.ErrorIs(t, events.UpdatePrice(ctx, e.ID, 12000, 0), ErrConflict)

	got, err := events.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(11000), got.PriceCents)
	assert.Equal(t, uint32(1), got.Version)

	_, err = events.GetByID(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchEvents(t *testing.T) {
	db := testutil.OpenDB(t)
	base := time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC)
	seedEvent(t, db, "Jazz Night", "Izmir", "CONCERT", base, 1)
	seedEvent(t, db, "Hamlet", "Istanbul", "THEATRE", base.Add(48*time.Hour), 1)
	seedEvent(t, db, "Rock Fest", "Istanbul", "CONCERT", base.Add(96*time.Hour), 1)
	events := NewEventRepo(db)
	ctx := context.Background()

	titles := func(f EventFilter) []string {
		t.Helper()
		es, err := events.Search(ctx, f)
		require.NoError(t, err)
		out := []string{}
		for _, e := range es {
			out = append(out, e.Title)
		}
		return out
	}
	from := base.Add(24 * time.Hour)
	to := base.Add(72 * time.Hour)

	assert.Equal(t, []string{"Jazz Night", "Hamlet", "Rock Fest"}, titles(EventFilter{}))
	assert.Equal(t, []string{"Hamlet", "Rock Fest"}, titles(EventFilter{City: "istanbul"}))
	assert.Equal(t, []string{"Jazz Night", "Rock Fest"}, titles(EventFilter{Type: "concert"}))
	assert.Equal(t, []string{"Rock Fest"}, titles(EventFilter{Query: "FEST"}))
	assert.Equal(t, []string{"Hamlet"}, titles(EventFilter{From: &from, To: &to}))

	all, err := events.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTicketAggregates(t *testing.T) {
	db := testutil.OpenDB(t)
	e := seedEvent(t, db, "Gala", "Ankara", "CONCERT", time.Now().UTC(), 10)
	tickets := NewTicketRepo(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	insert := func(user string, qty int, price model.Cents, at time.Time) {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		tk := model.Ticket{EventID: e.ID, Username: user, Quantity: qty, PriceCents: price, CreatedAt: at}
		require.NoError(t, tickets.CreateTx(ctx, tx, &tk))
		require.NoError(t, tx.Commit())
	}
	insert("ayse", 2, 10000, now.Add(-48*time.Hour))
	insert("mert", 3, 8000, now.Add(-time.Hour))
	insert("ayse", 1, 11000, now)

	sold, err := tickets.SumQuantity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, sold)

	recent, err := tickets.SumQuantityBetween(ctx, e.ID, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 4, recent)

	rev, err := tickets.Revenue(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(2*10000+3*8000+11000), rev)

	mine, err := tickets.ListByUsername(ctx, "ayse")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, 1, mine[0].Quantity, "newest first")

	all, err := tickets.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := tickets.SumQuantity(ctx, 999)
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestUserRepo(t *testing.T) {
	db := testutil.OpenDB(t)
	users := NewUserRepo(db)
	ctx := context.Background()

	u, err := users.Create(ctx, " ayse ", "Ayse@Example.com", "pw", model.RoleUser, 4)
	require.NoError(t, err)
	assert.Equal(t, "ayse", u.Username)
	assert.Equal(t, "ayse@example.com", u.Email)

	_, err = users.Create(ctx, "ayse", "", "pw", model.RoleUser, 4)
	assert.ErrorIs(t, err, ErrUsernameExists)

	got, err := users.GetByUsername(ctx, "ayse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	byID, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ayse", byID.Username)

	_, err = users.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
