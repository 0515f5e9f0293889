package booking

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

func TestPurchaseRecordsTicketAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.user(t, "ayse", "ayse@example.com")
	e, seats := f.event(t, 10, 10000)

	tk, err := f.buy(t, "ayse", e, "", seats[0], seats[1])
	require.NoError(t, err)
	assert.NotZero(t, tk.ID)
	assert.Equal(t, e.ID, tk.EventID)
	assert.Equal(t, "ayse", tk.Username)
	assert.Equal(t, 2, tk.Quantity)
	assert.Equal(t, model.Cents(10000), tk.PriceCents)

	after, err := f.seats.ListByEvent(context.Background(), e.ID)
	require.NoError(t, err)
	for i, s := range after {
		if i < 2 {
			assert.True(t, s.Sold, s.Label())
			require.NotNil(t, s.TicketID)
			assert.Equal(t, tk.ID, *s.TicketID)
			assert.Equal(t, uint32(1), s.Version)
		} else {
			assert.False(t, s.Sold, s.Label())
		}
	}

	msgs := f.notes.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, queue.TicketPurchased{
		TicketID:        tk.ID,
		EventID:         e.ID,
		Username:        "ayse",
		EventTitle:      "Gala Night",
		Quantity:        2,
		TotalPrice:      20000,
		Email:           "ayse@example.com",
		RemainingSeats:  8,
		SoldLast24Hours: 2,
	}, msgs[0])
	assert.Equal(t, []uint64{e.ID}, f.evicted.ids)
	f.conservation(t, e)
}

func TestPurchaseNotificationUsesFallbackEmail(t *testing.T) {
	f := newFixture(t)
	f.user(t, "mert", "")
	e, seats := f.event(t, 10, 5000)

	_, err := f.buy(t, "mert", e, "", seats[3])
	require.NoError(t, err)
	msgs := f.notes.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "fallback@example.com", msgs[0].Email)
}

func TestPurchaseSurvivesNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.notes.err = queue.ErrQueueFull
	f.user(t, "ayse", "")
	e, seats := f.event(t, 10, 5000)

	tk, err := f.buy(t, "ayse", e, "", seats[0])
	require.NoError(t, err)
	assert.NotZero(t, tk.ID)
	assert.Equal(t, 1, f.ticketCount(t, e.ID))
}

func TestPurchaseValidation(t *testing.T) {
	f := newFixture(t)
	f.user(t, "ayse", "")
	e, seats := f.event(t, 10, 10000)
	other, otherSeats := f.event(t, 10, 10000)

	tests := []struct {
		name  string
		req   PurchaseRequest
		buyer string
		want  Code
	}{
		{name: "zero quantity", req: PurchaseRequest{EventID: e.ID, Quantity: 0, SeatIDs: []uint64{seats[0].ID}}, buyer: "ayse", want: CodeInvalidQuantity},
		{name: "negative quantity", req: PurchaseRequest{EventID: e.ID, Quantity: -1, SeatIDs: []uint64{seats[0].ID}}, buyer: "ayse", want: CodeInvalidQuantity},
		{name: "no seats", req: PurchaseRequest{EventID: e.ID, Quantity: 1}, buyer: "ayse", want: CodeNoSeatsSelected},
		{name: "quantity and seats differ", req: PurchaseRequest{EventID: e.ID, Quantity: 2, SeatIDs: []uint64{seats[0].ID}}, buyer: "ayse", want: CodeSeatCountMismatch},
		{name: "duplicate seat ids", req: PurchaseRequest{EventID: e.ID, Quantity: 2, SeatIDs: []uint64{seats[0].ID, seats[0].ID}}, buyer: "ayse", want: CodeSeatCountMismatch},
		{name: "unknown buyer", req: PurchaseRequest{EventID: e.ID, Quantity: 1, SeatIDs: []uint64{seats[0].ID}}, buyer: "ghost", want: CodeNotFound},
		{name: "unknown event", req: PurchaseRequest{EventID: 9999, Quantity: 1, SeatIDs: []uint64{seats[0].ID}}, buyer: "ayse", want: CodeNotFound},
		{name: "unknown seat", req: PurchaseRequest{EventID: e.ID, Quantity: 1, SeatIDs: []uint64{424242}}, buyer: "ayse", want: CodeNotFound},
		{name: "seat of another event", req: PurchaseRequest{EventID: e.ID, Quantity: 2, SeatIDs: []uint64{seats[0].ID, otherSeats[0].ID}}, buyer: "ayse", want: CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.Purchase(context.Background(), tt.req, tt.buyer)
			require.Error(t, err)
			assert.Equal(t, tt.want, CodeOf(err))
		})
	}
	assert.Zero(t, f.ticketCount(t, e.ID))
	assert.Zero(t, f.ticketCount(t, other.ID))
	f.conservation(t, e)
	f.conservation(t, other)
}

func TestCouponCap(t *testing.T) {
	f := newFixture(t)
	f.user(t, "ayse", "")
	e, seats := f.event(t, 20, 10000)

	_, err := f.buy(t, "ayse", e, "YILBASI", seats[0], seats[1], seats[2])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuantityLimitExceeded)
	assert.Zero(t, f.ticketCount(t, e.ID))

	tk, err := f.buy(t, "ayse", e, "YILBASI", seats[0], seats[1])
	require.NoError(t, err)
	assert.Equal(t, model.Cents(8000), tk.PriceCents)
	assert.Equal(t, 2, tk.Quantity)
	f.conservation(t, e)
}

func TestNoCouponCap(t *testing.T) {
	f := newFixture(t)
	f.user(t, "ayse", "")
	e, seats := f.event(t, 20, 10000)

	_, err := f.buy(t, "ayse", e, "", seats[:7]...)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuantityLimitExceeded)

	_, err = f.buy(t, "ayse", e, "NOT-A-COUPON", seats[:7]...)
	assert.ErrorIs(t, err, ErrQuantityLimitExceeded)

	tk, err := f.buy(t, "ayse", e, "", seats[:6]...)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(10000), tk.PriceCents)
	assert.Equal(t, 6, tk.Quantity)
	f.conservation(t, e)
}

func TestAlreadySoldIsRejectedEveryTime(t *testing.T) {
	f := newFixture(t)
	f.user(t, "ayse", "")
	f.user(t, "mert", "")
	e, seats := f.event(t, 10, 10000)

	_, err := f.buy(t, "ayse", e, "", seats[4])
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.buy(t, "mert", e, "", seats[5], seats[4])
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAlreadySold)
		var be *Error
		require.ErrorAs(t, err, &be)
		assert.Equal(t, seats[4].ID, be.SeatID)
		assert.Contains(t, be.Message, "A5")
	}
	assert.Equal(t, 1, f.ticketCount(t, e.ID))

	after, err := f.seats.ListByEvent(context.Background(), e.ID)
	require.NoError(t, err)
	assert.False(t, after[5].Sold, "no partial claim may survive")
	assert.Empty(t, f.sleeps.waits, "already sold is not retried")
	f.conservation(t, e)
}

func TestDynamicPricing(t *testing.T) {
	f := newFixture(t)
	f.user(t, "ayse", "")
	e, seats := f.event(t, 10, 10000)

	_, err := f.buy(t, "ayse", e, "", seats[:6]...)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(10000), f.price(t, e.ID), "60% occupancy")

	_, err = f.buy(t, "ayse", e, "", seats[6])
	require.NoError(t, err)
	assert.Equal(t, model.Cents(10000), f.price(t, e.ID), "70% occupancy")

	tk, err := f.buy(t, "ayse", e, "", seats[7])
	require.NoError(t, err)
	assert.Equal(t, model.Cents(10000), tk.PriceCents, "the qualifying sale is charged the old price")
	assert.Equal(t, model.Cents(11000), f.price(t, e.ID), "80% occupancy raises the price")

	tk, err = f.buy(t, "ayse", e, "", seats[8])
	require.NoError(t, err)
	assert.Equal(t, model.Cents(11000), tk.PriceCents)
	assert.Equal(t, model.Cents(12100), f.price(t, e.ID), "every qualifying sale raises again")

	got, err := f.events.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got.Version)
}

// claimerFunc adapts a function to SeatClaimer.
type claimerFunc func(ctx context.Context, tx *sql.Tx, eventID uint64, seatIDs []uint64) (ClaimResult, error)

func (f claimerFunc) Claim(ctx context.Context, tx *sql.Tx, eventID uint64, seatIDs []uint64) (ClaimResult, error) {
	return f(ctx, tx, eventID, seatIDs)
}

func TestRetryBound(t *testing.T) {
	var calls atomic.Int32
	alwaysConflict := claimerFunc(func(context.Context, *sql.Tx, uint64, []uint64) (ClaimResult, error) {
		calls.Add(1)
		return ClaimResult{}, &Error{Code: CodeConflict, Err: repository.ErrConflict}
	})
	f := newFixture(t, WithSeatClaimer(alwaysConflict))
	f.user(t, "ayse", "")
	e, seats := f.event(t, 10, 10000)

	_, err := f.buy(t, "ayse", e, "", seats[0])
	require.Error(t, err)
	assert.Equal(t, CodeRetryExhausted, CodeOf(err))
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, int32(MaxAttempts), calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, f.sleeps.waits)
	assert.Zero(t, f.ticketCount(t, e.ID))
	assert.Empty(t, f.notes.all())
	f.conservation(t, e)
}

func TestConflictThenSuccess(t *testing.T) {
	var calls atomic.Int32
	var f *fixture
	flaky := claimerFunc(func(ctx context.Context, tx *sql.Tx, eventID uint64, ids []uint64) (ClaimResult, error) {
		if calls.Add(1) == 1 {
			return ClaimResult{}, &Error{Code: CodeConflict, Err: repository.ErrConflict}
		}
		return f.inv.Claim(ctx, tx, eventID, ids)
	})
	f = newFixture(t, WithSeatClaimer(flaky))
	f.user(t, "ayse", "")
	e, seats := f.event(t, 10, 10000)

	tk, err := f.buy(t, "ayse", e, "", seats[0], seats[1])
	require.NoError(t, err)
	assert.Equal(t, 2, tk.Quantity)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, f.sleeps.waits)
	assert.Equal(t, 1, f.ticketCount(t, e.ID))
	f.conservation(t, e)
}

func TestStaleSeatVersionIsAConflict(t *testing.T) {
	var f *fixture
	// Another writer bumps the seat between our read and our write.
	racing := claimerFunc(func(ctx context.Context, tx *sql.Tx, eventID uint64, ids []uint64) (ClaimResult, error) {
		if _, err := tx.ExecContext(ctx, `UPDATE seats SET version = version + 1 WHERE id = ?`, ids[0]); err != nil {
			return ClaimResult{}, err
		}
		stale, err := f.seats.GetManyTx(ctx, tx, ids)
		if err != nil {
			return ClaimResult{}, err
		}
		stale[0].Version--
		if err := f.seats.MarkSoldTx(ctx, tx, stale[0]); err != nil {
			return ClaimResult{}, storeError("claim seat", err)
		}
		return ClaimResult{}, errors.New("unreachable")
	})
	f = newFixture(t, WithSeatClaimer(racing))
	f.user(t, "ayse", "")
	e, seats := f.event(t, 10, 10000)

	_, err := f.buy(t, "ayse", e, "", seats[0])
	assert.Equal(t, CodeRetryExhausted, CodeOf(err))

	// every attempt rolled back, including the version bumps
	after, err := f.seats.ListByEvent(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), after[0].Version)
	assert.False(t, after[0].Sold)
}

// The test store runs on a single connection, so these purchases are
// serialised: losers see the winner's commit and fail with ALREADY_SOLD.
// TestLostSeatRaceRetriesWithFreshRead covers the version race itself.
func TestExclusivityUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	const buyers = 12
	for i := 0; i < buyers; i++ {
		f.user(t, "buyer"+string(rune('a'+i)), "")
	}
	e, seats := f.event(t, 10, 10000)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		results []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.coord.Purchase(context.Background(), PurchaseRequest{
				EventID: e.ID, Quantity: 2, SeatIDs: []uint64{seats[0].ID, seats[1+i%9].ID},
			}, "buyer"+string(rune('a'+i)))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			results = append(results, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range results {
		code := CodeOf(err)
		assert.True(t, code == CodeAlreadySold || code == CodeRetryExhausted, "unexpected error %v", err)
	}
	assert.Equal(t, 1, f.ticketCount(t, e.ID))
	f.conservation(t, e)
}

func TestLostSeatRaceRetriesWithFreshRead(t *testing.T) {
	var (
		calls atomic.Int32
		f     *fixture
		stale []model.Seat
	)
	// The first attempt writes from rows read before a rival committed,
	// like a reader that lost the race on a second connection.
	loser := claimerFunc(func(ctx context.Context, tx *sql.Tx, eventID uint64, ids []uint64) (ClaimResult, error) {
		if calls.Add(1) == 1 {
			if err := f.seats.MarkSoldTx(ctx, tx, stale[0]); err != nil {
				return ClaimResult{}, storeError("claim seat", err)
			}
			return ClaimResult{}, errors.New("stale write must not succeed")
		}
		return f.inv.Claim(ctx, tx, eventID, ids)
	})
	f = newFixture(t, WithSeatClaimer(loser))
	f.user(t, "ayse", "")
	f.user(t, "mert", "")
	e, seats := f.event(t, 10, 10000)
	stale = []model.Seat{seats[4]}

	rival := NewCoordinator(f.db, f.events, f.users, f.inv, f.ledger, zap.NewNop())
	won, err := rival.Purchase(context.Background(), PurchaseRequest{EventID: e.ID, Quantity: 1, SeatIDs: []uint64{seats[4].ID}}, "mert")
	require.NoError(t, err)

	_, err = f.buy(t, "ayse", e, "", seats[4])
	require.Error(t, err)
	assert.Equal(t, CodeAlreadySold, CodeOf(err), "the retry reads the committed sale")
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, seats[4].ID, be.SeatID)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, f.sleeps.waits)

	after, err := f.seats.ListByEvent(context.Background(), e.ID)
	require.NoError(t, err)
	require.NotNil(t, after[4].TicketID)
	assert.Equal(t, won.ID, *after[4].TicketID)
	assert.Equal(t, 1, f.ticketCount(t, e.ID))
	f.conservation(t, e)
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture(t)
	f.user(t, "Ayse", "")
	e, seats := f.event(t, 10, 10000)
	ctx := context.Background()

	tk, err := f.buy(t, "Ayse", e, "", seats[0], seats[1])
	require.NoError(t, err)

	err = f.coord.Cancel(ctx, tk.ID, Actor{Username: "mert", Roles: []string{model.RoleUser}})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.tickets.GetByID(ctx, tk.ID)
	require.NoError(t, err, "ticket row must be untouched")
	f.conservation(t, e)

	err = f.coord.Cancel(ctx, 9999, Actor{Username: "Ayse"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.coord.Cancel(ctx, tk.ID, Actor{Username: "ayse", Roles: []string{model.RoleUser}}))
	_, err = f.tickets.GetByID(ctx, tk.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, []uint64{e.ID, e.ID}, f.evicted.ids)
	f.conservation(t, e)
}

func TestAdminCancelReleasesSeatsForResale(t *testing.T) {
	f := newFixture(t)
	f.user(t, "ayse", "")
	f.user(t, "mert", "")
	e, seats := f.event(t, 10, 10000)
	ctx := context.Background()

	tk, err := f.buy(t, "ayse", e, "", seats[2], seats[3])
	require.NoError(t, err)
	require.NoError(t, f.coord.Cancel(ctx, tk.ID, Actor{Username: "root", Roles: []string{"ROLE_ADMIN"}}))

	occ, err := f.ledger.Occupancy(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, model.Occupancy{TotalSeats: 10, Sold: 0, Remaining: 10}, occ)
	f.conservation(t, e)

	again, err := f.buy(t, "mert", e, "", seats[3])
	require.NoError(t, err)
	assert.Equal(t, 1, again.Quantity)
	f.conservation(t, e)

	mine, err := f.ledger.ListByUsername(ctx, "mert")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, again.ID, mine[0].ID)
}

func TestConservationOverMixedHistory(t *testing.T) {
	f := newFixture(t)
	f.user(t, "ayse", "")
	f.user(t, "mert", "")
	e, seats := f.event(t, 25, 2500)
	ctx := context.Background()
	admin := Actor{Username: "admin", Roles: []string{model.RoleAdmin}}

	t1, err := f.buy(t, "ayse", e, "", seats[0], seats[1], seats[2])
	require.NoError(t, err)
	t2, err := f.buy(t, "mert", e, "YILBASI", seats[10], seats[11])
	require.NoError(t, err)
	_, err = f.buy(t, "mert", e, "", seats[1])
	require.ErrorIs(t, err, ErrAlreadySold)
	f.conservation(t, e)

	require.NoError(t, f.coord.Cancel(ctx, t1.ID, admin))
	f.conservation(t, e)
	_, err = f.buy(t, "mert", e, "", seats[1], seats[2], seats[20], seats[24])
	require.NoError(t, err)
	require.NoError(t, f.coord.Cancel(ctx, t2.ID, Actor{Username: "mert"}))
	f.conservation(t, e)

	occ, err := f.ledger.Occupancy(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, 4, occ.Sold)
	assert.Equal(t, 21, occ.Remaining)
}
