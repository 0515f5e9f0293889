package booking

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/retry"
	"github.com/iliyamo/event-ticketing/internal/testutil"
)

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []queue.TicketPurchased
	err  error
}

func (n *captureNotifier) Emit(msg queue.TicketPurchased) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *captureNotifier) all() []queue.TicketPurchased {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]queue.TicketPurchased(nil), n.msgs...)
}

type captureEvicter struct {
	mu  sync.Mutex
	ids []uint64
}

func (e *captureEvicter) Evict(_ context.Context, eventID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, eventID)
}

type fixture struct {
	db      *sql.DB
	events  *repository.EventRepo
	seats   *repository.SeatRepo
	tickets *repository.TicketRepo
	users   *repository.UserRepo
	inv     *Inventory
	ledger  *Ledger
	coord   *Coordinator
	sleeps  *sleepLog
	notes   *captureNotifier
	evicted *captureEvicter
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	logger := zaptest.NewLogger(t)
	f := &fixture{
		db:      db,
		events:  repository.NewEventRepo(db),
		seats:   repository.NewSeatRepo(db),
		tickets: repository.NewTicketRepo(db),
		users:   repository.NewUserRepo(db),
		sleeps:  &sleepLog{},
		notes:   &captureNotifier{},
		evicted: &captureEvicter{},
	}
	policy := retry.Policy{MaxAttempts: MaxAttempts, Backoff: retry.Linear(BackoffStep), Sleep: f.sleeps.sleep}
	f.inv = NewInventory(f.seats)
	f.ledger = NewLedger(db, f.tickets, f.inv, policy, logger)
	all := append([]Option{
		WithPolicy(policy),
		WithNotifier(f.notes),
		WithEvicter(f.evicted),
		WithFallbackEmail("fallback@example.com"),
	}, opts...)
	f.coord = NewCoordinator(db, f.events, f.users, f.inv, f.ledger, logger, all...)
	return f
}

func (f *fixture) user(t *testing.T, username, email string) model.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), username, email, "secret", model.RoleUser, bcrypt.MinCost)
	require.NoError(t, err)
	return u
}

func (f *fixture) event(t *testing.T, total int, price model.Cents) (model.Event, []model.Seat) {
	t.Helper()
	ctx := context.Background()
	e := model.Event{
		Title:      "Gala Night",
		City:       "Istanbul",
		Venue:      "Zorlu PSM",
		Type:       "CONCERT",
		DateTime:   time.Date(2026, 12, 31, 20, 0, 0, 0, time.UTC),
		TotalSeats: total,
		PriceCents: price,
	}
	tx, err := f.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, f.events.CreateTx(ctx, tx, &e))
	require.NoError(t, f.seats.GenerateTx(ctx, tx, e.ID, total))
	require.NoError(t, tx.Commit())
	seats, err := f.seats.ListByEvent(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, seats, total)
	return e, seats
}

func (f *fixture) buy(t *testing.T, buyer string, e model.Event, coupon string, seats ...model.Seat) (model.Ticket, error) {
	t.Helper()
	ids := make([]uint64, len(seats))
	for i, s := range seats {
		ids[i] = s.ID
	}
	return f.coord.Purchase(context.Background(), PurchaseRequest{
		EventID: e.ID, Quantity: len(ids), SeatIDs: ids, CouponCode: coupon,
	}, buyer)
}

func (f *fixture) ticketCount(t *testing.T, eventID uint64) int {
	t.Helper()
	n, err := f.tickets.CountByEvent(context.Background(), eventID)
	require.NoError(t, err)
	return n
}

func (f *fixture) price(t *testing.T, eventID uint64) model.Cents {
	t.Helper()
	e, err := f.events.GetByID(context.Background(), eventID)
	require.NoError(t, err)
	return e.PriceCents
}

// conservation asserts ledger-sum and seat-level accounting agree.
func (f *fixture) conservation(t *testing.T, e model.Event) {
	t.Helper()
	ctx := context.Background()
	sold, err := f.tickets.SumQuantity(ctx, e.ID)
	require.NoError(t, err)
	flagged, err := f.seats.CountSold(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, sold, flagged, "sum(ticket.quantity) must equal sold seat flags")
}
