package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/database"
	"github.com/ds124wfegd/ems-booking/internal/database/memory"
	"github.com/ds124wfegd/ems-booking/internal/entity"
	"github.com/ds124wfegd/ems-booking/pkg/gateway"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)

const (
	eventID     = "evt-1"
	organizerID = "org-1"
	vipID       = "vip"
	regularID   = "regular"
)

var (
	alice     = entity.Actor{UserID: "alice", Role: entity.RoleUser}
	bob       = entity.Actor{UserID: "bob", Role: entity.RoleUser}
	carol     = entity.Actor{UserID: "carol", Role: entity.RoleUser}
	admin     = entity.Actor{UserID: "root", Role: entity.RoleAdmin}
	organizer = entity.Actor{UserID: organizerID, Role: entity.RoleOrganizer}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*entity.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n *entity.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) ofType(t entity.NotificationType) []*entity.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Notification
	for _, n := range r.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.BookingEvent
}

func (r *recordingPublisher) PublishBookingEvent(_ context.Context, e entity.BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) types() []entity.BookingEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.BookingEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type mockAlerter struct {
	mock.Mock
}

func (m *mockAlerter) Alert(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) GetStatus(ctx context.Context, orderID string) (*gateway.Notification, error) {
	args := m.Called(ctx, orderID)
	if n := args.Get(0); n != nil {
		return n.(*gateway.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

type mapCache struct {
	mu          sync.Mutex
	entries     map[string][]entity.CategoryAvailability
	hits        int
	invalidated []string
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]entity.CategoryAvailability)}
}

func (c *mapCache) Get(_ context.Context, eventID string) ([]entity.CategoryAvailability, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[eventID]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, eventID string, a []entity.CategoryAvailability) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[eventID] = a
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, eventID)
	c.invalidated = append(c.invalidated, eventID)
	return nil
}

type fixture struct {
	store     *memory.Store
	clock     *testClock
	notifier  *recordingNotifier
	publisher *recordingPublisher
	alerter   *mockAlerter
	gateway   *mockGateway
	cache     *mapCache
	settings  Settings
	svc       *Services
}

func newFixture(t *testing.T, configure ...func(*Settings)) *fixture {
	t.Helper()

	f := &fixture{
		store:     memory.NewStore(),
		clock:     &testClock{now: t0},
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
		alerter:   &mockAlerter{},
		gateway:   &mockGateway{},
		cache:     newMapCache(),
		settings:  DefaultSettings(),
	}
	f.settings.ServerKey = "server-key"
	for _, c := range configure {
		c(&f.settings)
	}

	f.store.AddEvent(entity.Event{
		ID:          eventID,
		Title:       "Jazz Night",
		Date:        t0.Add(30 * 24 * time.Hour),
		OrganizerID: organizerID,
		Categories: []entity.TicketCategory{
			{ID: vipID, Name: "VIP", Price: decimal.RequireFromString("100.00"), Total: 10},
			{ID: regularID, Name: "Regular", Price: decimal.RequireFromString("50.00"), Total: 100},
		},
		PromoCodes: []entity.PromoCode{
			{Code: "EARLY", DiscountPercentage: 20, ExpiryDate: t0.Add(24 * time.Hour), MaxUsage: 5},
			{Code: "OLD", DiscountPercentage: 50, ExpiryDate: t0.Add(-time.Hour), MaxUsage: 100},
			{Code: "GONE", DiscountPercentage: 50, ExpiryDate: t0.Add(24 * time.Hour), MaxUsage: 1, UsedCount: 1},
		},
	})

	f.svc = NewServices(Dependencies{
		UoW:       f.store,
		Notifier:  f.notifier,
		Publisher: f.publisher,
		Alerter:   f.alerter,
		Cache:     f.cache,
		Gateway:   f.gateway,
		Now:       f.clock.Now,
	}, f.settings)
	return f
}

func (f *fixture) book(t *testing.T, actor entity.Actor, categoryID string, qty int) *entity.Booking {
	t.Helper()
	res, err := f.svc.Booking.CreateBooking(context.Background(), actor, &CreateBookingRequest{
		EventID:          eventID,
		TicketCategoryID: categoryID,
		Quantity:         qty,
	})
	require.NoError(t, err)
	return res.Booking
}

func (f *fixture) category(t *testing.T, categoryID string) entity.TicketCategory {
	t.Helper()
	var c *entity.TicketCategory
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx database.Tx) error {
		var err error
		c, err = tx.Events().GetCategory(ctx, eventID, categoryID)
		return err
	})
	require.NoError(t, err)
	return *c
}

func (f *fixture) promo(t *testing.T, code string) entity.PromoCode {
	t.Helper()
	var p *entity.PromoCode
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx database.Tx) error {
		var err error
		p, err = tx.Events().GetPromo(ctx, eventID, code)
		return err
	})
	require.NoError(t, err)
	return *p
}

func (f *fixture) booking(t *testing.T, id string) *entity.Booking {
	t.Helper()
	b, err := f.svc.Booking.GetBooking(context.Background(), admin, id)
	require.NoError(t, err)
	return b
}

func (f *fixture) waitlistEntry(t *testing.T, id string) *entity.WaitlistEntry {
	t.Helper()
	var e *entity.WaitlistEntry
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx database.Tx) error {
		var err error
		e, err = tx.Waitlist().GetByID(ctx, id)
		return err
	})
	require.NoError(t, err)
	return e
}
