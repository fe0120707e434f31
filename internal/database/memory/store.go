// Package memory is a single-process UnitOfWork used for local runs and tests.
// One mutex serializes every transaction; writes go to a private copy of the
// state that replaces the committed state only when fn returns nil.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/database"
	"github.com/ds124wfegd/ems-booking/internal/entity"
)

type state struct {
	events   map[string]*entity.Event
	bookings map[string]*entity.Booking
	payments map[string]*entity.Payment
	waitlist map[string]*entity.WaitlistEntry
}

func newState() *state {
	return &state{
		events:   make(map[string]*entity.Event),
		bookings: make(map[string]*entity.Booking),
		payments: make(map[string]*entity.Payment),
		waitlist: make(map[string]*entity.WaitlistEntry),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.events {
		c.events[k] = copyEvent(v)
	}
	for k, v := range s.bookings {
		c.bookings[k] = copyBooking(v)
	}
	for k, v := range s.payments {
		p := *v
		c.payments[k] = &p
	}
	for k, v := range s.waitlist {
		c.waitlist[k] = copyEntry(v)
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state
}

var _ database.UnitOfWork = (*Store)(nil)

func NewStore() *Store {
	return &Store{state: newState()}
}

// AddEvent registers an event with its categories and promo codes. Promo codes
// are stored upper-cased.
func (s *Store) AddEvent(event entity.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := copyEvent(&event)
	for i := range e.PromoCodes {
		e.PromoCodes[i].Code = entity.NormalizePromoCode(e.PromoCodes[i].Code)
		e.PromoCodes[i].EventID = e.ID
	}
	for i := range e.Categories {
		e.Categories[i].EventID = e.ID
	}
	s.state.events[e.ID] = e
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx database.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type tx struct {
	state *state
}

func (t *tx) Events() database.EventRepository      { return &eventRepository{state: t.state} }
func (t *tx) Bookings() database.BookingRepository  { return &bookingRepository{state: t.state} }
func (t *tx) Payments() database.PaymentRepository  { return &paymentRepository{state: t.state} }
func (t *tx) Waitlist() database.WaitlistRepository { return &waitlistRepository{state: t.state} }

type eventRepository struct {
	state *state
}

func (r *eventRepository) GetByID(_ context.Context, eventID string) (*entity.Event, error) {
	e, ok := r.state.events[eventID]
	if !ok {
		return nil, entity.ErrEventNotFound
	}
	return copyEvent(e), nil
}

func (r *eventRepository) category(eventID, categoryID string) (*entity.TicketCategory, error) {
	e, ok := r.state.events[eventID]
	if !ok {
		return nil, entity.ErrCategoryNotFound
	}
	c, ok := e.Category(categoryID)
	if !ok {
		return nil, entity.ErrCategoryNotFound
	}
	return c, nil
}

func (r *eventRepository) GetCategory(_ context.Context, eventID, categoryID string) (*entity.TicketCategory, error) {
	c, err := r.category(eventID, categoryID)
	if err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

func (r *eventRepository) AdjustSold(_ context.Context, eventID, categoryID string, delta int) (int, error) {
	c, err := r.category(eventID, categoryID)
	if err != nil {
		return 0, err
	}

	next := c.Sold + delta
	if next > c.Total {
		return c.Remaining(), &entity.CapacityError{Requested: delta, Remaining: c.Remaining()}
	}
	if next < 0 {
		return c.Remaining(), entity.ErrLedgerUnderflow
	}

	c.Sold = next
	c.Version++
	return c.Remaining(), nil
}

func (r *eventRepository) promo(eventID, code string) (*entity.PromoCode, error) {
	e, ok := r.state.events[eventID]
	if !ok {
		return nil, entity.ErrPromoNotFound
	}
	code = entity.NormalizePromoCode(code)
	for i := range e.PromoCodes {
		if e.PromoCodes[i].Code == code {
			return &e.PromoCodes[i], nil
		}
	}
	return nil, entity.ErrPromoNotFound
}

func (r *eventRepository) GetPromo(_ context.Context, eventID, code string) (*entity.PromoCode, error) {
	p, err := r.promo(eventID, code)
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (r *eventRepository) IncrementPromoUsage(_ context.Context, eventID, code string) error {
	p, err := r.promo(eventID, code)
	if err != nil {
		return err
	}
	if p.UsedCount >= p.MaxUsage {
		return entity.ErrPromoExhausted
	}
	p.UsedCount++
	return nil
}

type bookingRepository struct {
	state *state
}

func (r *bookingRepository) Create(_ context.Context, booking *entity.Booking) error {
	r.state.bookings[booking.ID] = copyBooking(booking)
	return nil
}

func (r *bookingRepository) GetByID(_ context.Context, id string) (*entity.Booking, error) {
	b, ok := r.state.bookings[id]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	return copyBooking(b), nil
}

// GetForUpdate needs no row lock: the store lock is held for the whole transaction.
func (r *bookingRepository) GetForUpdate(ctx context.Context, id string) (*entity.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *bookingRepository) Update(_ context.Context, booking *entity.Booking) error {
	if _, ok := r.state.bookings[booking.ID]; !ok {
		return entity.ErrBookingNotFound
	}
	r.state.bookings[booking.ID] = copyBooking(booking)
	return nil
}

func (r *bookingRepository) GetByUserID(_ context.Context, userID string) ([]*entity.Booking, error) {
	var bookings []*entity.Booking
	for _, b := range r.state.bookings {
		if b.UserID == userID {
			bookings = append(bookings, copyBooking(b))
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})
	return bookings, nil
}

func (r *bookingRepository) GetStalePending(_ context.Context, createdBefore time.Time, after *entity.BookingCursor, limit int) ([]*entity.Booking, error) {
	var bookings []*entity.Booking
	for _, b := range r.state.bookings {
		if after != nil && b.AtOrBefore(after) {
			continue
		}
		if b.IsAwaitingPayment() && b.CreatedAt.Before(createdBefore) {
			bookings = append(bookings, copyBooking(b))
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].ID < bookings[j].ID
		}
		return bookings[i].CreatedAt.Before(bookings[j].CreatedAt)
	})
	if limit > 0 && len(bookings) > limit {
		bookings = bookings[:limit]
	}
	return bookings, nil
}

type paymentRepository struct {
	state *state
}

func (r *paymentRepository) Create(_ context.Context, payment *entity.Payment) error {
	p := *payment
	r.state.payments[p.OrderID] = &p
	return nil
}

func (r *paymentRepository) GetByOrderIDForUpdate(_ context.Context, orderID string) (*entity.Payment, error) {
	p, ok := r.state.payments[orderID]
	if !ok {
		return nil, entity.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *paymentRepository) GetByBookingID(_ context.Context, bookingID string) (*entity.Payment, error) {
	var latest *entity.Payment
	for _, p := range r.state.payments {
		if p.BookingID != bookingID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, entity.ErrPaymentNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *paymentRepository) Update(_ context.Context, payment *entity.Payment) error {
	if _, ok := r.state.payments[payment.OrderID]; !ok {
		return entity.ErrPaymentNotFound
	}
	p := *payment
	r.state.payments[p.OrderID] = &p
	return nil
}

type waitlistRepository struct {
	state *state
}

func (r *waitlistRepository) GetByID(_ context.Context, id string) (*entity.WaitlistEntry, error) {
	w, ok := r.state.waitlist[id]
	if !ok {
		return nil, entity.ErrWaitlistEntryNotFound
	}
	return copyEntry(w), nil
}

func (r *waitlistRepository) GetByKey(_ context.Context, eventID, userID, categoryID string) (*entity.WaitlistEntry, error) {
	for _, w := range r.state.waitlist {
		if w.EventID == eventID && w.UserID == userID && w.TicketCategoryID == categoryID {
			return copyEntry(w), nil
		}
	}
	return nil, entity.ErrWaitlistEntryNotFound
}

func (r *waitlistRepository) Create(ctx context.Context, entry *entity.WaitlistEntry) error {
	if _, err := r.GetByKey(ctx, entry.EventID, entry.UserID, entry.TicketCategoryID); err == nil {
		return entity.ErrAlreadyOnWaitlist
	}
	r.state.waitlist[entry.ID] = copyEntry(entry)
	return nil
}

func (r *waitlistRepository) Update(_ context.Context, entry *entity.WaitlistEntry) error {
	if _, ok := r.state.waitlist[entry.ID]; !ok {
		return entity.ErrWaitlistEntryNotFound
	}
	r.state.waitlist[entry.ID] = copyEntry(entry)
	return nil
}

func (r *waitlistRepository) queue(eventID, categoryID string) []*entity.WaitlistEntry {
	var entries []*entity.WaitlistEntry
	for _, w := range r.state.waitlist {
		if w.EventID == eventID && w.TicketCategoryID == categoryID && w.Status == entity.WaitlistStatusWaiting {
			entries = append(entries, w)
		}
	}
	sortByRegistration(entries)
	return entries
}

func (r *waitlistRepository) NotifyOldestWaiting(_ context.Context, eventID, categoryID string, limit int, now time.Time, window time.Duration) ([]*entity.WaitlistEntry, error) {
	queue := r.queue(eventID, categoryID)
	if limit > 0 && len(queue) > limit {
		queue = queue[:limit]
	}

	notified := make([]*entity.WaitlistEntry, 0, len(queue))
	for _, w := range queue {
		w.Notify(now, window)
		notified = append(notified, copyEntry(w))
	}
	return notified, nil
}

func (r *waitlistRepository) ExpireNotified(_ context.Context, now time.Time, limit int) ([]*entity.WaitlistEntry, error) {
	var due []*entity.WaitlistEntry
	for _, w := range r.state.waitlist {
		if w.Status == entity.WaitlistStatusNotified && w.ExpiresAt != nil && w.ExpiresAt.Before(now) {
			due = append(due, w)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ExpiresAt.Equal(*due[j].ExpiresAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].ExpiresAt.Before(*due[j].ExpiresAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	expired := make([]*entity.WaitlistEntry, 0, len(due))
	for _, w := range due {
		w.Status = entity.WaitlistStatusExpired
		w.UpdatedAt = now
		expired = append(expired, copyEntry(w))
	}
	sortByRegistration(expired)
	return expired, nil
}

func (r *waitlistRepository) Position(_ context.Context, entry *entity.WaitlistEntry) (int, error) {
	for i, w := range r.queue(entry.EventID, entry.TicketCategoryID) {
		if w.ID == entry.ID {
			return i + 1, nil
		}
	}
	return 0, entity.ErrWaitlistEntryNotFound
}

func sortByRegistration(entries []*entity.WaitlistEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RegisteredAt.Equal(entries[j].RegisteredAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].RegisteredAt.Before(entries[j].RegisteredAt)
	})
}

func copyEvent(e *entity.Event) *entity.Event {
	c := *e
	c.Categories = append([]entity.TicketCategory(nil), e.Categories...)
	c.PromoCodes = append([]entity.PromoCode(nil), e.PromoCodes...)
	return &c
}

func copyBooking(b *entity.Booking) *entity.Booking {
	c := *b
	c.SelectedSeats = append([]string(nil), b.SelectedSeats...)
	if b.PromoCodeUsed != nil {
		v := *b.PromoCodeUsed
		c.PromoCodeUsed = &v
	}
	if b.CheckedInAt != nil {
		v := *b.CheckedInAt
		c.CheckedInAt = &v
	}
	if b.CancellationReason != nil {
		v := *b.CancellationReason
		c.CancellationReason = &v
	}
	return &c
}

func copyEntry(w *entity.WaitlistEntry) *entity.WaitlistEntry {
	c := *w
	if w.NotifiedAt != nil {
		v := *w.NotifiedAt
		c.NotifiedAt = &v
	}
	if w.ExpiresAt != nil {
		v := *w.ExpiresAt
		c.ExpiresAt = &v
	}
	return &c
}
