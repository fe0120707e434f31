package database

import (
	"context"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/entity"
)

// UnitOfWork runs fn inside one ACID transaction. Returning an error (or
// panicking) from fn rolls back every write made through tx. Implementations
// may invoke fn more than once when the transaction loses a write conflict,
// so fn must not have side effects outside tx.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the repositories bound to a single transaction.
type Tx interface {
	Events() EventRepository
	Bookings() BookingRepository
	Payments() PaymentRepository
	Waitlist() WaitlistRepository
}

type EventRepository interface {
	GetByID(ctx context.Context, eventID string) (*entity.Event, error)
	GetCategory(ctx context.Context, eventID, categoryID string) (*entity.TicketCategory, error)

	// AdjustSold atomically adds delta to the category's sold counter and
	// returns the remaining capacity. It refuses (without writing) any change
	// that would leave sold outside [0, total]: a positive delta fails with
	// *entity.CapacityError, a negative one with entity.ErrLedgerUnderflow.
	AdjustSold(ctx context.Context, eventID, categoryID string, delta int) (int, error)

	GetPromo(ctx context.Context, eventID, code string) (*entity.PromoCode, error)
	// IncrementPromoUsage consumes one use, failing with
	// entity.ErrPromoExhausted when usedCount already equals maxUsage.
	IncrementPromoUsage(ctx context.Context, eventID, code string) error
}

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking) error
	GetByID(ctx context.Context, id string) (*entity.Booking, error)
	// GetForUpdate loads the booking and locks it until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*entity.Booking, error)
	Update(ctx context.Context, booking *entity.Booking) error

	GetByUserID(ctx context.Context, userID string) ([]*entity.Booking, error)
	// GetStalePending lists pending/pending bookings created before the
	// cutoff in (createdAt, id) order, starting strictly after the cursor
	// when one is given.
	GetStalePending(ctx context.Context, createdBefore time.Time, after *entity.BookingCursor, limit int) ([]*entity.Booking, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	GetByOrderIDForUpdate(ctx context.Context, orderID string) (*entity.Payment, error)
	GetByBookingID(ctx context.Context, bookingID string) (*entity.Payment, error)
	Update(ctx context.Context, payment *entity.Payment) error
}

type WaitlistRepository interface {
	GetByID(ctx context.Context, id string) (*entity.WaitlistEntry, error)
	// GetByKey returns the single row for the (event, user, category) triple
	// in any status, or entity.ErrWaitlistEntryNotFound.
	GetByKey(ctx context.Context, eventID, userID, categoryID string) (*entity.WaitlistEntry, error)
	Create(ctx context.Context, entry *entity.WaitlistEntry) error
	Update(ctx context.Context, entry *entity.WaitlistEntry) error

	// NotifyOldestWaiting marks up to limit of the earliest-registered waiting
	// entries as notified and returns them in registration order.
	NotifyOldestWaiting(ctx context.Context, eventID, categoryID string, limit int, now time.Time, window time.Duration) ([]*entity.WaitlistEntry, error)
	// ExpireNotified moves notified entries whose window closed before now to
	// expired and returns them.
	ExpireNotified(ctx context.Context, now time.Time, limit int) ([]*entity.WaitlistEntry, error)
	// Position is the 1-based rank of a waiting entry in its queue.
	Position(ctx context.Context, entry *entity.WaitlistEntry) (int, error)
}
