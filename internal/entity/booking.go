package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusExpired   PaymentStatus = "expired"
)

const (
	ReasonPaymentNotCompleted = "payment not completed"
	ReasonPaymentFailed       = "payment failed"
	ReasonCancelledByUser     = "cancelled by user"
)

type Booking struct {
	ID                 string          `json:"id" db:"id"`
	EventID            string          `json:"event_id" db:"event_id"`
	UserID             string          `json:"user_id" db:"user_id"`
	TicketCategoryID   string          `json:"ticket_category_id" db:"ticket_category_id"`
	Quantity           int             `json:"quantity" db:"quantity"`
	PricePerTicket     decimal.Decimal `json:"price_per_ticket" db:"price_per_ticket"`
	TotalPrice         decimal.Decimal `json:"total_price" db:"total_price"`
	DiscountApplied    int             `json:"discount_applied" db:"discount_applied"`
	PromoCodeUsed      *string         `json:"promo_code_used,omitempty" db:"promo_code_used"`
	Status             BookingStatus   `json:"status" db:"status"`
	PaymentStatus      PaymentStatus   `json:"payment_status" db:"payment_status"`
	QRCode             string          `json:"qr_code" db:"qr_code"`
	SelectedSeats      []string        `json:"selected_seats" db:"selected_seats"`
	CheckedIn          bool            `json:"checked_in" db:"checked_in"`
	CheckedInAt        *time.Time      `json:"checked_in_at,omitempty" db:"checked_in_at"`
	ExpiresAt          time.Time       `json:"expires_at" db:"expires_at"`
	CancellationReason *string         `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// CalculateTotal returns pricePerTicket * quantity * (1 - discount/100),
// rounded to cents.
func CalculateTotal(pricePerTicket decimal.Decimal, quantity, discountPercentage int) decimal.Decimal {
	gross := pricePerTicket.Mul(decimal.NewFromInt(int64(quantity)))
	factor := decimal.NewFromInt(int64(100 - discountPercentage)).Div(decimal.NewFromInt(100))
	return gross.Mul(factor).Round(2)
}

// IsAwaitingPayment reports whether the booking is still an unpaid soft
// reservation, the only state the reaper and payment failures act on.
func (b *Booking) IsAwaitingPayment() bool {
	return b.Status == BookingStatusPending && b.PaymentStatus == PaymentStatusPending
}

func (b *Booking) IsStale(now time.Time) bool {
	return b.IsAwaitingPayment() && now.After(b.ExpiresAt)
}

func (b *Booking) Confirm(now time.Time) error {
	if b.Status != BookingStatusPending {
		return &TransitionError{Op: "confirm", Current: b.Status, Err: ErrInvalidTransition}
	}
	b.Status = BookingStatusConfirmed
	b.PaymentStatus = PaymentStatusCompleted
	b.UpdatedAt = now
	return nil
}

// Cancel moves a pending or confirmed booking to cancelled. The caller is
// responsible for releasing the ledger reservation in the same transaction.
func (b *Booking) Cancel(reason string, paymentStatus PaymentStatus, now time.Time) error {
	if b.Status != BookingStatusPending && b.Status != BookingStatusConfirmed {
		return &TransitionError{Op: "cancel", Current: b.Status, Err: ErrInvalidTransition}
	}
	b.Status = BookingStatusCancelled
	b.PaymentStatus = paymentStatus
	b.CancellationReason = &reason
	b.UpdatedAt = now
	return nil
}

func (b *Booking) CheckIn(now time.Time) error {
	if b.Status != BookingStatusConfirmed {
		return &TransitionError{Op: "check in", Current: b.Status, Err: ErrWrongStatus}
	}
	if b.CheckedIn {
		return &TransitionError{Op: "check in", Current: b.Status, Err: ErrAlreadyCheckedIn}
	}
	b.CheckedIn = true
	b.CheckedInAt = &now
	b.UpdatedAt = now
	return nil
}

// BookingCursor is a keyset position in (createdAt, id) order.
type BookingCursor struct {
	CreatedAt time.Time
	ID        string
}

func (b *Booking) Cursor() *BookingCursor {
	return &BookingCursor{CreatedAt: b.CreatedAt, ID: b.ID}
}

// AtOrBefore reports whether b sorts at or before the cursor position.
func (b *Booking) AtOrBefore(c *BookingCursor) bool {
	if b.CreatedAt.Equal(c.CreatedAt) {
		return b.ID <= c.ID
	}
	return b.CreatedAt.Before(c.CreatedAt)
}

// CancelDeadline is the last instant a user may cancel.
func CancelDeadline(eventDate time.Time, cutoff time.Duration) time.Time {
	return eventDate.Add(-cutoff)
}
