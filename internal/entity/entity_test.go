package entity

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)

func TestCalculateTotal(t *testing.T) {
	tests := []struct {
		price    string
		quantity int
		discount int
		want     string
	}{
		{"100.00", 2, 0, "200"},
		{"100.00", 2, 20, "160"},
		{"33.33", 3, 15, "84.99"},
		{"50.00", 1, 100, "0"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_x%d_%d%%", tt.price, tt.quantity, tt.discount), func(t *testing.T) {
			got := CalculateTotal(decimal.RequireFromString(tt.price), tt.quantity, tt.discount)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestBookingTransitions(t *testing.T) {
	b := &Booking{Status: BookingStatusPending, PaymentStatus: PaymentStatusPending, ExpiresAt: now.Add(time.Hour)}
	assert.True(t, b.IsAwaitingPayment())
	assert.False(t, b.IsStale(now))
	assert.True(t, b.IsStale(now.Add(2*time.Hour)))

	err := b.CheckIn(now)
	assert.ErrorIs(t, err, ErrWrongStatus)

	require.NoError(t, b.Confirm(now))
	assert.Equal(t, PaymentStatusCompleted, b.PaymentStatus)
	assert.False(t, b.IsAwaitingPayment())

	require.NoError(t, b.CheckIn(now))
	err = b.CheckIn(now)
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)

	require.NoError(t, b.Cancel(ReasonCancelledByUser, PaymentStatusRefunded, now))
	require.NotNil(t, b.CancellationReason)
	assert.Equal(t, ReasonCancelledByUser, *b.CancellationReason)

	err = b.Cancel(ReasonCancelledByUser, PaymentStatusRefunded, now)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, BookingStatusCancelled, te.Current)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.ErrorIs(t, b.Confirm(now), ErrInvalidTransition)
}

func TestCapacityErrorIs(t *testing.T) {
	soldOut := &CapacityError{Requested: 2, Remaining: 0}
	short := &CapacityError{Requested: 3, Remaining: 2}

	assert.ErrorIs(t, soldOut, ErrSoldOut)
	assert.NotErrorIs(t, soldOut, ErrInsufficientCapacity)
	assert.ErrorIs(t, short, ErrInsufficientCapacity)
	assert.NotErrorIs(t, short, ErrSoldOut)
	assert.ErrorIs(t, fmt.Errorf("reserve: %w", short), ErrInsufficientCapacity)
}

func TestPromoCode(t *testing.T) {
	p := PromoCode{Code: "EARLY", ExpiryDate: now.Add(time.Hour), MaxUsage: 2, UsedCount: 1}
	assert.True(t, p.IsUsable(now))

	p.UsedCount = 2
	assert.False(t, p.IsUsable(now))

	p.UsedCount = 0
	assert.False(t, p.IsUsable(now.Add(time.Hour)))

	assert.Equal(t, "EARLY", NormalizePromoCode("  early "))
}

func TestPaymentLatchEmail(t *testing.T) {
	p := &Payment{}
	assert.True(t, p.LatchEmail())
	assert.False(t, p.LatchEmail())

	assert.False(t, TransactionPending.IsTerminal())
	assert.True(t, TransactionSettlement.IsTerminal())
}

func TestWaitlistReactivate(t *testing.T) {
	e := &WaitlistEntry{Status: WaitlistStatusWaiting, Quantity: 1}
	e.Notify(now, time.Hour)
	assert.Equal(t, WaitlistStatusNotified, e.Status)
	assert.True(t, e.IsActive())
	require.NotNil(t, e.ExpiresAt)
	assert.Equal(t, now.Add(time.Hour), *e.ExpiresAt)

	e.Status = WaitlistStatusExpired
	assert.False(t, e.IsActive())

	later := now.Add(2 * time.Hour)
	e.Reactivate(3, later)
	assert.Equal(t, WaitlistStatusWaiting, e.Status)
	assert.Equal(t, 3, e.Quantity)
	assert.Equal(t, later, e.RegisteredAt)
	assert.Nil(t, e.NotifiedAt)
	assert.Nil(t, e.ExpiresAt)
}
