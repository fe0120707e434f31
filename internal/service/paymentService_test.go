package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/entity"
	"github.com/ds124wfegd/ems-booking/pkg/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		status  string
		fraud   string
		want    NormalizedStatus
		wantErr bool
	}{
		{status: "capture", fraud: "accept", want: NormalizedSuccess},
		{status: "capture", fraud: "", want: NormalizedSuccess},
		{status: "capture", fraud: "challenge", want: NormalizedPending},
		{status: "capture", fraud: "deny", want: NormalizedFailure},
		{status: "settlement", fraud: "", want: NormalizedSuccess},
		{status: "settlement", fraud: "accept", want: NormalizedSuccess},
		{status: "settlement", fraud: "deny", want: NormalizedFailure},
		{status: "deny", fraud: "accept", want: NormalizedFailure},
		{status: "cancel", want: NormalizedFailure},
		{status: "expire", want: NormalizedFailure},
		{status: "failure", want: NormalizedFailure},
		{status: "pending", fraud: "accept", want: NormalizedPending},
		{status: "refund", want: NormalizedRefund},
		{status: "partial_refund", want: NormalizedRefund},
		{status: "authorize", wantErr: true},
		{status: "capture", fraud: "maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.fraud, func(t *testing.T) {
			got, err := NormalizeStatus(tt.status, tt.fraud)
			if tt.wantErr {
				assert.ErrorIs(t, err, entity.ErrUnknownProviderStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func (f *fixture) pendingPayment(t *testing.T, actor entity.Actor, categoryID string, qty int) (*entity.Booking, *entity.Payment) {
	t.Helper()
	b := f.book(t, actor, categoryID, qty)
	p, err := f.svc.Payment.InitiatePayment(context.Background(), actor, b.ID)
	require.NoError(t, err)
	return b, p
}

func TestInitiatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, alice, vipID, 2)

	_, err := f.svc.Payment.InitiatePayment(ctx, bob, b.ID)
	assert.ErrorIs(t, err, entity.ErrForbidden)

	p, err := f.svc.Payment.InitiatePayment(ctx, alice, b.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.OrderID, "EMS-"+b.ID+"-"))
	assert.Equal(t, entity.TransactionPending, p.TransactionStatus)
	assert.True(t, b.TotalPrice.Equal(p.GrossAmount))

	again, err := f.svc.Payment.InitiatePayment(ctx, alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, p.OrderID, again.OrderID)
}

func TestInitiatePayment_CancelledBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, alice, vipID, 1)
	_, err := f.svc.Booking.CancelBooking(ctx, alice, b.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Payment.InitiatePayment(ctx, alice, b.ID)
	assert.ErrorIs(t, err, entity.ErrWrongStatus)
}

func TestReconcile_SettlementIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, p := f.pendingPayment(t, alice, vipID, 2)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []ReconcileOutcome
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Payment.Reconcile(ctx, p.OrderID, "settlement", "accept")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes = append(outcomes, res.Outcome)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []ReconcileOutcome{
		OutcomeConfirmed, OutcomeAlreadyConfirmed, OutcomeAlreadyConfirmed, OutcomeAlreadyConfirmed, OutcomeAlreadyConfirmed,
	}, outcomes)

	confirmations := f.notifier.ofType(entity.NotificationBookingConfirmed)
	require.Len(t, confirmations, 1)
	assert.Equal(t, b.ID, confirmations[0].BookingID)
	assert.Equal(t, b.QRCode, confirmations[0].QRPayload)
	assert.True(t, strings.HasPrefix(confirmations[0].QRImage, "data:image/png;base64,"))

	got := f.booking(t, b.ID)
	assert.Equal(t, entity.BookingStatusConfirmed, got.Status)
	assert.Equal(t, entity.PaymentStatusCompleted, got.PaymentStatus)
	assert.Equal(t, 2, f.category(t, vipID).Sold)
}

// Manual completion followed by the provider's late notifications must not
// send a second email or undo the confirmation.
func TestReconcile_MockThenLateWebhook(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.VerifySignature = true })
	ctx := context.Background()
	b, p := f.pendingPayment(t, alice, vipID, 1)

	res, err := f.svc.Payment.MockComplete(ctx, p.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.True(t, res.EmailSent)

	notification := &gateway.Notification{
		OrderID:           p.OrderID,
		TransactionStatus: "settlement",
		FraudStatus:       "accept",
		StatusCode:        "200",
		GrossAmount:       p.GrossAmount.StringFixed(2),
	}
	notification.SignatureKey = gateway.Signature(notification.OrderID, notification.StatusCode, notification.GrossAmount, "server-key")

	res, err = f.svc.Payment.HandleNotification(ctx, notification)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyConfirmed, res.Outcome)
	assert.False(t, res.EmailSent)

	res, err = f.svc.Payment.Reconcile(ctx, p.OrderID, "expire", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	res, err = f.svc.Payment.Reconcile(ctx, p.OrderID, "pending", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	assert.Len(t, f.notifier.ofType(entity.NotificationBookingConfirmed), 1)
	got := f.booking(t, b.ID)
	assert.Equal(t, entity.BookingStatusConfirmed, got.Status)
	assert.Equal(t, 1, f.category(t, vipID).Sold)
}

func TestReconcile_PendingNeverRegressesTerminalStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, p := f.pendingPayment(t, alice, vipID, 1)

	_, err := f.svc.Payment.Reconcile(ctx, p.OrderID, "settlement", "")
	require.NoError(t, err)
	_, err = f.svc.Payment.Reconcile(ctx, p.OrderID, "pending", "")
	require.NoError(t, err)

	got, err := f.svc.Payment.InitiatePayment(ctx, alice, p.BookingID)
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionSettlement, got.TransactionStatus)
	assert.True(t, got.EmailSent)
}

func TestReconcile_LateFailureKeepsSettledStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, p := f.pendingPayment(t, alice, vipID, 1)

	_, err := f.svc.Payment.Reconcile(ctx, p.OrderID, "settlement", "accept")
	require.NoError(t, err)

	for _, status := range []string{"expire", "deny", "cancel"} {
		res, err := f.svc.Payment.Reconcile(ctx, p.OrderID, status, "")
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, res.Outcome)
	}

	got, err := f.svc.Payment.InitiatePayment(ctx, alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionSettlement, got.TransactionStatus)

	booking := f.booking(t, b.ID)
	assert.Equal(t, entity.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, entity.PaymentStatusCompleted, booking.PaymentStatus)
}

func TestReconcile_FraudDeniedCaptureStoredAsDeny(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, p := f.pendingPayment(t, alice, vipID, 1)

	res, err := f.svc.Payment.Reconcile(ctx, p.OrderID, "capture", "deny")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, res.Outcome)

	got, err := f.svc.Payment.InitiatePayment(ctx, alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionDeny, got.TransactionStatus)
}

func TestReconcile_FailureReleasesAndCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, p := f.pendingPayment(t, alice, vipID, 10)
	joined, err := f.svc.Waitlist.Join(ctx, bob, &JoinWaitlistRequest{EventID: eventID, TicketCategoryID: vipID, Quantity: 2})
	require.NoError(t, err)

	res, err := f.svc.Payment.Reconcile(ctx, p.OrderID, "deny", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, entity.PaymentStatusFailed, res.PaymentStatus)

	assert.Equal(t, 0, f.category(t, vipID).Sold)
	assert.Equal(t, entity.BookingStatusCancelled, f.booking(t, b.ID).Status)
	assert.Equal(t, entity.WaitlistStatusNotified, f.waitlistEntry(t, joined.Entry.ID).Status)
	require.Len(t, f.notifier.ofType(entity.NotificationWaitlistNotified), 1)

	// A replayed failure finds the booking already cancelled.
	res, err = f.svc.Payment.Reconcile(ctx, p.OrderID, "deny", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, 0, f.category(t, vipID).Sold)
}

func TestReconcile_SuccessAfterCancellationRequiresRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, p := f.pendingPayment(t, alice, vipID, 1)

	f.clock.Advance(25 * time.Hour)
	expired, err := f.svc.Booking.ExpireBooking(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, expired)

	f.alerter.On("Alert", mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, p.OrderID) && strings.Contains(text, "refund")
	})).Return(nil).Once()

	res, err := f.svc.Payment.Reconcile(ctx, p.OrderID, "settlement", "accept")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRequiresRefund, res.Outcome)
	assert.Equal(t, entity.BookingStatusCancelled, res.BookingStatus)
	assert.False(t, res.EmailSent)

	// The provider redelivers; ops were already told.
	res, err = f.svc.Payment.Reconcile(ctx, p.OrderID, "settlement", "accept")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	f.alerter.AssertExpectations(t)
	f.alerter.AssertNumberOfCalls(t, "Alert", 1)
}

func TestReconcile_SettlementAfterUserCancelIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, p := f.pendingPayment(t, alice, vipID, 2)

	_, err := f.svc.Payment.Reconcile(ctx, p.OrderID, "settlement", "accept")
	require.NoError(t, err)

	cancelled, err := f.svc.Booking.CancelBooking(ctx, alice, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusRefunded, cancelled.PaymentStatus)

	res, err := f.svc.Payment.Reconcile(ctx, p.OrderID, "settlement", "accept")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, entity.PaymentStatusRefunded, res.PaymentStatus)
	assert.False(t, res.EmailSent)

	f.alerter.AssertNotCalled(t, "Alert", mock.Anything, mock.Anything)
	assert.Len(t, f.notifier.ofType(entity.NotificationBookingConfirmed), 1)
	assert.Equal(t, 0, f.category(t, vipID).Sold)
}

func TestReconcile_Refund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, p := f.pendingPayment(t, alice, vipID, 1)

	res, err := f.svc.Payment.Reconcile(ctx, p.OrderID, "refund", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, res.Outcome)
	assert.Equal(t, entity.BookingStatusPending, f.booking(t, b.ID).Status)

	_, err = f.svc.Payment.Reconcile(ctx, p.OrderID, "capture", "accept")
	require.NoError(t, err)

	res, err = f.svc.Payment.Reconcile(ctx, p.OrderID, "partial_refund", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefunded, res.Outcome)
	assert.Equal(t, entity.PaymentStatusRefunded, f.booking(t, b.ID).PaymentStatus)
}

func TestReconcile_Errors(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.VerifySignature = true })
	ctx := context.Background()
	_, p := f.pendingPayment(t, alice, vipID, 1)

	_, err := f.svc.Payment.Reconcile(ctx, "EMS-unknown", "settlement", "")
	assert.ErrorIs(t, err, entity.ErrPaymentNotFound)

	_, err = f.svc.Payment.Reconcile(ctx, p.OrderID, "authorize", "")
	assert.ErrorIs(t, err, entity.ErrUnknownProviderStatus)

	_, err = f.svc.Payment.HandleNotification(ctx, &gateway.Notification{
		OrderID:           p.OrderID,
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       "1.00",
		SignatureKey:      "forged",
	})
	assert.ErrorIs(t, err, entity.ErrInvalidSignature)
	assert.Equal(t, entity.BookingStatusPending, f.booking(t, p.BookingID).Status)
}

func TestMockComplete_Disabled(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.MockPaymentsEnabled = false })
	_, p := f.pendingPayment(t, alice, vipID, 1)

	_, err := f.svc.Payment.MockComplete(context.Background(), p.OrderID)
	assert.ErrorIs(t, err, entity.ErrPaymentNotFound)
}

func TestPollStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, p := f.pendingPayment(t, alice, vipID, 1)

	f.gateway.On("GetStatus", mock.Anything, p.OrderID).Return(&gateway.Notification{
		OrderID:           p.OrderID,
		TransactionStatus: "capture",
		FraudStatus:       "accept",
		PaymentType:       "credit_card",
	}, nil).Once()
	f.gateway.On("GetStatus", mock.Anything, "EMS-missing").Return(nil, gateway.ErrOrderNotFound).Once()
	f.gateway.On("GetStatus", mock.Anything, "EMS-down").Return(nil, errors.New("dial tcp: refused")).Once()

	res, err := f.svc.Payment.PollStatus(ctx, p.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.Equal(t, entity.BookingStatusConfirmed, f.booking(t, b.ID).Status)

	_, err = f.svc.Payment.PollStatus(ctx, "EMS-missing")
	assert.ErrorIs(t, err, entity.ErrPaymentNotFound)

	_, err = f.svc.Payment.PollStatus(ctx, "EMS-down")
	assert.ErrorIs(t, err, entity.ErrGatewayUnavailable)

	f.gateway.AssertExpectations(t)
}
