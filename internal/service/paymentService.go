package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/database"
	"github.com/ds124wfegd/ems-booking/internal/entity"
	"github.com/ds124wfegd/ems-booking/internal/metrics"
	"github.com/ds124wfegd/ems-booking/pkg/gateway"
	"github.com/ds124wfegd/ems-booking/pkg/qrcode"

	"github.com/sirupsen/logrus"
)

// NormalizedStatus is the provider status folded into the four cases the
// booking state machine cares about.
type NormalizedStatus string

const (
	NormalizedSuccess NormalizedStatus = "success"
	NormalizedFailure NormalizedStatus = "failure"
	NormalizedPending NormalizedStatus = "pending"
	NormalizedRefund  NormalizedStatus = "refund"
)

type ReconcileOutcome string

const (
	OutcomeConfirmed        ReconcileOutcome = "confirmed"
	OutcomeAlreadyConfirmed ReconcileOutcome = "already_confirmed"
	OutcomeCancelled        ReconcileOutcome = "cancelled"
	OutcomeRequiresRefund   ReconcileOutcome = "requires_refund"
	OutcomePending          ReconcileOutcome = "pending"
	OutcomeRefunded         ReconcileOutcome = "refunded"
	OutcomeRecorded         ReconcileOutcome = "recorded"
	OutcomeIgnored          ReconcileOutcome = "ignored"
)

type ReconcileResult struct {
	OrderID       string               `json:"orderId"`
	BookingID     string               `json:"bookingId"`
	Normalized    NormalizedStatus     `json:"normalizedStatus"`
	Outcome       ReconcileOutcome     `json:"outcome"`
	BookingStatus entity.BookingStatus `json:"bookingStatus"`
	PaymentStatus entity.PaymentStatus `json:"paymentStatus"`
	EmailSent     bool                 `json:"emailSent"`
}

// NormalizeStatus maps a provider transaction_status and fraud_status pair.
func NormalizeStatus(providerStatus, fraudStatus string) (NormalizedStatus, error) {
	fraud := strings.ToLower(strings.TrimSpace(fraudStatus))

	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "capture":
		switch fraud {
		case "", "accept":
			return NormalizedSuccess, nil
		case "challenge":
			return NormalizedPending, nil
		case "deny":
			return NormalizedFailure, nil
		}
	case "settlement":
		switch fraud {
		case "", "accept":
			return NormalizedSuccess, nil
		case "deny":
			return NormalizedFailure, nil
		}
	case "deny", "cancel", "expire", "failure":
		return NormalizedFailure, nil
	case "pending":
		return NormalizedPending, nil
	case "refund", "partial_refund":
		return NormalizedRefund, nil
	}
	return "", fmt.Errorf("%w: %q (fraud %q)", entity.ErrUnknownProviderStatus, providerStatus, fraudStatus)
}

// transactionStatus is the value stored on the payment. A capture held for
// fraud review stays pending and a fraud-denied capture or settlement is
// stored as deny, so capture and settlement always mean the money was taken.
func transactionStatus(normalized NormalizedStatus, providerStatus string) entity.TransactionStatus {
	s := entity.TransactionStatus(strings.ToLower(strings.TrimSpace(providerStatus)))
	switch normalized {
	case NormalizedPending:
		return entity.TransactionPending
	case NormalizedRefund:
		return entity.TransactionRefund
	case NormalizedFailure:
		if s.IsSuccess() {
			return entity.TransactionDeny
		}
	}
	return s
}

type paymentService struct {
	*core
	gateway PaymentGateway
}

// InitiatePayment creates the booking's single payment record. Calling it
// again returns the existing record.
func (s *paymentService) InitiatePayment(ctx context.Context, actor entity.Actor, bookingID string) (*entity.Payment, error) {
	now := s.now()
	var payment *entity.Payment

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !canAccess(actor, b.UserID) {
			return entity.ErrForbidden
		}

		existing, err := tx.Payments().GetByBookingID(ctx, b.ID)
		if err == nil {
			payment = existing
			return nil
		}
		if !errors.Is(err, entity.ErrPaymentNotFound) {
			return err
		}

		if !b.IsAwaitingPayment() {
			return &entity.TransitionError{Op: "pay", Current: b.Status, Err: entity.ErrWrongStatus}
		}

		payment = &entity.Payment{
			OrderID:           fmt.Sprintf("EMS-%s-%d", b.ID, now.Unix()),
			BookingID:         b.ID,
			TransactionStatus: entity.TransactionPending,
			GrossAmount:       b.TotalPrice,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}

		// Touching the booking makes a concurrent initiation conflict instead
		// of inserting a second payment.
		b.UpdatedAt = now
		return tx.Bookings().Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"order_id":   payment.OrderID,
	}).Info("Payment initiated")
	return payment, nil
}

func (s *paymentService) Reconcile(ctx context.Context, orderID, providerStatus, fraudStatus string) (*ReconcileResult, error) {
	return s.reconcile(ctx, "direct", orderID, providerStatus, fraudStatus, "")
}

func (s *paymentService) HandleNotification(ctx context.Context, n *gateway.Notification) (*ReconcileResult, error) {
	if s.settings.VerifySignature && !gateway.VerifySignature(n, s.settings.ServerKey) {
		logrus.WithField("order_id", n.OrderID).Warn("Rejected payment notification with bad signature")
		return nil, entity.ErrInvalidSignature
	}
	return s.reconcile(ctx, "webhook", n.OrderID, n.TransactionStatus, n.FraudStatus, n.PaymentType)
}

func (s *paymentService) PollStatus(ctx context.Context, orderID string) (*ReconcileResult, error) {
	if s.gateway == nil {
		return nil, entity.ErrGatewayUnavailable
	}

	n, err := s.gateway.GetStatus(ctx, orderID)
	switch {
	case errors.Is(err, gateway.ErrOrderNotFound):
		return nil, fmt.Errorf("%w: %s", entity.ErrPaymentNotFound, orderID)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", entity.ErrGatewayUnavailable, err)
	}

	return s.reconcile(ctx, "poll", orderID, n.TransactionStatus, n.FraudStatus, n.PaymentType)
}

// MockComplete settles an order without a provider; unavailable unless
// payment.mock_enabled is set.
func (s *paymentService) MockComplete(ctx context.Context, orderID string) (*ReconcileResult, error) {
	if !s.settings.MockPaymentsEnabled {
		return nil, entity.ErrPaymentNotFound
	}
	return s.reconcile(ctx, "mock", orderID, string(entity.TransactionSettlement), "accept", "mock")
}

// reconcile folds one provider status into the payment and booking. It is
// idempotent: replays and out-of-order deliveries only ever act on the state
// they find, and the confirmation email is sent by the single call that
// latches emailSent.
func (s *paymentService) reconcile(ctx context.Context, source, orderID, providerStatus, fraudStatus, paymentType string) (*ReconcileResult, error) {
	log := logrus.WithFields(logrus.Fields{
		"order_id": orderID,
		"source":   source,
		"status":   providerStatus,
		"fraud":    fraudStatus,
	})

	normalized, err := NormalizeStatus(providerStatus, fraudStatus)
	if err != nil {
		log.WithError(err).Warn("Ignoring payment status")
		metrics.TrackReconcile(source, "unknown_status")
		return nil, err
	}

	now := s.now()
	fx := &effects{}
	var result *ReconcileResult

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		fx.reset()

		p, err := tx.Payments().GetByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		b, err := tx.Bookings().GetForUpdate(ctx, p.BookingID)
		if err != nil {
			return err
		}

		previous := p.TransactionStatus
		p.UpdatedAt = now

		result = &ReconcileResult{OrderID: p.OrderID, BookingID: b.ID, Normalized: normalized}
		bookingChanged := false

		switch normalized {
		case NormalizedSuccess:
			switch b.Status {
			case entity.BookingStatusPending:
				if err := b.Confirm(now); err != nil {
					return err
				}
				bookingChanged = true
				result.Outcome = OutcomeConfirmed
				result.EmailSent = p.LatchEmail()
				fx.publish(entity.BookingEventConfirmed, b, now)
			case entity.BookingStatusConfirmed:
				result.Outcome = OutcomeAlreadyConfirmed
				result.EmailSent = p.LatchEmail()
			case entity.BookingStatusCancelled:
				// Money already taken before the cancellation was either
				// refunded with it or reported by an earlier delivery.
				if previous.IsSuccess() || b.PaymentStatus == entity.PaymentStatusRefunded {
					result.Outcome = OutcomeIgnored
					break
				}
				result.Outcome = OutcomeRequiresRefund
				fx.alert(fmt.Sprintf("Payment %s settled for cancelled booking %s: refund required", p.OrderID, b.ID))
			}

		case NormalizedFailure:
			if b.Status != entity.BookingStatusPending {
				result.Outcome = OutcomeIgnored
				break
			}
			if err := b.Cancel(entity.ReasonPaymentFailed, entity.PaymentStatusFailed, now); err != nil {
				return err
			}
			if err := s.releaseAndCascade(ctx, tx, b, now, fx); err != nil {
				return err
			}
			bookingChanged = true
			result.Outcome = OutcomeCancelled
			fx.publish(entity.BookingEventCancelled, b, now)
			fx.notify(bookingNotification(entity.NotificationBookingCancelled, b, entity.ReasonPaymentFailed, now))

		case NormalizedPending:
			result.Outcome = OutcomePending
			if b.Status != entity.BookingStatusPending {
				result.Outcome = OutcomeIgnored
			}

		case NormalizedRefund:
			switch b.Status {
			case entity.BookingStatusPending:
				result.Outcome = OutcomeRecorded
			case entity.BookingStatusConfirmed:
				b.PaymentStatus = entity.PaymentStatusRefunded
				b.UpdatedAt = now
				bookingChanged = true
				result.Outcome = OutcomeRefunded
			default:
				result.Outcome = OutcomeRecorded
				if previous == entity.TransactionRefund {
					result.Outcome = OutcomeIgnored
				}
			}
		}

		// Ignored deliveries are stale or duplicated and must not rewrite
		// what the payment already records.
		incoming := transactionStatus(normalized, providerStatus)
		if result.Outcome != OutcomeIgnored && !(previous.IsTerminal() && incoming == entity.TransactionPending) {
			p.TransactionStatus = incoming
			if paymentType != "" {
				p.PaymentType = paymentType
			}
		}

		if err := tx.Payments().Update(ctx, p); err != nil {
			return err
		}
		if bookingChanged {
			if err := tx.Bookings().Update(ctx, b); err != nil {
				return err
			}
		}

		if result.EmailSent {
			fx.notify(confirmationNotification(b, now))
		}

		result.BookingStatus = b.Status
		result.PaymentStatus = b.PaymentStatus
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Payment reconciliation failed")
		metrics.TrackReconcile(source, "error")
		return nil, err
	}

	s.flush(ctx, fx)
	metrics.TrackReconcile(source, string(result.Outcome))
	switch result.Outcome {
	case OutcomeConfirmed:
		metrics.TrackBookingTransition(string(entity.BookingStatusConfirmed), "payment")
	case OutcomeCancelled:
		metrics.TrackBookingTransition(string(entity.BookingStatusCancelled), "payment_failed")
	}

	log.WithFields(logrus.Fields{
		"booking_id": result.BookingID,
		"outcome":    result.Outcome,
		"email_sent": result.EmailSent,
	}).Info("Payment reconciled")

	return result, nil
}

// confirmationNotification carries the ticket QR; a rendering failure only
// drops the image, the payload is still delivered.
func confirmationNotification(b *entity.Booking, now time.Time) *entity.Notification {
	n := bookingNotification(entity.NotificationBookingConfirmed, b, "", now)
	n.QRPayload = b.QRCode

	image, err := qrcode.PNGDataURI(b.QRCode, qrcode.DefaultSize)
	if err != nil {
		logrus.WithError(err).WithField("booking_id", b.ID).Warn("Failed to render ticket QR code")
		return n
	}
	n.QRImage = image
	return n
}
