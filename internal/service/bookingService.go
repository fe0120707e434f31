package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/database"
	"github.com/ds124wfegd/ems-booking/internal/entity"
	"github.com/ds124wfegd/ems-booking/internal/metrics"
	"github.com/ds124wfegd/ems-booking/pkg/qrcode"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type CreateBookingRequest struct {
	EventID          string   `json:"eventId" binding:"required"`
	TicketCategoryID string   `json:"ticketCategoryId" binding:"required"`
	Quantity         int      `json:"quantity" binding:"required,min=1"`
	PromoCode        string   `json:"promoCode,omitempty"`
	SelectedSeats    []string `json:"selectedSeats,omitempty"`
}

type BookingResult struct {
	Booking   *entity.Booking `json:"booking"`
	Remaining int             `json:"remaining"`
}

type bookingService struct {
	*core
}

// CreateBooking reserves capacity and writes a pending booking in one
// transaction; any failure leaves capacity and promo usage untouched.
func (s *bookingService) CreateBooking(ctx context.Context, actor entity.Actor, req *CreateBookingRequest) (*BookingResult, error) {
	if req.Quantity < 1 || req.Quantity > s.settings.MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", entity.ErrInvalidQuantity, s.settings.MaxQuantity)
	}

	now := s.now()
	fx := &effects{}
	var result *BookingResult

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		fx.reset()

		event, err := tx.Events().GetByID(ctx, req.EventID)
		if err != nil {
			return err
		}
		if !event.Date.After(now) {
			return entity.ErrEventDatePast
		}
		category, ok := event.Category(req.TicketCategoryID)
		if !ok {
			return entity.ErrCategoryNotFound
		}

		discount, promoCode, err := s.promos.Apply(ctx, tx, event.ID, req.PromoCode, now)
		if err != nil {
			return fmt.Errorf("failed to apply promo code: %w", err)
		}

		remaining, err := s.ledger.Reserve(ctx, tx, event.ID, category.ID, req.Quantity)
		if err != nil {
			return err
		}

		booking := &entity.Booking{
			ID:               uuid.NewString(),
			EventID:          event.ID,
			UserID:           actor.UserID,
			TicketCategoryID: category.ID,
			Quantity:         req.Quantity,
			PricePerTicket:   category.Price,
			TotalPrice:       entity.CalculateTotal(category.Price, req.Quantity, discount),
			DiscountApplied:  discount,
			PromoCodeUsed:    promoCode,
			Status:           entity.BookingStatusPending,
			PaymentStatus:    entity.PaymentStatusPending,
			SelectedSeats:    append([]string{}, req.SelectedSeats...),
			ExpiresAt:        now.Add(s.settings.PaymentWindow),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		booking.QRCode = qrcode.Payload{
			BookingID:        booking.ID,
			EventID:          booking.EventID,
			TicketCategoryID: booking.TicketCategoryID,
			Quantity:         booking.Quantity,
			EventDate:        event.Date,
			Seats:            booking.SelectedSeats,
		}.Encode()

		if err := tx.Bookings().Create(ctx, booking); err != nil {
			return err
		}

		if err := s.convertWaitlistEntry(ctx, tx, booking, now); err != nil {
			return err
		}

		fx.reserved = booking.Quantity
		fx.invalidate(event.ID)
		fx.publish(entity.BookingEventCreated, booking, now)
		result = &BookingResult{Booking: booking, Remaining: remaining}
		return nil
	})
	if err != nil {
		var capErr *entity.CapacityError
		if errors.As(err, &capErr) {
			metrics.TrackCapacityRejection(req.EventID, req.TicketCategoryID)
		}
		return nil, err
	}

	s.flush(ctx, fx)
	metrics.TrackBookingTransition(string(entity.BookingStatusPending), "created")

	logrus.WithFields(logrus.Fields{
		"booking_id":  result.Booking.ID,
		"event_id":    result.Booking.EventID,
		"category_id": result.Booking.TicketCategoryID,
		"quantity":    result.Booking.Quantity,
		"remaining":   result.Remaining,
	}).Info("Booking created")

	return result, nil
}

// convertWaitlistEntry closes the user's waitlist slot for the category once
// they have booked it.
func (s *bookingService) convertWaitlistEntry(ctx context.Context, tx database.Tx, b *entity.Booking, now time.Time) error {
	entry, err := tx.Waitlist().GetByKey(ctx, b.EventID, b.UserID, b.TicketCategoryID)
	if errors.Is(err, entity.ErrWaitlistEntryNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !entry.IsActive() {
		return nil
	}

	entry.Status = entity.WaitlistStatusConverted
	entry.UpdatedAt = now
	return tx.Waitlist().Update(ctx, entry)
}

func (s *bookingService) GetBooking(ctx context.Context, actor entity.Actor, id string) (*entity.Booking, error) {
	var booking *entity.Booking
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		b, err := tx.Bookings().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !canAccess(actor, b.UserID) {
			return entity.ErrForbidden
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *bookingService) ListUserBookings(ctx context.Context, actor entity.Actor) ([]*entity.Booking, error) {
	var bookings []*entity.Booking
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		bookings, err = tx.Bookings().GetByUserID(ctx, actor.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, actor entity.Actor, id, reason string) (*entity.Booking, error) {
	if reason == "" {
		reason = entity.ReasonCancelledByUser
	}

	now := s.now()
	fx := &effects{}
	var booking *entity.Booking

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		fx.reset()

		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !canAccess(actor, b.UserID) {
			return entity.ErrForbidden
		}
		if b.Status != entity.BookingStatusPending && b.Status != entity.BookingStatusConfirmed {
			return &entity.TransitionError{Op: "cancel", Current: b.Status, Err: entity.ErrInvalidTransition}
		}

		event, err := tx.Events().GetByID(ctx, b.EventID)
		if err != nil {
			return err
		}
		if now.After(entity.CancelDeadline(event.Date, s.settings.CancelCutoff)) {
			return &entity.TransitionError{Op: "cancel", Current: b.Status, Err: entity.ErrTooLateToCancel}
		}

		paymentStatus := entity.PaymentStatusFailed
		if b.Status == entity.BookingStatusConfirmed {
			paymentStatus = entity.PaymentStatusRefunded
		}
		if err := b.Cancel(reason, paymentStatus, now); err != nil {
			return err
		}

		if err := s.releaseAndCascade(ctx, tx, b, now, fx); err != nil {
			return err
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}

		fx.publish(entity.BookingEventCancelled, b, now)
		fx.notify(bookingNotification(entity.NotificationBookingCancelled, b, reason, now))
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, fx)
	metrics.TrackBookingTransition(string(entity.BookingStatusCancelled), "user")

	logrus.WithFields(logrus.Fields{
		"booking_id":     booking.ID,
		"payment_status": booking.PaymentStatus,
		"actor":          actor.UserID,
	}).Info("Booking cancelled")

	return booking, nil
}

func (s *bookingService) CheckIn(ctx context.Context, actor entity.Actor, id string) (*entity.Booking, error) {
	now := s.now()
	fx := &effects{}
	var booking *entity.Booking

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		fx.reset()

		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		event, err := tx.Events().GetByID(ctx, b.EventID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && actor.UserID != event.OrganizerID {
			return entity.ErrForbidden
		}

		booking = b
		if err := b.CheckIn(now); err != nil {
			return err
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}

		fx.publish(entity.BookingEventCheckedIn, b, now)
		return nil
	})
	if errors.Is(err, entity.ErrAlreadyCheckedIn) {
		return booking, err
	}
	if err != nil {
		return nil, err
	}

	s.flush(ctx, fx)
	logrus.WithField("booking_id", booking.ID).Info("Booking checked in")
	return booking, nil
}

func (s *bookingService) FindExpired(ctx context.Context, after *entity.BookingCursor, limit int) ([]*entity.Booking, error) {
	cutoff := s.now().Add(-s.settings.PaymentWindow)

	var bookings []*entity.Booking
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		bookings, err = tx.Bookings().GetStalePending(ctx, cutoff, after, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find expired bookings: %w", err)
	}
	return bookings, nil
}

// ExpireBooking cancels an unpaid booking and reports whether it did. A
// booking that was paid or cancelled in the meantime is left untouched.
func (s *bookingService) ExpireBooking(ctx context.Context, id string) (bool, error) {
	now := s.now()
	fx := &effects{}
	expired := false

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		fx.reset()
		expired = false

		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !b.IsStale(now) {
			return nil
		}

		if err := b.Cancel(entity.ReasonPaymentNotCompleted, entity.PaymentStatusExpired, now); err != nil {
			return err
		}
		if err := s.releaseAndCascade(ctx, tx, b, now, fx); err != nil {
			return err
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}

		fx.publish(entity.BookingEventExpired, b, now)
		fx.notify(bookingNotification(entity.NotificationBookingExpired, b, entity.ReasonPaymentNotCompleted, now))
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}

	s.flush(ctx, fx)
	if expired {
		metrics.TrackBookingTransition(string(entity.BookingStatusCancelled), "expired")
		logrus.WithField("booking_id", id).Info("Booking expired")
	}
	return expired, nil
}

func bookingNotification(t entity.NotificationType, b *entity.Booking, reason string, now time.Time) *entity.Notification {
	return &entity.Notification{
		Type:             t,
		UserID:           b.UserID,
		EventID:          b.EventID,
		TicketCategoryID: b.TicketCategoryID,
		BookingID:        b.ID,
		Quantity:         b.Quantity,
		Reason:           reason,
		CreatedAt:        now,
	}
}
