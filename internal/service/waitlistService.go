package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/database"
	"github.com/ds124wfegd/ems-booking/internal/entity"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const expireNotifiedBatch = 100

// WaitlistCascade hands freed capacity to the longest-waiting users. It only
// notifies; the users still have to book.
type WaitlistCascade struct {
	batchSize int
	window    time.Duration
}

func NewWaitlistCascade(batchSize int, window time.Duration) *WaitlistCascade {
	if batchSize < 1 {
		batchSize = 1
	}
	return &WaitlistCascade{batchSize: batchSize, window: window}
}

// Run must be called inside the transaction that released the capacity.
func (c *WaitlistCascade) Run(ctx context.Context, tx database.Tx, eventID, categoryID string, now time.Time) ([]*entity.WaitlistEntry, error) {
	entries, err := tx.Waitlist().NotifyOldestWaiting(ctx, eventID, categoryID, c.batchSize, now, c.window)
	if err != nil {
		return nil, fmt.Errorf("failed to run waitlist cascade: %w", err)
	}
	return entries, nil
}

type JoinWaitlistRequest struct {
	EventID          string `json:"eventId" binding:"required"`
	TicketCategoryID string `json:"ticketCategoryId" binding:"required"`
	Quantity         int    `json:"quantity" binding:"required,min=1,max=10"`
}

type WaitlistResult struct {
	Entry *entity.WaitlistEntry `json:"entry"`
	// Position is 1-based among waiting entries and 0 once the entry has left the queue.
	Position int `json:"position"`
}

type waitlistService struct {
	*core
}

// Join queues the user for a category that cannot currently satisfy quantity.
// A previous removed, expired or converted row is reactivated at the back of
// the queue.
func (s *waitlistService) Join(ctx context.Context, actor entity.Actor, req *JoinWaitlistRequest) (*WaitlistResult, error) {
	if req.Quantity < entity.WaitlistMinQuantity || req.Quantity > entity.WaitlistMaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between %d and %d",
			entity.ErrInvalidQuantity, entity.WaitlistMinQuantity, entity.WaitlistMaxQuantity)
	}

	now := s.now()
	var result *WaitlistResult

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		category, err := tx.Events().GetCategory(ctx, req.EventID, req.TicketCategoryID)
		if err != nil {
			return err
		}
		if category.Remaining() >= req.Quantity {
			return entity.ErrTicketsAvailable
		}

		entry, err := tx.Waitlist().GetByKey(ctx, req.EventID, actor.UserID, req.TicketCategoryID)
		switch {
		case err == nil:
			if entry.IsActive() {
				return entity.ErrAlreadyOnWaitlist
			}
			entry.Reactivate(req.Quantity, now)
			if err := tx.Waitlist().Update(ctx, entry); err != nil {
				return err
			}
		case errors.Is(err, entity.ErrWaitlistEntryNotFound):
			entry = &entity.WaitlistEntry{
				ID:               uuid.NewString(),
				EventID:          req.EventID,
				UserID:           actor.UserID,
				TicketCategoryID: req.TicketCategoryID,
				Quantity:         req.Quantity,
				Status:           entity.WaitlistStatusWaiting,
				RegisteredAt:     now,
				UpdatedAt:        now,
			}
			if err := tx.Waitlist().Create(ctx, entry); err != nil {
				return err
			}
		default:
			return err
		}

		position, err := tx.Waitlist().Position(ctx, entry)
		if err != nil {
			return err
		}
		result = &WaitlistResult{Entry: entry, Position: position}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"entry_id":    result.Entry.ID,
		"event_id":    req.EventID,
		"category_id": req.TicketCategoryID,
		"position":    result.Position,
	}).Info("Joined waitlist")
	return result, nil
}

// Leave removes the entry. Leaving while notified passes the freed slot on to
// the next waiting user.
func (s *waitlistService) Leave(ctx context.Context, actor entity.Actor, id string) (*entity.WaitlistEntry, error) {
	now := s.now()
	fx := &effects{}
	var entry *entity.WaitlistEntry

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		fx.reset()

		e, err := tx.Waitlist().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !canAccess(actor, e.UserID) {
			return entity.ErrForbidden
		}
		entry = e
		if !e.IsActive() {
			return nil
		}

		wasNotified := e.Status == entity.WaitlistStatusNotified
		e.Status = entity.WaitlistStatusRemoved
		e.UpdatedAt = now
		if err := tx.Waitlist().Update(ctx, e); err != nil {
			return err
		}

		if wasNotified {
			return s.passOn(ctx, tx, e, now, fx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, fx)
	return entry, nil
}

func (s *waitlistService) Position(ctx context.Context, actor entity.Actor, id string) (*WaitlistResult, error) {
	var result *WaitlistResult

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		e, err := tx.Waitlist().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !canAccess(actor, e.UserID) {
			return entity.ErrForbidden
		}

		result = &WaitlistResult{Entry: e}
		if e.Status != entity.WaitlistStatusWaiting {
			return nil
		}
		result.Position, err = tx.Waitlist().Position(ctx, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExpireNotified closes notification windows that ran out and offers the
// capacity to the next users in line.
func (s *waitlistService) ExpireNotified(ctx context.Context) (int, error) {
	now := s.now()
	fx := &effects{}
	expired := 0

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		fx.reset()

		entries, err := tx.Waitlist().ExpireNotified(ctx, now, expireNotifiedBatch)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := s.passOn(ctx, tx, e, now, fx); err != nil {
				return err
			}
		}
		expired = len(entries)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expire waitlist notifications: %w", err)
	}

	s.flush(ctx, fx)
	if expired > 0 {
		logrus.WithField("count", expired).Info("Expired waitlist notifications")
	}
	return expired, nil
}

// passOn cascades to the next waiting entry if the category still has free
// capacity.
func (s *waitlistService) passOn(ctx context.Context, tx database.Tx, e *entity.WaitlistEntry, now time.Time, fx *effects) error {
	category, err := tx.Events().GetCategory(ctx, e.EventID, e.TicketCategoryID)
	if err != nil {
		return err
	}
	if category.Remaining() <= 0 {
		return nil
	}

	next, err := s.cascade.Run(ctx, tx, e.EventID, e.TicketCategoryID, now)
	if err != nil {
		return err
	}
	fx.waitlistNotified(next, now)
	return nil
}
