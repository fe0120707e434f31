package service

import (
	"context"
	"errors"

	"github.com/ds124wfegd/ems-booking/internal/database"
	"github.com/ds124wfegd/ems-booking/internal/entity"

	"github.com/sirupsen/logrus"
)

type eventService struct {
	*core
}

func (s *eventService) GetAvailability(ctx context.Context, eventID, categoryID string) (*entity.CategoryAvailability, error) {
	availability, err := s.ListAvailability(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for i := range availability {
		if availability[i].TicketCategoryID == categoryID {
			return &availability[i], nil
		}
	}
	return nil, entity.ErrCategoryNotFound
}

// ListAvailability serves from the cache when possible. The cache is
// best-effort: any cache error falls through to storage.
func (s *eventService) ListAvailability(ctx context.Context, eventID string) ([]entity.CategoryAvailability, error) {
	cached, ok, err := s.cache.Get(ctx, eventID)
	if err != nil {
		logrus.WithError(err).WithField("event_id", eventID).Warn("Availability cache read failed")
	}
	if ok {
		return cached, nil
	}

	var availability []entity.CategoryAvailability
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		event, err := tx.Events().GetByID(ctx, eventID)
		if err != nil {
			return err
		}
		availability = make([]entity.CategoryAvailability, 0, len(event.Categories))
		for _, c := range event.Categories {
			availability = append(availability, entity.CategoryAvailability{
				EventID:          event.ID,
				TicketCategoryID: c.ID,
				Total:            c.Total,
				Sold:             c.Sold,
				Remaining:        c.Remaining(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, eventID, availability); err != nil {
		logrus.WithError(err).WithField("event_id", eventID).Warn("Availability cache write failed")
	}
	return availability, nil
}

// ValidatePromo is a dry run; it never consumes a use.
func (s *eventService) ValidatePromo(ctx context.Context, eventID, code string) (*PromoResult, error) {
	now := s.now()
	var result PromoResult

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		if _, err := tx.Events().GetByID(ctx, eventID); err != nil {
			return err
		}

		promo, err := tx.Events().GetPromo(ctx, eventID, code)
		if err != nil && !errors.Is(err, entity.ErrPromoNotFound) {
			return err
		}
		result = s.promos.Validate(promo, code, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
