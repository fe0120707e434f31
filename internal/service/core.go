package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/database"
	"github.com/ds124wfegd/ems-booking/internal/entity"
	"github.com/ds124wfegd/ems-booking/internal/metrics"

	"github.com/sirupsen/logrus"
)

// core holds what every service needs: the unit of work, the ledger, the
// promo validator, the waitlist cascade and the post-commit collaborators.
type core struct {
	uow       database.UnitOfWork
	ledger    *Ledger
	promos    *PromoValidator
	cascade   *WaitlistCascade
	notifier  Notifier
	publisher EventPublisher
	alerter   Alerter
	cache     AvailabilityCache
	now       func() time.Time
	settings  Settings
}

func newCore(deps Dependencies, settings Settings) *core {
	c := &core{
		uow:       deps.UoW,
		ledger:    &Ledger{},
		promos:    &PromoValidator{},
		cascade:   NewWaitlistCascade(settings.WaitlistBatchSize, settings.WaitlistNotifyWindow),
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		alerter:   deps.Alerter,
		cache:     deps.Cache,
		now:       deps.Now,
		settings:  settings,
	}
	if c.notifier == nil {
		c.notifier = NoopNotifier{}
	}
	if c.publisher == nil {
		c.publisher = NoopPublisher{}
	}
	if c.alerter == nil {
		c.alerter = NoopAlerter{}
	}
	if c.cache == nil {
		c.cache = NoopCache{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// releaseAndCascade returns a booking's tickets to the ledger and notifies the
// next waitlisted users in the same transaction.
func (c *core) releaseAndCascade(ctx context.Context, tx database.Tx, b *entity.Booking, now time.Time, fx *effects) error {
	if _, err := c.ledger.Release(ctx, tx, b.EventID, b.TicketCategoryID, b.Quantity); err != nil {
		return fmt.Errorf("failed to release booking %s: %w", b.ID, err)
	}

	entries, err := c.cascade.Run(ctx, tx, b.EventID, b.TicketCategoryID, now)
	if err != nil {
		return err
	}

	fx.released += b.Quantity
	fx.invalidate(b.EventID)
	fx.waitlistNotified(entries, now)
	return nil
}

// effects collects what must happen only after a successful commit. The unit
// of work may replay fn, so every fn starts with reset.
type effects struct {
	notifications []*entity.Notification
	events        []entity.BookingEvent
	alerts        []string
	invalidations map[string]struct{}
	reserved      int
	released      int
	notified      int
}

func (fx *effects) reset() {
	*fx = effects{}
}

func (fx *effects) notify(n *entity.Notification) {
	fx.notifications = append(fx.notifications, n)
}

func (fx *effects) publish(t entity.BookingEventType, b *entity.Booking, at time.Time) {
	fx.events = append(fx.events, entity.NewBookingEvent(t, b, at))
}

func (fx *effects) alert(text string) {
	fx.alerts = append(fx.alerts, text)
}

func (fx *effects) invalidate(eventID string) {
	if fx.invalidations == nil {
		fx.invalidations = make(map[string]struct{})
	}
	fx.invalidations[eventID] = struct{}{}
}

func (fx *effects) waitlistNotified(entries []*entity.WaitlistEntry, now time.Time) {
	for _, e := range entries {
		fx.notify(&entity.Notification{
			Type:             entity.NotificationWaitlistNotified,
			UserID:           e.UserID,
			EventID:          e.EventID,
			TicketCategoryID: e.TicketCategoryID,
			WaitlistEntryID:  e.ID,
			Quantity:         e.Quantity,
			ExpiresAt:        e.ExpiresAt,
			CreatedAt:        now,
		})
	}
	fx.notified += len(entries)
}

// flush runs the collected side effects. Delivery failures are logged and
// never undo the committed state.
func (c *core) flush(ctx context.Context, fx *effects) {
	for eventID := range fx.invalidations {
		if err := c.cache.Invalidate(ctx, eventID); err != nil {
			logrus.WithError(err).WithField("event_id", eventID).Warn("Failed to invalidate availability cache")
		}
	}

	for _, n := range fx.notifications {
		if err := c.notifier.Notify(ctx, n); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"type":       n.Type,
				"user_id":    n.UserID,
				"booking_id": n.BookingID,
			}).Error("Failed to send notification")
		}
	}

	for _, e := range fx.events {
		if err := c.publisher.PublishBookingEvent(ctx, e); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"type":       e.Type,
				"booking_id": e.BookingID,
			}).Warn("Failed to publish booking event")
		}
	}

	for _, text := range fx.alerts {
		if err := c.alerter.Alert(ctx, text); err != nil {
			logrus.WithError(err).Error("Failed to send ops alert")
		}
	}

	if fx.reserved > 0 {
		metrics.TrackReserved(fx.reserved)
	}
	if fx.released > 0 {
		metrics.TrackReleased(fx.released)
	}
	if fx.notified > 0 {
		metrics.TrackWaitlistNotified(fx.notified)
	}
}

// canAccess reports whether actor may act on a resource owned by ownerID.
func canAccess(actor entity.Actor, ownerID string) bool {
	return actor.IsAdmin() || actor.UserID == ownerID
}
