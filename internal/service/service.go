package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/ems-booking/config"
	"github.com/ds124wfegd/ems-booking/internal/database"
	"github.com/ds124wfegd/ems-booking/internal/entity"
	"github.com/ds124wfegd/ems-booking/pkg/gateway"
)

type BookingService interface {
	CreateBooking(ctx context.Context, actor entity.Actor, req *CreateBookingRequest) (*BookingResult, error)
	GetBooking(ctx context.Context, actor entity.Actor, id string) (*entity.Booking, error)
	ListUserBookings(ctx context.Context, actor entity.Actor) ([]*entity.Booking, error)
	CancelBooking(ctx context.Context, actor entity.Actor, id, reason string) (*entity.Booking, error)
	// CheckIn returns the unchanged booking together with
	// entity.ErrAlreadyCheckedIn on a repeated check-in.
	CheckIn(ctx context.Context, actor entity.Actor, id string) (*entity.Booking, error)

	// Reaper operations
	// FindExpired pages through unpaid bookings past their window; pass the
	// last booking's cursor to continue after it.
	FindExpired(ctx context.Context, after *entity.BookingCursor, limit int) ([]*entity.Booking, error)
	ExpireBooking(ctx context.Context, id string) (bool, error)
}

type PaymentService interface {
	InitiatePayment(ctx context.Context, actor entity.Actor, bookingID string) (*entity.Payment, error)
	Reconcile(ctx context.Context, orderID, providerStatus, fraudStatus string) (*ReconcileResult, error)

	// Entry points, all of them thin wrappers over Reconcile
	HandleNotification(ctx context.Context, n *gateway.Notification) (*ReconcileResult, error)
	PollStatus(ctx context.Context, orderID string) (*ReconcileResult, error)
	MockComplete(ctx context.Context, orderID string) (*ReconcileResult, error)
}

type WaitlistService interface {
	Join(ctx context.Context, actor entity.Actor, req *JoinWaitlistRequest) (*WaitlistResult, error)
	Leave(ctx context.Context, actor entity.Actor, id string) (*entity.WaitlistEntry, error)
	Position(ctx context.Context, actor entity.Actor, id string) (*WaitlistResult, error)
	ExpireNotified(ctx context.Context) (int, error)
}

type EventService interface {
	GetAvailability(ctx context.Context, eventID, categoryID string) (*entity.CategoryAvailability, error)
	ListAvailability(ctx context.Context, eventID string) ([]entity.CategoryAvailability, error)
	ValidatePromo(ctx context.Context, eventID, code string) (*PromoResult, error)
}

// Notifier hands user-facing messages to the delivery service.
type Notifier interface {
	Notify(ctx context.Context, n *entity.Notification) error
}

// EventPublisher streams booking lifecycle events to analytics.
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, e entity.BookingEvent) error
}

type Alerter interface {
	Alert(ctx context.Context, text string) error
}

type AvailabilityCache interface {
	Get(ctx context.Context, eventID string) ([]entity.CategoryAvailability, bool, error)
	Set(ctx context.Context, eventID string, availability []entity.CategoryAvailability) error
	Invalidate(ctx context.Context, eventID string) error
}

type PaymentGateway interface {
	GetStatus(ctx context.Context, orderID string) (*gateway.Notification, error)
}

// Settings are the business knobs read from the booking, waitlist, reaper
// and payment config sections.
type Settings struct {
	PaymentWindow        time.Duration
	CancelCutoff         time.Duration
	MaxQuantity          int
	WaitlistBatchSize    int
	WaitlistNotifyWindow time.Duration
	ServerKey            string
	VerifySignature      bool
	MockPaymentsEnabled  bool
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		PaymentWindow:        cfg.Booking.PaymentWindow,
		CancelCutoff:         cfg.Booking.CancelCutoff,
		MaxQuantity:          cfg.Booking.MaxQuantity,
		WaitlistBatchSize:    cfg.Waitlist.BatchSize,
		WaitlistNotifyWindow: cfg.Waitlist.NotifyWindow,
		ServerKey:            cfg.Payment.ServerKey,
		VerifySignature:      cfg.Payment.VerifySignature,
		MockPaymentsEnabled:  cfg.Payment.MockEnabled,
	}
}

// DefaultSettings mirrors the config defaults.
func DefaultSettings() Settings {
	return Settings{
		PaymentWindow:        24 * time.Hour,
		CancelCutoff:         7 * 24 * time.Hour,
		MaxQuantity:          10,
		WaitlistBatchSize:    1,
		WaitlistNotifyWindow: 24 * time.Hour,
		MockPaymentsEnabled:  true,
	}
}

// Dependencies are the collaborators shared by all services. Optional ones
// left nil are replaced by no-ops.
type Dependencies struct {
	UoW       database.UnitOfWork
	Notifier  Notifier
	Publisher EventPublisher
	Alerter   Alerter
	Cache     AvailabilityCache
	Gateway   PaymentGateway
	Now       func() time.Time
}

type Services struct {
	Booking  BookingService
	Payment  PaymentService
	Waitlist WaitlistService
	Event    EventService
}

func NewServices(deps Dependencies, settings Settings) *Services {
	c := newCore(deps, settings)
	return &Services{
		Booking:  &bookingService{core: c},
		Payment:  &paymentService{core: c, gateway: deps.Gateway},
		Waitlist: &waitlistService{core: c},
		Event:    &eventService{core: c},
	}
}
