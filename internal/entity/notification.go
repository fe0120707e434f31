package entity

import "time"

type NotificationType string

const (
	NotificationBookingConfirmed NotificationType = "booking_confirmed"
	NotificationBookingCancelled NotificationType = "booking_cancelled"
	NotificationBookingExpired   NotificationType = "booking_expired"
	NotificationWaitlistNotified NotificationType = "waitlist_notified"
)

// Notification is handed to the delivery service (email, QR image) through
// the message broker.
type Notification struct {
	Type             NotificationType `json:"type"`
	UserID           string           `json:"user_id"`
	EventID          string           `json:"event_id"`
	TicketCategoryID string           `json:"ticket_category_id"`
	BookingID        string           `json:"booking_id,omitempty"`
	WaitlistEntryID  string           `json:"waitlist_entry_id,omitempty"`
	Quantity         int              `json:"quantity"`
	QRPayload        string           `json:"qr_payload,omitempty"`
	QRImage          string           `json:"qr_image,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

type BookingEventType string

const (
	BookingEventCreated   BookingEventType = "booking.created"
	BookingEventConfirmed BookingEventType = "booking.confirmed"
	BookingEventCancelled BookingEventType = "booking.cancelled"
	BookingEventExpired   BookingEventType = "booking.expired"
	BookingEventCheckedIn BookingEventType = "booking.checked_in"
)

// BookingEvent is the lifecycle record streamed to analytics.
type BookingEvent struct {
	Type             BookingEventType `json:"type"`
	BookingID        string           `json:"booking_id"`
	EventID          string           `json:"event_id"`
	TicketCategoryID string           `json:"ticket_category_id"`
	UserID           string           `json:"user_id"`
	Quantity         int              `json:"quantity"`
	TotalPrice       string           `json:"total_price"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

func NewBookingEvent(t BookingEventType, b *Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Type:             t,
		BookingID:        b.ID,
		EventID:          b.EventID,
		TicketCategoryID: b.TicketCategoryID,
		UserID:           b.UserID,
		Quantity:         b.Quantity,
		TotalPrice:       b.TotalPrice.StringFixed(2),
		OccurredAt:       at,
	}
}
