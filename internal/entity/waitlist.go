package entity

import "time"

type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "waiting"
	WaitlistStatusNotified  WaitlistStatus = "notified"
	WaitlistStatusConverted WaitlistStatus = "converted"
	WaitlistStatusExpired   WaitlistStatus = "expired"
	WaitlistStatusRemoved   WaitlistStatus = "removed"
)

const (
	WaitlistMinQuantity = 1
	WaitlistMaxQuantity = 10
)

type WaitlistEntry struct {
	ID               string         `json:"id" db:"id"`
	EventID          string         `json:"event_id" db:"event_id"`
	UserID           string         `json:"user_id" db:"user_id"`
	TicketCategoryID string         `json:"ticket_category_id" db:"ticket_category_id"`
	Quantity         int            `json:"quantity" db:"quantity"`
	Status           WaitlistStatus `json:"status" db:"status"`
	RegisteredAt     time.Time      `json:"registered_at" db:"registered_at"`
	NotifiedAt       *time.Time     `json:"notified_at,omitempty" db:"notified_at"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty" db:"expires_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the entry still occupies its (event, user,
// category) slot.
func (w *WaitlistEntry) IsActive() bool {
	return w.Status == WaitlistStatusWaiting || w.Status == WaitlistStatusNotified
}

// Reactivate puts a finished entry back at the end of the queue.
func (w *WaitlistEntry) Reactivate(quantity int, now time.Time) {
	w.Quantity = quantity
	w.Status = WaitlistStatusWaiting
	w.RegisteredAt = now
	w.NotifiedAt = nil
	w.ExpiresAt = nil
	w.UpdatedAt = now
}

func (w *WaitlistEntry) Notify(now time.Time, window time.Duration) {
	expiresAt := now.Add(window)
	w.Status = WaitlistStatusNotified
	w.NotifiedAt = &now
	w.ExpiresAt = &expiresAt
	w.UpdatedAt = now
}
