package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Event is owned by the event catalogue; this service only reads it and
// adjusts the per-category sold counters.
type Event struct {
	ID          string           `json:"id" db:"id"`
	Title       string           `json:"title" db:"title"`
	Date        time.Time        `json:"date" db:"date"`
	OrganizerID string           `json:"organizer_id" db:"organizer_id"`
	Categories  []TicketCategory `json:"categories"`
	PromoCodes  []PromoCode      `json:"-"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

type TicketCategory struct {
	ID      string          `json:"id" db:"id"`
	EventID string          `json:"event_id" db:"event_id"`
	Name    string          `json:"name" db:"name"`
	Price   decimal.Decimal `json:"price" db:"price"`
	Total   int             `json:"total" db:"total"`
	Sold    int             `json:"sold" db:"sold"`
	Version int64           `json:"-" db:"version"`
}

func (c TicketCategory) Remaining() int {
	return c.Total - c.Sold
}

type PromoCode struct {
	EventID            string    `json:"event_id" db:"event_id"`
	Code               string    `json:"code" db:"code"`
	DiscountPercentage int       `json:"discount_percentage" db:"discount_percentage"`
	ExpiryDate         time.Time `json:"expiry_date" db:"expiry_date"`
	MaxUsage           int       `json:"max_usage" db:"max_usage"`
	UsedCount          int       `json:"used_count" db:"used_count"`
}

func (p PromoCode) IsUsable(now time.Time) bool {
	return now.Before(p.ExpiryDate) && p.UsedCount < p.MaxUsage
}

// NormalizePromoCode upper-cases and trims a user-supplied code to match the
// stored form.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (e *Event) Category(id string) (*TicketCategory, bool) {
	for i := range e.Categories {
		if e.Categories[i].ID == id {
			return &e.Categories[i], true
		}
	}
	return nil, false
}

type CategoryAvailability struct {
	EventID          string `json:"event_id"`
	TicketCategoryID string `json:"ticket_category_id"`
	Total            int    `json:"total"`
	Sold             int    `json:"sold"`
	Remaining        int    `json:"remaining"`
}
