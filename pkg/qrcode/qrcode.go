// Package qrcode encodes booking check-in payloads and renders them as PNG.
package qrcode

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goqrcode "github.com/skip2/go-qrcode"
)

const (
	Prefix    = "EMS"
	NoSeats   = "NO_SEATS"
	separator = "|"
	fieldsLen = 7

	// DefaultSize is the PNG edge in pixels used for emailed tickets.
	DefaultSize = 300
)

var ErrMalformedPayload = errors.New("malformed QR payload")

// Payload is the content of a ticket QR code:
// EMS|<bookingId>|<eventId>|<ticketCategoryId>|<quantity>|<eventDate>|<seats or NO_SEATS>
type Payload struct {
	BookingID        string
	EventID          string
	TicketCategoryID string
	Quantity         int
	EventDate        time.Time
	Seats            []string
}

func (p Payload) Encode() string {
	seats := NoSeats
	if len(p.Seats) > 0 {
		seats = strings.Join(p.Seats, ",")
	}
	return strings.Join([]string{
		Prefix,
		p.BookingID,
		p.EventID,
		p.TicketCategoryID,
		strconv.Itoa(p.Quantity),
		p.EventDate.UTC().Format(time.RFC3339),
		seats,
	}, separator)
}

func Parse(raw string) (Payload, error) {
	parts := strings.Split(raw, separator)
	if len(parts) != fieldsLen {
		return Payload{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedPayload, fieldsLen, len(parts))
	}
	if parts[0] != Prefix {
		return Payload{}, fmt.Errorf("%w: unknown prefix %q", ErrMalformedPayload, parts[0])
	}
	for i, part := range parts[1:4] {
		if part == "" {
			return Payload{}, fmt.Errorf("%w: empty field %d", ErrMalformedPayload, i+1)
		}
	}

	quantity, err := strconv.Atoi(parts[4])
	if err != nil || quantity < 1 {
		return Payload{}, fmt.Errorf("%w: bad quantity %q", ErrMalformedPayload, parts[4])
	}

	eventDate, err := time.Parse(time.RFC3339, parts[5])
	if err != nil {
		return Payload{}, fmt.Errorf("%w: bad event date %q", ErrMalformedPayload, parts[5])
	}

	var seats []string
	if parts[6] != NoSeats && parts[6] != "" {
		seats = strings.Split(parts[6], ",")
	}

	return Payload{
		BookingID:        parts[1],
		EventID:          parts[2],
		TicketCategoryID: parts[3],
		Quantity:         quantity,
		EventDate:        eventDate,
		Seats:            seats,
	}, nil
}

// PNG renders text with medium error correction.
func PNG(text string, size int) ([]byte, error) {
	png, err := goqrcode.Encode(text, goqrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return png, nil
}

// PNGDataURI returns "data:image/png;base64,..." ready for an <img> tag.
func PNGDataURI(text string, size int) (string, error) {
	png, err := PNG(text, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
