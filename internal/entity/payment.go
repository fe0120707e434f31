package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus mirrors the payment provider's transaction_status values.
type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionCapture    TransactionStatus = "capture"
	TransactionSettlement TransactionStatus = "settlement"
	TransactionDeny       TransactionStatus = "deny"
	TransactionCancel     TransactionStatus = "cancel"
	TransactionExpire     TransactionStatus = "expire"
	TransactionFailure    TransactionStatus = "failure"
	TransactionRefund     TransactionStatus = "refund"
)

func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionPending && s != ""
}

// IsSuccess reports whether the provider has taken the money.
func (s TransactionStatus) IsSuccess() bool {
	return s == TransactionCapture || s == TransactionSettlement
}

type Payment struct {
	OrderID           string            `json:"order_id" db:"order_id"`
	BookingID         string            `json:"booking_id" db:"booking_id"`
	TransactionStatus TransactionStatus `json:"transaction_status" db:"transaction_status"`
	PaymentType       string            `json:"payment_type,omitempty" db:"payment_type"`
	GrossAmount       decimal.Decimal   `json:"gross_amount" db:"gross_amount"`
	EmailSent         bool              `json:"email_sent" db:"email_sent"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// LatchEmail flips emailSent and reports whether this call was the one that
// flipped it.
func (p *Payment) LatchEmail() bool {
	if p.EmailSent {
		return false
	}
	p.EmailSent = true
	return true
}
