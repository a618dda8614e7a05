package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Fallback reasons.
const (
	ReasonCircuitOpen      = "circuit_open"
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonUnexpected       = "unexpected_response"
	ReasonRejected         = "rejected"
	ReasonDeclined         = "declined"
)

// Outcome is the typed result of one payment collection. Infrastructure
// failures surface here as StatusFailed, never as an error.
type Outcome struct {
	OrderID        int64
	UserID         int64
	Amount         decimal.Decimal
	Status         Status
	PaymentDate    time.Time
	Reason         string
	ShortCircuited bool
	Attempts       int
}

func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// Record is one persisted payment row.
type Record struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"orderId"`
	UserID      int64           `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Status      Status          `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	PaymentDate time.Time       `json:"paymentDate"`
}
