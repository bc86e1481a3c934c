package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus is the lifecycle state of a deposit or withdrawal.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// Transfer is a deposit or withdrawal as reported by a venue.
type Transfer struct {
	ID      string
	Asset   string
	Amount  decimal.Decimal
	Address string
	TxID    string
	Status  TransferStatus
	At      time.Time
}

// IsPending reports whether the transfer has not settled yet.
func (t Transfer) IsPending() bool {
	return t.Status == TransferPending
}
