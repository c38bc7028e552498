package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is applied when a transaction omits its currency
const DefaultCurrency = "INR"

// Transaction is immutable once it enters a batch.
type Transaction struct {
	UserID     string          `json:"user_id" validate:"required,max=128"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	Location   string          `json:"location,omitempty" validate:"max=256"`
	DeviceType string          `json:"device_type,omitempty" validate:"max=64"`
	Timestamp  time.Time       `json:"timestamp"`
}

// WithDefaults fills currency, location and device type when absent.
func (t Transaction) WithDefaults() Transaction {
	if t.Currency == "" {
		t.Currency = DefaultCurrency
	}
	if t.Location == "" {
		t.Location = "unknown"
	}
	if t.DeviceType == "" {
		t.DeviceType = "unknown"
	}
	return t
}

// TransactionAssessment is the outcome of scoring a single transaction
// against the managed fraud-scoring service.
type TransactionAssessment struct {
	EventID   string   `json:"event_id"`
	RiskScore Score    `json:"risk_score"`
	Reasons   []string `json:"reasons"`
	Error     string   `json:"error,omitempty"`
}
