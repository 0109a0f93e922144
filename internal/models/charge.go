package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Charge is a billable obligation ("cobrança") owed by one client
type Charge struct {
	ID               int64           `json:"id"`
	OwnerID          int64           `json:"owner_id"`
	ClientName       string          `json:"client_name"`
	Description      string          `json:"description"`
	Amount           decimal.Decimal `json:"amount"`
	InstallmentCount int             `json:"installment_count"`
	ClientEmail      string          `json:"client_email,omitempty"`
	ClientPhone      string          `json:"client_phone,omitempty"`
	AmountPolicy     string          `json:"amount_policy"`
	DueSpacing       string          `json:"due_spacing"`
	CreatedAt        time.Time       `json:"created_at"`

	Installments []Installment `json:"installments,omitempty"`
}
