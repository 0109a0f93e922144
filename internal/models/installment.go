package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Installment is one scheduled payment ("parcela") of a charge
type Installment struct {
	ID        int64           `json:"id"`
	ChargeID  int64           `json:"charge_id"`
	OwnerID   int64           `json:"owner_id"`
	Number    int             `json:"number"`
	Amount    decimal.Decimal `json:"amount"`
	DueDate   time.Time       `json:"due_date"`
	Paid      bool            `json:"paid"`
	PaidOn    *time.Time      `json:"paid_on,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DueInstallment is an unpaid installment together with the contact data of its charge
type DueInstallment struct {
	Installment
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email,omitempty"`
	ClientPhone string `json:"client_phone,omitempty"`

	// ContactErr is set when the stored contact data could not be read; the
	// contact fields are then empty
	ContactErr error `json:"-"`
}
