package models

import "github.com/shopspring/decimal"

// Dashboard summarizes the installments of one user
type Dashboard struct {
	Charges       int             `json:"charges"`
	PendingCount  int             `json:"pending_count"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	PaidCount     int             `json:"paid_count"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	OverdueCount  int             `json:"overdue_count"`
	OverdueAmount decimal.Decimal `json:"overdue_amount"`
	DueSoonCount  int             `json:"due_soon_count"`
	DueSoonAmount decimal.Decimal `json:"due_soon_amount"`
	NextDue       *Installment    `json:"next_due,omitempty"`
}
