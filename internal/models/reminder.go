package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReminderKind classifies a reminder
type ReminderKind string

const (
	ReminderUpcoming ReminderKind = "upcoming"
	ReminderOverdue  ReminderKind = "overdue"
)

// Reminder is a notification decided by the sweep for one unpaid installment
type Reminder struct {
	InstallmentID int64           `json:"installment_id"`
	ChargeID      int64           `json:"charge_id"`
	Number        int             `json:"number"`
	ClientName    string          `json:"client_name"`
	ClientEmail   string          `json:"client_email,omitempty"`
	ClientPhone   string          `json:"client_phone,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       time.Time       `json:"due_date"`
	Kind          ReminderKind    `json:"kind"`
	OffsetDays    int             `json:"offset_days"`
	Message       string          `json:"message"`
}

// ReminderLog records that a reminder went out for an installment on a given day
type ReminderLog struct {
	InstallmentID int64     `json:"installment_id"`
	SentOn        time.Time `json:"sent_on"`
	Kind          string    `json:"kind"`
	OffsetDays    int       `json:"offset_days"`
}
