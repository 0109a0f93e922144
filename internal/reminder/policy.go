// Package reminder decides which unpaid installments need a reminder and
// sends them on a schedule.
package reminder

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/cobranca-service/internal/models"
	"github.com/Dan9191/cobranca-service/internal/schedule"
)

// DefaultDaysBefore is how many days ahead of the due date reminders start
const DefaultDaysBefore = 5

// OffsetDays is due minus today in whole calendar days
func OffsetDays(due, today time.Time) int {
	d := schedule.DateOnly(due).Sub(schedule.DateOnly(today))
	return int(d.Hours() / 24)
}

// Classify decides whether an unpaid installment due on due needs a reminder
// today. Offsets 0..daysBefore are upcoming, negative offsets are overdue.
func Classify(due, today time.Time, daysBefore int) (models.ReminderKind, int, bool) {
	offset := OffsetDays(due, today)
	switch {
	case offset < 0:
		return models.ReminderOverdue, offset, true
	case offset <= daysBefore:
		return models.ReminderUpcoming, offset, true
	}
	return "", offset, false
}

// Message renders the reminder text for a client
func Message(kind models.ReminderKind, offset int, client string, number int, amount decimal.Decimal, due time.Time) string {
	value := amount.StringFixed(2)
	switch {
	case kind == models.ReminderOverdue:
		return fmt.Sprintf("Notice: installment %d of %s (%s) is %d day(s) overdue since %s.",
			number, client, value, -offset, schedule.FormatDate(due))
	case offset == 0:
		return fmt.Sprintf("Reminder: installment %d of %s (%s) is due today.", number, client, value)
	}
	return fmt.Sprintf("Reminder: installment %d of %s (%s) is due in %d day(s), on %s.",
		number, client, value, offset, schedule.FormatDate(due))
}
