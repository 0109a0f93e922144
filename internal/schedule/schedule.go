// Package schedule expands a charge into its dated installments.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AmountPolicy decides how the submitted amount maps onto each installment
type AmountPolicy string

const (
	// DivideTotal splits the amount evenly across installments, each rounded to
	// cents. The rounding remainder is not reconciled against the total.
	DivideTotal AmountPolicy = "divide"
	// FixedPerInstallment charges the submitted amount on every installment.
	FixedPerInstallment AmountPolicy = "fixed"
)

// DueSpacing decides the distance between consecutive due dates
type DueSpacing string

const (
	// ThirtyDays places installment i at first due + 30*(i-1) days.
	ThirtyDays DueSpacing = "30d"
	// CalendarMonths places installment i at first due + (i-1) months, clamped
	// to the last day of shorter months.
	CalendarMonths DueSpacing = "monthly"
)

const dateLayout = "2006-01-02"

// ErrInvalidPlan is returned for plans that cannot produce installments
var ErrInvalidPlan = errors.New("invalid installment plan")

// Plan is the input of Generate
type Plan struct {
	Amount   decimal.Decimal
	Count    int
	FirstDue time.Time
	Policy   AmountPolicy
	Spacing  DueSpacing
}

// Line is one generated installment
type Line struct {
	Number  int
	Amount  decimal.Decimal
	DueDate time.Time
}

// ParseAmountPolicy validates a configured amount policy
func ParseAmountPolicy(s string) (AmountPolicy, error) {
	switch p := AmountPolicy(s); p {
	case DivideTotal, FixedPerInstallment:
		return p, nil
	}
	return "", fmt.Errorf("unknown amount policy %q", s)
}

// ParseDueSpacing validates a configured due date spacing
func ParseDueSpacing(s string) (DueSpacing, error) {
	switch sp := DueSpacing(s); sp {
	case ThirtyDays, CalendarMonths:
		return sp, nil
	}
	return "", fmt.Errorf("unknown due spacing %q", s)
}

// Generate produces Count installments numbered 1..Count with strictly increasing due dates
func Generate(p Plan) ([]Line, error) {
	if p.Count < 1 {
		return nil, fmt.Errorf("%w: installment count must be at least 1, got %d", ErrInvalidPlan, p.Count)
	}
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidPlan)
	}
	if p.FirstDue.IsZero() {
		return nil, fmt.Errorf("%w: first due date is required", ErrInvalidPlan)
	}

	each, err := InstallmentAmount(p.Amount, p.Count, p.Policy)
	if err != nil {
		return nil, err
	}
	if !each.IsPositive() {
		return nil, fmt.Errorf("%w: %s split into %d installments rounds to %s each",
			ErrInvalidPlan, p.Amount.StringFixed(2), p.Count, each.StringFixed(2))
	}

	first := DateOnly(p.FirstDue)
	lines := make([]Line, 0, p.Count)
	for i := 1; i <= p.Count; i++ {
		due, err := DueDate(first, i, p.Spacing)
		if err != nil {
			return nil, err
		}
		lines = append(lines, Line{Number: i, Amount: each, DueDate: due})
	}
	return lines, nil
}

// InstallmentAmount returns the amount of a single installment under the policy
func InstallmentAmount(amount decimal.Decimal, count int, policy AmountPolicy) (decimal.Decimal, error) {
	switch policy {
	case DivideTotal:
		return amount.Div(decimal.NewFromInt(int64(count))).Round(2), nil
	case FixedPerInstallment:
		return amount, nil
	}
	return decimal.Zero, fmt.Errorf("%w: unknown amount policy %q", ErrInvalidPlan, policy)
}

// DueDate returns the due date of installment number n (1-based)
func DueDate(first time.Time, n int, spacing DueSpacing) (time.Time, error) {
	switch spacing {
	case ThirtyDays:
		return first.AddDate(0, 0, 30*(n-1)), nil
	case CalendarMonths:
		return AddMonths(first, n-1), nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown due spacing %q", ErrInvalidPlan, spacing)
}

// AddMonths adds calendar months to a date; a day that does not exist in the
// target month becomes that month's last day (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := time.Date(target.Year(), target.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, t.Location())
}

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MaxAmount is the largest amount a NUMERIC(12,2) column holds
var MaxAmount = decimal.RequireFromString("9999999999.99")

// ParseAmount parses a user-supplied decimal amount with at most two fractional
// digits. A comma is accepted as the decimal separator when no dot is present ("150,90").
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidPlan)
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, fmt.Errorf("%w: invalid amount %q", ErrInvalidPlan, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid amount %q", ErrInvalidPlan, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalidPlan)
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, fmt.Errorf("%w: amount %q has more than 2 decimal places", ErrInvalidPlan, s)
	}
	if d.GreaterThan(MaxAmount) {
		return decimal.Zero, fmt.Errorf("%w: amount must not exceed %s", ErrInvalidPlan, MaxAmount.StringFixed(2))
	}
	return d, nil
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", ErrInvalidPlan, s)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
