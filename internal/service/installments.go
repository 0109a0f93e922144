package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cobranca-service/internal/models"
	"github.com/Dan9191/cobranca-service/internal/schedule"
)

// InstallmentUpdate carries the editable fields of a pending installment.
// Nil fields are left unchanged.
type InstallmentUpdate struct {
	Amount  *string `json:"amount"`
	DueDate *string `json:"due_date"`
}

// ListInstallments returns the caller's installments filtered by status:
// "unpaid", "paid" or "" for all
func (s *Service) ListInstallments(ctx context.Context, status string) ([]models.Installment, error) {
	ownerID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var paid *bool
	switch strings.ToLower(status) {
	case "":
	case "unpaid", "pending":
		v := false
		paid = &v
	case "paid":
		v := true
		paid = &v
	default:
		return nil, validationf("unknown status filter %q", status)
	}

	installments, err := s.repo.ListInstallments(ctx, ownerID, paid)
	if err != nil {
		return nil, storeErr(err)
	}
	if installments == nil {
		installments = []models.Installment{}
	}
	return installments, nil
}

// GetInstallment returns one of the caller's installments
func (s *Service) GetInstallment(ctx context.Context, id int64) (*models.Installment, error) {
	return s.ownedInstallment(ctx, id)
}

// AddInstallment appends an installment to one of the caller's charges. The
// new installment takes the next sequence number and must fall due after the
// current last installment.
func (s *Service) AddInstallment(ctx context.Context, chargeID int64, amount, dueDate string) (*models.Installment, error) {
	charge, err := s.ownedCharge(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	value, err := schedule.ParseAmount(amount)
	if err != nil {
		return nil, storeErr(err)
	}
	due, err := schedule.ParseDate(dueDate)
	if err != nil {
		return nil, storeErr(err)
	}

	existing, err := s.repo.ListChargeInstallments(ctx, charge.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	if n := len(existing); n > 0 && !due.After(existing[n-1].DueDate) {
		return nil, validationf("due_date must be after %s", schedule.FormatDate(existing[n-1].DueDate))
	}

	inst := &models.Installment{
		ChargeID: charge.ID,
		OwnerID:  charge.OwnerID,
		Amount:   value,
		DueDate:  due,
	}
	if err := s.repo.AppendInstallment(ctx, inst); err != nil {
		return nil, storeErr(err)
	}

	s.log.WithFields(logrus.Fields{
		"charge_id":      charge.ID,
		"installment_id": inst.ID,
		"number":         inst.Number,
	}).Info("Installment added")
	return inst, nil
}

// PayInstallment marks one of the caller's installments as paid. Paying an
// already paid installment changes nothing and returns it as stored.
// An empty paidOn means today.
func (s *Service) PayInstallment(ctx context.Context, id int64, paidOn string) (*models.Installment, error) {
	inst, err := s.ownedInstallment(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Paid {
		return inst, nil
	}

	day := s.today()
	if strings.TrimSpace(paidOn) != "" {
		if day, err = schedule.ParseDate(paidOn); err != nil {
			return nil, storeErr(err)
		}
	}

	changed, err := s.repo.MarkInstallmentPaid(ctx, inst.ID, day)
	if err != nil {
		return nil, storeErr(err)
	}
	if changed {
		s.log.WithFields(logrus.Fields{
			"installment_id": inst.ID,
			"paid_on":        schedule.FormatDate(day),
		}).Info("Installment paid")
	}

	updated, err := s.repo.GetInstallment(ctx, inst.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	return updated, nil
}

// UpdateInstallment edits amount and/or due date of a pending installment.
// The due date must stay strictly between the neighbouring installments.
func (s *Service) UpdateInstallment(ctx context.Context, id int64, upd InstallmentUpdate) (*models.Installment, error) {
	inst, err := s.ownedInstallment(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Paid {
		return nil, validationf("installment %d is already paid", inst.ID)
	}
	if upd.Amount == nil && upd.DueDate == nil {
		return nil, validationf("nothing to update")
	}

	if upd.Amount != nil {
		if inst.Amount, err = schedule.ParseAmount(*upd.Amount); err != nil {
			return nil, storeErr(err)
		}
	}
	if upd.DueDate != nil {
		due, err := schedule.ParseDate(*upd.DueDate)
		if err != nil {
			return nil, storeErr(err)
		}
		siblings, err := s.repo.ListChargeInstallments(ctx, inst.ChargeID)
		if err != nil {
			return nil, storeErr(err)
		}
		if err := checkDueOrder(siblings, inst.Number, due); err != nil {
			return nil, err
		}
		inst.DueDate = due
	}

	if err := s.repo.UpdateInstallment(ctx, inst); err != nil {
		return nil, storeErr(err)
	}
	s.log.WithField("installment_id", inst.ID).Info("Installment updated")

	updated, err := s.repo.GetInstallment(ctx, inst.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	return updated, nil
}

// DeleteInstallment removes one of the caller's installments
func (s *Service) DeleteInstallment(ctx context.Context, id int64) error {
	inst, err := s.ownedInstallment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteInstallment(ctx, inst.ID); err != nil {
		return storeErr(err)
	}
	s.log.WithFields(logrus.Fields{
		"installment_id": inst.ID,
		"charge_id":      inst.ChargeID,
	}).Info("Installment deleted")
	return nil
}

// Dashboard summarizes the caller's installments as of today
func (s *Service) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	ownerID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	charges, err := s.repo.ListCharges(ctx, ownerID)
	if err != nil {
		return nil, storeErr(err)
	}
	installments, err := s.repo.ListInstallments(ctx, ownerID, nil)
	if err != nil {
		return nil, storeErr(err)
	}
	return summarize(len(charges), installments, s.today(), s.config.ReminderDaysBefore), nil
}

func summarize(charges int, installments []models.Installment, today time.Time, window int) *models.Dashboard {
	d := &models.Dashboard{
		Charges:       charges,
		PendingAmount: decimal.Zero,
		PaidAmount:    decimal.Zero,
		OverdueAmount: decimal.Zero,
		DueSoonAmount: decimal.Zero,
	}
	horizon := today.AddDate(0, 0, window)

	for i := range installments {
		inst := installments[i]
		if inst.Paid {
			d.PaidCount++
			d.PaidAmount = d.PaidAmount.Add(inst.Amount)
			continue
		}
		d.PendingCount++
		d.PendingAmount = d.PendingAmount.Add(inst.Amount)

		switch {
		case inst.DueDate.Before(today):
			d.OverdueCount++
			d.OverdueAmount = d.OverdueAmount.Add(inst.Amount)
		case !inst.DueDate.After(horizon):
			d.DueSoonCount++
			d.DueSoonAmount = d.DueSoonAmount.Add(inst.Amount)
		}
		if !inst.DueDate.Before(today) && (d.NextDue == nil || inst.DueDate.Before(d.NextDue.DueDate)) {
			d.NextDue = &inst
		}
	}
	return d
}

func (s *Service) ownedInstallment(ctx context.Context, id int64) (*models.Installment, error) {
	ownerID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	inst, err := s.repo.GetInstallment(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if inst.OwnerID != ownerID {
		s.log.WithFields(logrus.Fields{"user_id": ownerID, "installment_id": id}).Warn("Access to foreign installment denied")
		return nil, ErrForbidden
	}
	return inst, nil
}

// checkDueOrder verifies that moving installment number to due keeps due
// dates strictly increasing in sequence order
func checkDueOrder(siblings []models.Installment, number int, due time.Time) error {
	for _, sib := range siblings {
		switch {
		case sib.Number < number && !due.After(sib.DueDate):
			return validationf("due_date must be after installment %d (%s)", sib.Number, schedule.FormatDate(sib.DueDate))
		case sib.Number > number && !due.Before(sib.DueDate):
			return validationf("due_date must be before installment %d (%s)", sib.Number, schedule.FormatDate(sib.DueDate))
		}
	}
	return nil
}
