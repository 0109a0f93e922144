package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cobranca-service/internal/models"
	"github.com/Dan9191/cobranca-service/internal/schedule"
)

// ChargeInput is a charge submission as received from the caller
type ChargeInput struct {
	ClientName   string `json:"client_name"`
	Description  string `json:"description"`
	Amount       string `json:"amount"`
	Installments int    `json:"installments"`
	FirstDue     string `json:"first_due"`
	ClientEmail  string `json:"client_email"`
	ClientPhone  string `json:"client_phone"`
}

// CreateCharge validates a submission, expands it into installments with the
// configured amount policy and due spacing, and stores everything atomically
func (s *Service) CreateCharge(ctx context.Context, in ChargeInput) (*models.Charge, error) {
	ownerID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	in.ClientName = strings.TrimSpace(in.ClientName)
	if in.ClientName == "" {
		return nil, validationf("client_name is required")
	}
	if in.Installments < 1 {
		return nil, validationf("installments must be at least 1, got %d", in.Installments)
	}
	amount, err := schedule.ParseAmount(in.Amount)
	if err != nil {
		return nil, storeErr(err)
	}
	firstDue, err := schedule.ParseDate(in.FirstDue)
	if err != nil {
		return nil, storeErr(err)
	}
	email := strings.TrimSpace(in.ClientEmail)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, validationf("invalid client_email %q", email)
		}
	}
	phone, err := normalizePhone(in.ClientPhone)
	if err != nil {
		return nil, err
	}

	lines, err := schedule.Generate(schedule.Plan{
		Amount:   amount,
		Count:    in.Installments,
		FirstDue: firstDue,
		Policy:   s.policy,
		Spacing:  s.spacing,
	})
	if err != nil {
		return nil, storeErr(err)
	}

	charge := &models.Charge{
		OwnerID:          ownerID,
		ClientName:       in.ClientName,
		Description:      strings.TrimSpace(in.Description),
		Amount:           amount,
		InstallmentCount: in.Installments,
		ClientEmail:      email,
		ClientPhone:      phone,
		AmountPolicy:     string(s.policy),
		DueSpacing:       string(s.spacing),
	}
	installments := make([]models.Installment, 0, len(lines))
	for _, l := range lines {
		installments = append(installments, models.Installment{
			Number:  l.Number,
			Amount:  l.Amount,
			DueDate: l.DueDate,
		})
	}

	if err := s.repo.CreateCharge(ctx, charge, installments); err != nil {
		return nil, storeErr(err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":      ownerID,
		"charge_id":    charge.ID,
		"installments": len(installments),
		"policy":       s.policy,
		"spacing":      s.spacing,
	}).Info("Charge created")
	return charge, nil
}

// ListCharges returns the caller's charges, newest first
func (s *Service) ListCharges(ctx context.Context) ([]models.Charge, error) {
	ownerID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	charges, err := s.repo.ListCharges(ctx, ownerID)
	if err != nil {
		return nil, storeErr(err)
	}
	if charges == nil {
		charges = []models.Charge{}
	}
	return charges, nil
}

// GetCharge returns one of the caller's charges with its installments
func (s *Service) GetCharge(ctx context.Context, id int64) (*models.Charge, error) {
	charge, err := s.ownedCharge(ctx, id)
	if err != nil {
		return nil, err
	}
	installments, err := s.repo.ListChargeInstallments(ctx, charge.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	charge.Installments = installments
	return charge, nil
}

func (s *Service) ownedCharge(ctx context.Context, id int64) (*models.Charge, error) {
	ownerID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	charge, err := s.repo.GetCharge(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if charge.OwnerID != ownerID {
		s.log.WithFields(logrus.Fields{"user_id": ownerID, "charge_id": id}).Warn("Access to foreign charge denied")
		return nil, ErrForbidden
	}
	return charge, nil
}

// normalizePhone keeps a leading '+' and digits; separators are dropped
func normalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", validationf("invalid client_phone %q", raw)
		}
	}
	phone := b.String()
	if digits := strings.TrimPrefix(phone, "+"); len(digits) < 8 || len(digits) > 15 {
		return "", validationf("invalid client_phone %q", raw)
	}
	return phone, nil
}
