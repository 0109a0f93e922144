package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/cobranca-service/internal/models"
	"github.com/Dan9191/cobranca-service/internal/repository"
	"github.com/Dan9191/cobranca-service/internal/utils"
)

func newTestRepository(t *testing.T, sealer *utils.Sealer) *repository.Repository {
	t.Helper()
	db, err := repository.Open("sqlite3", filepath.Join(t.TempDir(), "cobranca.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repository.NewRepository(db, sealer)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func createUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	u := &models.User{Username: email, Email: email, PasswordHash: "hash"}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	return u
}

func createCharge(t *testing.T, repo *repository.Repository, owner int64, dues ...string) *models.Charge {
	t.Helper()
	c := &models.Charge{
		OwnerID:          owner,
		ClientName:       "Maria",
		Amount:           decimal.RequireFromString("300"),
		InstallmentCount: len(dues),
		ClientEmail:      "maria@example.com",
		ClientPhone:      "+5511988887777",
		AmountPolicy:     "divide",
		DueSpacing:       "30d",
	}
	var insts []models.Installment
	for i, d := range dues {
		insts = append(insts, models.Installment{Number: i + 1, Amount: decimal.RequireFromString("100"), DueDate: day(d)})
	}
	require.NoError(t, repo.CreateCharge(context.Background(), c, insts))
	return c
}

func TestRepository_Users(t *testing.T) {
	repo := newTestRepository(t, nil)
	ctx := context.Background()

	u := createUser(t, repo, "ana@example.com")
	assert.NotZero(t, u.ID)

	err := repo.CreateUser(ctx, &models.User{Username: "x", Email: "ana@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	found, err := repo.FindUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
	assert.Equal(t, "hash", found.PasswordHash)

	_, err = repo.FindUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRepository_CreateChargeWithInstallments(t *testing.T) {
	repo := newTestRepository(t, nil)
	ctx := context.Background()
	u := createUser(t, repo, "ana@example.com")

	c := createCharge(t, repo, u.ID, "2024-01-01", "2024-01-31", "2024-03-01")
	require.Len(t, c.Installments, 3)

	got, err := repo.GetCharge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria", got.ClientName)
	assert.Equal(t, "+5511988887777", got.ClientPhone)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(300)))

	insts, err := repo.ListChargeInstallments(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, insts, 3)
	for i, inst := range insts {
		assert.Equal(t, i+1, inst.Number)
		assert.False(t, inst.Paid)
		assert.Nil(t, inst.PaidOn)
		assert.Equal(t, u.ID, inst.OwnerID)
	}
	assert.Equal(t, "2024-01-31", insts[1].DueDate.Format("2006-01-02"))

	_, err = repo.GetCharge(ctx, 9999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRepository_CreateChargeIsAtomic(t *testing.T) {
	repo := newTestRepository(t, nil)
	ctx := context.Background()
	u := createUser(t, repo, "ana@example.com")

	c := &models.Charge{
		OwnerID: u.ID, ClientName: "Joao", Amount: decimal.NewFromInt(10), InstallmentCount: 2,
		AmountPolicy: "fixed", DueSpacing: "30d",
	}
	dup := []models.Installment{
		{Number: 1, Amount: decimal.NewFromInt(10), DueDate: day("2024-01-01")},
		{Number: 1, Amount: decimal.NewFromInt(10), DueDate: day("2024-01-31")},
	}
	err := repo.CreateCharge(ctx, c, dup)
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	charges, err := repo.ListCharges(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, charges)
	all, err := repo.ListInstallments(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRepository_PayUpdateDelete(t *testing.T) {
	repo := newTestRepository(t, nil)
	ctx := context.Background()
	u := createUser(t, repo, "ana@example.com")
	c := createCharge(t, repo, u.ID, "2024-01-01", "2024-01-31")
	first := c.Installments[0]

	changed, err := repo.MarkInstallmentPaid(ctx, first.ID, day("2024-01-02"))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkInstallmentPaid(ctx, first.ID, day("2024-01-05"))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetInstallment(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Paid)
	require.NotNil(t, got.PaidOn)
	assert.Equal(t, "2024-01-02", got.PaidOn.Format("2006-01-02"))

	got.Amount = decimal.NewFromInt(1)
	assert.ErrorIs(t, repo.UpdateInstallment(ctx, got), repository.ErrNotFound)

	second := c.Installments[1]
	second.Amount = decimal.RequireFromString("150.50")
	second.DueDate = day("2024-02-05")
	require.NoError(t, repo.UpdateInstallment(ctx, &second))
	got, err = repo.GetInstallment(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "150.50", got.Amount.StringFixed(2))
	assert.Equal(t, "2024-02-05", got.DueDate.Format("2006-01-02"))

	paid, unpaid := true, false
	paidList, err := repo.ListInstallments(ctx, u.ID, &paid)
	require.NoError(t, err)
	assert.Len(t, paidList, 1)
	unpaidList, err := repo.ListInstallments(ctx, u.ID, &unpaid)
	require.NoError(t, err)
	assert.Len(t, unpaidList, 1)

	require.NoError(t, repo.RecordReminder(ctx, models.ReminderLog{InstallmentID: second.ID, SentOn: day("2024-02-01"), Kind: "upcoming", OffsetDays: 4}))
	require.NoError(t, repo.DeleteInstallment(ctx, second.ID))
	_, err = repo.GetInstallment(ctx, second.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteInstallment(ctx, second.ID), repository.ErrNotFound)
}

func TestRepository_AppendInstallmentUsesNextNumber(t *testing.T) {
	repo := newTestRepository(t, nil)
	ctx := context.Background()
	u := createUser(t, repo, "ana@example.com")
	c := createCharge(t, repo, u.ID, "2024-01-01", "2024-01-31")

	inst := &models.Installment{ChargeID: c.ID, OwnerID: u.ID, Amount: decimal.NewFromInt(100), DueDate: day("2024-03-01")}
	require.NoError(t, repo.AppendInstallment(ctx, inst))
	assert.Equal(t, 3, inst.Number)
	assert.NotZero(t, inst.ID)
}

func TestRepository_UnpaidDueAndReminderLog(t *testing.T) {
	sealer, err := utils.NewSealer("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)
	repo := newTestRepository(t, sealer)
	ctx := context.Background()

	ana := createUser(t, repo, "ana@example.com")
	bia := createUser(t, repo, "bia@example.com")
	c1 := createCharge(t, repo, ana.ID, "2024-01-20", "2024-01-31")
	createCharge(t, repo, bia.ID, "2024-02-10")

	_, err = repo.MarkInstallmentPaid(ctx, c1.Installments[0].ID, day("2024-01-19"))
	require.NoError(t, err)

	due, err := repo.ListUnpaidDue(ctx)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "2024-01-31", due[0].DueDate.Format("2006-01-02"))
	assert.Equal(t, "Maria", due[0].ClientName)
	assert.Equal(t, "+5511988887777", due[0].ClientPhone, "contact data is opened on read")
	assert.Equal(t, "maria@example.com", due[0].ClientEmail)
	assert.Equal(t, bia.ID, due[1].OwnerID)

	id := due[0].ID
	seen, err := repo.HasReminder(ctx, id, day("2024-01-29"))
	require.NoError(t, err)
	assert.False(t, seen)

	entry := models.ReminderLog{InstallmentID: id, SentOn: day("2024-01-29"), Kind: "upcoming", OffsetDays: 2}
	require.NoError(t, repo.RecordReminder(ctx, entry))
	require.NoError(t, repo.RecordReminder(ctx, entry))

	seen, err = repo.HasReminder(ctx, id, day("2024-01-29"))
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = repo.HasReminder(ctx, id, day("2024-01-30"))
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRepository_UnpaidDueKeepsUnreadableContacts(t *testing.T) {
	sealer, err := utils.NewSealer("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)
	db, err := repository.Open("sqlite3", filepath.Join(t.TempDir(), "cobranca.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := repository.NewRepository(db, sealer)
	ctx := context.Background()

	ana := createUser(t, repo, "ana@example.com")
	broken := createCharge(t, repo, ana.ID, "2024-01-30")
	healthy := createCharge(t, repo, ana.ID, "2024-01-31")

	_, err = db.ExecContext(ctx, `UPDATE charges SET client_email = 'enc:zz' WHERE id = $1`, broken.ID)
	require.NoError(t, err)

	due, err := repo.ListUnpaidDue(ctx)
	require.NoError(t, err)
	require.Len(t, due, 2)

	assert.Equal(t, broken.ID, due[0].ChargeID)
	assert.Error(t, due[0].ContactErr)
	assert.Empty(t, due[0].ClientEmail)
	assert.Empty(t, due[0].ClientPhone)

	assert.Equal(t, healthy.ID, due[1].ChargeID)
	assert.NoError(t, due[1].ContactErr)
	assert.Equal(t, "maria@example.com", due[1].ClientEmail)

	// a sealed row read back without a key is unreadable too
	due, err = repository.NewRepository(db, nil).ListUnpaidDue(ctx)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Error(t, due[1].ContactErr)
}
