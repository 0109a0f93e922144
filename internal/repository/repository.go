package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/Dan9191/cobranca-service/internal/models"
	"github.com/Dan9191/cobranca-service/internal/utils"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint is violated
	ErrDuplicate = errors.New("duplicate")
)

const dateLayout = "2006-01-02"

// Repository provides database operations.
// Queries number their placeholders in order of first use so that they run
// unchanged on both postgres and sqlite.
type Repository struct {
	db     *sql.DB
	sealer *utils.Sealer
}

// NewRepository initializes a new repository. A nil sealer stores contact data in clear.
func NewRepository(db *sql.DB, sealer *utils.Sealer) *Repository {
	return &Repository{db: db, sealer: sealer}
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	user.CreatedAt = time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash, user.CreatedAt).
		Scan(&user.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to create user: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by email
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE email = $1`
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// CreateCharge inserts a charge and its installments in a single transaction
func (r *Repository) CreateCharge(ctx context.Context, charge *models.Charge, installments []models.Installment) error {
	email, err := r.sealer.Seal(charge.ClientEmail)
	if err != nil {
		return err
	}
	phone, err := r.sealer.Seal(charge.ClientPhone)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO charges (owner_id, client_name, description, amount, installment_count,
			client_email, client_phone, amount_policy, due_spacing, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	charge.CreatedAt = time.Now().UTC()
	err = tx.QueryRowContext(ctx, query,
		charge.OwnerID, charge.ClientName, charge.Description, charge.Amount, charge.InstallmentCount,
		email, phone, charge.AmountPolicy, charge.DueSpacing, charge.CreatedAt,
	).Scan(&charge.ID)
	if err != nil {
		return fmt.Errorf("failed to create charge: %w", err)
	}

	created := make([]models.Installment, 0, len(installments))
	for _, inst := range installments {
		inst.ChargeID = charge.ID
		inst.OwnerID = charge.OwnerID
		if err := insertInstallment(ctx, tx, &inst); err != nil {
			return err
		}
		created = append(created, inst)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit charge: %w", err)
	}
	charge.Installments = created
	return nil
}

// GetCharge retrieves a charge without its installments
func (r *Repository) GetCharge(ctx context.Context, id int64) (*models.Charge, error) {
	query := `
		SELECT id, owner_id, client_name, description, amount, installment_count,
			client_email, client_phone, amount_policy, due_spacing, created_at
		FROM charges
		WHERE id = $1`
	charge, err := r.scanCharge(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("charge %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get charge: %w", err)
	}
	return charge, nil
}

// ListCharges returns the charges of an owner, newest first
func (r *Repository) ListCharges(ctx context.Context, ownerID int64) ([]models.Charge, error) {
	query := `
		SELECT id, owner_id, client_name, description, amount, installment_count,
			client_email, client_phone, amount_policy, due_spacing, created_at
		FROM charges
		WHERE owner_id = $1
		ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list charges: %w", err)
	}
	defer rows.Close()

	var charges []models.Charge
	for rows.Next() {
		charge, err := r.scanCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan charge: %w", err)
		}
		charges = append(charges, *charge)
	}
	return charges, rows.Err()
}

// ListChargeInstallments returns the installments of a charge ordered by number
func (r *Repository) ListChargeInstallments(ctx context.Context, chargeID int64) ([]models.Installment, error) {
	query := installmentColumns + `
		WHERE charge_id = $1
		ORDER BY number`
	return r.queryInstallments(ctx, query, chargeID)
}

// ListInstallments returns an owner's installments. A nil paid filter returns all of them.
func (r *Repository) ListInstallments(ctx context.Context, ownerID int64, paid *bool) ([]models.Installment, error) {
	if paid == nil {
		query := installmentColumns + `
			WHERE owner_id = $1
			ORDER BY due_date, charge_id, number`
		return r.queryInstallments(ctx, query, ownerID)
	}
	query := installmentColumns + `
		WHERE owner_id = $1 AND paid = $2
		ORDER BY due_date, charge_id, number`
	return r.queryInstallments(ctx, query, ownerID, *paid)
}

// GetInstallment retrieves an installment by id
func (r *Repository) GetInstallment(ctx context.Context, id int64) (*models.Installment, error) {
	query := installmentColumns + `
		WHERE id = $1`
	inst, err := scanInstallment(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("installment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installment: %w", err)
	}
	return inst, nil
}

// AppendInstallment adds an installment to an existing charge using the next free number
func (r *Repository) AppendInstallment(ctx context.Context, inst *models.Installment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) + 1 FROM installments WHERE charge_id = $1`,
		inst.ChargeID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to compute installment number: %w", err)
	}

	inst.Number = next
	if err := insertInstallment(ctx, tx, inst); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit installment: %w", err)
	}
	return nil
}

// MarkInstallmentPaid flips a pending installment to paid. It reports whether
// a row changed; an already paid installment is left untouched.
func (r *Repository) MarkInstallmentPaid(ctx context.Context, id int64, paidOn time.Time) (bool, error) {
	query := `
		UPDATE installments
		SET paid = TRUE, paid_on = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND paid = FALSE`
	res, err := r.db.ExecContext(ctx, query, paidOn.Format(dateLayout), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark installment paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark installment paid: %w", err)
	}
	return n > 0, nil
}

// UpdateInstallment rewrites amount and due date of a pending installment
func (r *Repository) UpdateInstallment(ctx context.Context, inst *models.Installment) error {
	query := `
		UPDATE installments
		SET amount = $1, due_date = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3 AND paid = FALSE`
	res, err := r.db.ExecContext(ctx, query, inst.Amount, inst.DueDate.Format(dateLayout), inst.ID)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pending installment %d: %w", inst.ID, ErrNotFound)
	}
	return nil
}

// DeleteInstallment removes an installment and its reminder history
func (r *Repository) DeleteInstallment(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminder_log WHERE installment_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete reminder log: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM installments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete installment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("installment %d: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// ListUnpaidDue returns every unpaid installment of every owner joined with the
// client contact data of its charge
func (r *Repository) ListUnpaidDue(ctx context.Context) ([]models.DueInstallment, error) {
	query := `
		SELECT i.id, i.charge_id, i.owner_id, i.number, i.amount, i.due_date, i.paid, i.paid_on,
			i.created_at, i.updated_at, c.client_name, c.client_email, c.client_phone
		FROM installments i
		JOIN charges c ON c.id = i.charge_id
		WHERE i.paid = FALSE
		ORDER BY i.due_date, i.id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpaid installments: %w", err)
	}
	defer rows.Close()

	var out []models.DueInstallment
	for rows.Next() {
		var (
			d      models.DueInstallment
			paidOn sql.NullTime
		)
		err := rows.Scan(&d.ID, &d.ChargeID, &d.OwnerID, &d.Number, &d.Amount, &d.DueDate, &d.Paid, &paidOn,
			&d.CreatedAt, &d.UpdatedAt, &d.ClientName, &d.ClientEmail, &d.ClientPhone)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unpaid installment: %w", err)
		}
		normalizeInstallment(&d.Installment, paidOn)
		r.openContacts(&d)
		out = append(out, d)
	}
	return out, rows.Err()
}

// openContacts unseals the contact fields of one row. A row that cannot be
// unsealed keeps its error instead of failing the whole listing.
func (r *Repository) openContacts(d *models.DueInstallment) {
	email, err := r.sealer.Open(d.ClientEmail)
	if err == nil {
		var phone string
		if phone, err = r.sealer.Open(d.ClientPhone); err == nil {
			d.ClientEmail, d.ClientPhone = email, phone
			return
		}
	}
	d.ClientEmail, d.ClientPhone = "", ""
	d.ContactErr = fmt.Errorf("charge %d: %w", d.ChargeID, err)
}

// HasReminder reports whether a reminder was already recorded for the installment on day
func (r *Repository) HasReminder(ctx context.Context, installmentID int64, day time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminder_log WHERE installment_id = $1 AND sent_on = $2`,
		installmentID, day.Format(dateLayout),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check reminder log: %w", err)
	}
	return n > 0, nil
}

// RecordReminder stores a sent reminder; recording the same installment and day twice is a no-op
func (r *Repository) RecordReminder(ctx context.Context, entry models.ReminderLog) error {
	query := `
		INSERT INTO reminder_log (installment_id, sent_on, kind, offset_days)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (installment_id, sent_on) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, entry.InstallmentID, entry.SentOn.Format(dateLayout), entry.Kind, entry.OffsetDays)
	if err != nil {
		return fmt.Errorf("failed to record reminder: %w", err)
	}
	return nil
}

const installmentColumns = `
		SELECT id, charge_id, owner_id, number, amount, due_date, paid, paid_on, created_at, updated_at
		FROM installments`

type rowScanner interface {
	Scan(dest ...any) error
}

func insertInstallment(ctx context.Context, tx *sql.Tx, inst *models.Installment) error {
	query := `
		INSERT INTO installments (charge_id, owner_id, number, amount, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id`
	inst.CreatedAt = time.Now().UTC()
	inst.UpdatedAt = inst.CreatedAt
	err := tx.QueryRowContext(ctx, query,
		inst.ChargeID, inst.OwnerID, inst.Number, inst.Amount, inst.DueDate.Format(dateLayout), inst.CreatedAt,
	).Scan(&inst.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("installment %d of charge %d: %w", inst.Number, inst.ChargeID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create installment %d: %w", inst.Number, err)
	}
	inst.Paid = false
	inst.PaidOn = nil
	return nil
}

func (r *Repository) queryInstallments(ctx context.Context, query string, args ...any) ([]models.Installment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	var out []models.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

func scanInstallment(row rowScanner) (*models.Installment, error) {
	var (
		inst   models.Installment
		paidOn sql.NullTime
	)
	err := row.Scan(&inst.ID, &inst.ChargeID, &inst.OwnerID, &inst.Number, &inst.Amount, &inst.DueDate,
		&inst.Paid, &paidOn, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	normalizeInstallment(&inst, paidOn)
	return &inst, nil
}

func (r *Repository) scanCharge(row rowScanner) (*models.Charge, error) {
	var c models.Charge
	err := row.Scan(&c.ID, &c.OwnerID, &c.ClientName, &c.Description, &c.Amount, &c.InstallmentCount,
		&c.ClientEmail, &c.ClientPhone, &c.AmountPolicy, &c.DueSpacing, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if c.ClientEmail, err = r.sealer.Open(c.ClientEmail); err != nil {
		return nil, err
	}
	if c.ClientPhone, err = r.sealer.Open(c.ClientPhone); err != nil {
		return nil, err
	}
	return &c, nil
}

// normalizeInstallment drops the driver-specific time zone of DATE columns
func normalizeInstallment(inst *models.Installment, paidOn sql.NullTime) {
	inst.DueDate = dateOnly(inst.DueDate)
	if paidOn.Valid {
		d := dateOnly(paidOn.Time)
		inst.PaidOn = &d
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
