package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Dan9191/credit-service/internal/models"
)

const (
	uniqueViolation          = "23505"
	checkViolation           = "23514"
	activePersonalConstraint = "credits_active_personal_key"
)

const creditColumns = `
		id, credit_number, customer_id, customer_type, credit_type,
		principal_amount, outstanding_balance, interest_rate, term_months,
		start_date, due_date, next_payment_due_date, status,
		last_payment_by, last_payment_date, version, created_at, updated_at`

const insertCredit = `
		INSERT INTO bank.credits (` + creditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1, $16, $17)`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository provides database operations
type Repository struct {
	db *sql.DB

	maxActiveBusiness int
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WithBusinessLimit makes Insert reject an ACTIVE business credit once the
// customer holds n of them. n <= 0 disables the check.
func (r *Repository) WithBusinessLimit(n int) *Repository {
	r.maxActiveBusiness = n
	return r
}

// Insert creates a new credit in the database. ACTIVE business credits are
// counted and inserted under a transaction-scoped advisory lock on the
// customer, so concurrent inserts cannot overshoot the business limit.
func (r *Repository) Insert(ctx context.Context, credit *models.Credit) error {
	if r.maxActiveBusiness <= 0 || credit.CreditType != models.CreditBusiness || credit.Status != models.StatusActive {
		return r.insert(ctx, r.db, credit)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, credit.CustomerID); err != nil {
		return fmt.Errorf("failed to lock customer: %w", err)
	}
	var active int
	query := `SELECT COUNT(*) FROM bank.credits WHERE customer_id = $1 AND credit_type = $2 AND status = $3`
	if err := tx.QueryRowContext(ctx, query, credit.CustomerID, models.CreditBusiness, models.StatusActive).Scan(&active); err != nil {
		return fmt.Errorf("failed to count credits: %w", err)
	}
	if active >= r.maxActiveBusiness {
		return ErrBusinessLimit
	}
	if err := r.insert(ctx, tx, credit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		credit.Version = 0
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) insert(ctx context.Context, ex execer, credit *models.Credit) error {
	_, err := ex.ExecContext(ctx, insertCredit,
		credit.ID, credit.CreditNumber, credit.CustomerID, credit.CustomerType, credit.CreditType,
		credit.PrincipalAmount, credit.OutstandingBalance, credit.InterestRate, credit.TermMonths,
		credit.StartDate, credit.DueDate, credit.NextPaymentDueDate, credit.Status,
		nullString(credit.LastPaymentBy), credit.LastPaymentDate, credit.CreatedAt, credit.UpdatedAt,
	)
	if err != nil {
		return classifyWriteError("create", err)
	}
	credit.Version = 1
	return nil
}

// Update writes the mutable fields of a credit if the stored version still
// matches credit.Version. On success credit.Version is incremented.
func (r *Repository) Update(ctx context.Context, credit *models.Credit) error {
	query := `
		UPDATE bank.credits SET
			outstanding_balance   = $3,
			term_months           = $4,
			due_date              = $5,
			next_payment_due_date = $6,
			status                = $7,
			last_payment_by       = $8,
			last_payment_date     = $9,
			updated_at            = $10,
			version               = version + 1
		WHERE id = $1 AND version = $2`
	res, err := r.db.ExecContext(ctx, query,
		credit.ID, credit.Version,
		credit.OutstandingBalance, credit.TermMonths, credit.DueDate, credit.NextPaymentDueDate,
		credit.Status, nullString(credit.LastPaymentBy), credit.LastPaymentDate, credit.UpdatedAt,
	)
	if err != nil {
		return classifyWriteError("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update credit: %w", err)
	}
	if n == 0 {
		if _, err := r.FindByID(ctx, credit.ID); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	credit.Version++
	return nil
}

// DeleteByID removes a credit
func (r *Repository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bank.credits WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete credit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete credit: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID retrieves a credit by id
func (r *Repository) FindByID(ctx context.Context, id string) (*models.Credit, error) {
	return r.findOne(ctx, `SELECT `+creditColumns+` FROM bank.credits WHERE id = $1`, id)
}

// FindByCreditNumber retrieves a credit by its credit number
func (r *Repository) FindByCreditNumber(ctx context.Context, number string) (*models.Credit, error) {
	return r.findOne(ctx, `SELECT `+creditColumns+` FROM bank.credits WHERE credit_number = $1`, number)
}

// FindAll returns every credit
func (r *Repository) FindAll(ctx context.Context) ([]*models.Credit, error) {
	return r.findMany(ctx, `SELECT `+creditColumns+` FROM bank.credits ORDER BY created_at, id`)
}

// FindByCustomerID returns the credits of a customer
func (r *Repository) FindByCustomerID(ctx context.Context, customerID string) ([]*models.Credit, error) {
	return r.findMany(ctx, `
		SELECT `+creditColumns+`
		FROM bank.credits
		WHERE customer_id = $1
		ORDER BY created_at, id`, customerID)
}

// FindByCustomerIDAndTypeAndStatus returns a customer's credits of one type in one status
func (r *Repository) FindByCustomerIDAndTypeAndStatus(ctx context.Context, customerID string, creditType models.CreditType, status models.CreditStatus) ([]*models.Credit, error) {
	return r.findMany(ctx, `
		SELECT `+creditColumns+`
		FROM bank.credits
		WHERE customer_id = $1 AND credit_type = $2 AND status = $3
		ORDER BY created_at, id`, customerID, creditType, status)
}

// CountByCustomerIDAndTypeAndStatus counts a customer's credits of one type in one status
func (r *Repository) CountByCustomerIDAndTypeAndStatus(ctx context.Context, customerID string, creditType models.CreditType, status models.CreditStatus) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM bank.credits WHERE customer_id = $1 AND credit_type = $2 AND status = $3`
	if err := r.db.QueryRowContext(ctx, query, customerID, creditType, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count credits: %w", err)
	}
	return n, nil
}

// CountByCustomerIDAndStatus counts a customer's credits in one status
func (r *Repository) CountByCustomerIDAndStatus(ctx context.Context, customerID string, status models.CreditStatus) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM bank.credits WHERE customer_id = $1 AND status = $2`
	if err := r.db.QueryRowContext(ctx, query, customerID, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count credits: %w", err)
	}
	return n, nil
}

// FindByStatusAndDueDateBefore returns credits in status whose due date is strictly before date
func (r *Repository) FindByStatusAndDueDateBefore(ctx context.Context, status models.CreditStatus, date time.Time) ([]*models.Credit, error) {
	return r.findMany(ctx, `
		SELECT `+creditColumns+`
		FROM bank.credits
		WHERE status = $1 AND due_date < $2
		ORDER BY due_date, id`, status, date)
}

func (r *Repository) findOne(ctx context.Context, query string, args ...any) (*models.Credit, error) {
	credit, err := scanCredit(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credit: %w", err)
	}
	return credit, nil
}

func (r *Repository) findMany(ctx context.Context, query string, args ...any) ([]*models.Credit, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query credits: %w", err)
	}
	defer rows.Close()

	var credits []*models.Credit
	for rows.Next() {
		credit, err := scanCredit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit: %w", err)
		}
		credits = append(credits, credit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credits: %w", err)
	}
	return credits, nil
}

// classifyWriteError maps constraint failures reported by PostgreSQL to the
// package errors.
func classifyWriteError(action string, err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return fmt.Errorf("failed to %s credit: %w", action, err)
	}
	switch {
	case pqErr.Code == uniqueViolation && pqErr.Constraint == activePersonalConstraint:
		return ErrActivePersonalCredit
	case pqErr.Code == uniqueViolation:
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	case pqErr.Code == checkViolation:
		return fmt.Errorf("%w: %s", ErrConstraint, pqErr.Constraint)
	}
	return fmt.Errorf("failed to %s credit: %w", action, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredit(s scanner) (*models.Credit, error) {
	var (
		c               models.Credit
		lastPaymentBy   sql.NullString
		lastPaymentDate sql.NullTime
	)
	err := s.Scan(
		&c.ID, &c.CreditNumber, &c.CustomerID, &c.CustomerType, &c.CreditType,
		&c.PrincipalAmount, &c.OutstandingBalance, &c.InterestRate, &c.TermMonths,
		&c.StartDate, &c.DueDate, &c.NextPaymentDueDate, &c.Status,
		&lastPaymentBy, &lastPaymentDate, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.LastPaymentBy = lastPaymentBy.String
	if lastPaymentDate.Valid {
		t := lastPaymentDate.Time.UTC()
		c.LastPaymentDate = &t
	}
	c.StartDate = c.StartDate.UTC()
	c.DueDate = c.DueDate.UTC()
	c.NextPaymentDueDate = c.NextPaymentDueDate.UTC()
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
