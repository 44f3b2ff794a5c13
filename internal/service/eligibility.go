package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/credit-service/internal/apperrors"
	"github.com/Dan9191/credit-service/internal/models"
)

// DefaultMaxBusinessCredits caps ACTIVE business credits per customer
const DefaultMaxBusinessCredits = 5

// Candidate describes a credit a customer asks to open
type Candidate struct {
	CustomerID   string
	CustomerType models.CustomerType
	CreditType   models.CreditType
	Amount       decimal.Decimal
}

// Validator decides whether a customer may open a new credit. It keeps no
// state of its own; every check counts through the store.
type Validator struct {
	counter     CreditCounter
	maxBusiness int
	timeout     time.Duration
}

// NewValidator initializes a validator. maxBusiness <= 0 selects the default.
func NewValidator(counter CreditCounter, maxBusiness int, timeout time.Duration) *Validator {
	if maxBusiness <= 0 {
		maxBusiness = DefaultMaxBusinessCredits
	}
	return &Validator{counter: counter, maxBusiness: maxBusiness, timeout: timeout}
}

// Check returns nil when the candidate is eligible, an apperrors rejection
// when a rule fails, or a wrapped store error.
func (v *Validator) Check(ctx context.Context, c Candidate) error {
	if !c.CustomerType.Valid() || !c.CreditType.Valid() {
		return apperrors.ErrInvalidType
	}
	if !models.ValidAmount(c.Amount) {
		return apperrors.ErrInvalidAmount
	}

	if c.CreditType == models.CreditBusiness && c.CustomerType == models.CustomerPersonal {
		return apperrors.ErrTypeMismatch
	}

	overdue, err := v.HasOverdueDebt(ctx, c.CustomerID)
	if err != nil {
		return err
	}
	if overdue {
		return apperrors.ErrHasOverdueDebt
	}

	active, err := v.countActive(ctx, c.CustomerID, c.CreditType)
	if err != nil {
		return err
	}
	switch c.CreditType {
	case models.CreditPersonal:
		if active >= 1 {
			return apperrors.ErrPersonalLimitReached
		}
	case models.CreditBusiness:
		if active >= v.maxBusiness {
			return v.businessLimitErr()
		}
	}
	return nil
}

// HasOverdueDebt reports whether the customer owns at least one OVERDUE credit
func (v *Validator) HasOverdueDebt(ctx context.Context, customerID string) (bool, error) {
	ctx, cancel := withTimeout(ctx, v.timeout)
	defer cancel()

	n, err := v.counter.CountByCustomerIDAndStatus(ctx, customerID, models.StatusOverdue)
	if err != nil {
		return false, fmt.Errorf("count overdue credits: %w", err)
	}
	return n > 0, nil
}

func (v *Validator) countActive(ctx context.Context, customerID string, creditType models.CreditType) (int, error) {
	ctx, cancel := withTimeout(ctx, v.timeout)
	defer cancel()

	n, err := v.counter.CountByCustomerIDAndTypeAndStatus(ctx, customerID, creditType, models.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("count active credits: %w", err)
	}
	return n, nil
}

func (v *Validator) businessLimitErr() error {
	return apperrors.ErrBusinessLimitReached.WithDetails(map[string]interface{}{
		"max_active": v.maxBusiness,
	})
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
