package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/credit-service/internal/models"
)

// Store is the record store the engine runs on. Update must be conditional on
// the credit's Version and bump it on success; implementations report the
// outcome with the repository package errors.
type Store interface {
	Insert(ctx context.Context, credit *models.Credit) error
	Update(ctx context.Context, credit *models.Credit) error
	DeleteByID(ctx context.Context, id string) error

	FindByID(ctx context.Context, id string) (*models.Credit, error)
	FindByCreditNumber(ctx context.Context, number string) (*models.Credit, error)
	FindAll(ctx context.Context) ([]*models.Credit, error)
	FindByCustomerID(ctx context.Context, customerID string) ([]*models.Credit, error)
	FindByCustomerIDAndTypeAndStatus(ctx context.Context, customerID string, creditType models.CreditType, status models.CreditStatus) ([]*models.Credit, error)
	FindByStatusAndDueDateBefore(ctx context.Context, status models.CreditStatus, date time.Time) ([]*models.Credit, error)

	CreditCounter
}

// CreditCounter is the read side the eligibility checks need.
type CreditCounter interface {
	CountByCustomerIDAndTypeAndStatus(ctx context.Context, customerID string, creditType models.CreditType, status models.CreditStatus) (int, error)
	CountByCustomerIDAndStatus(ctx context.Context, customerID string, status models.CreditStatus) (int, error)
}

// RateSource supplies the interest rate for credits created without one.
type RateSource interface {
	InterestRate(ctx context.Context) (decimal.Decimal, error)
}
