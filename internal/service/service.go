package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/credit-service/internal/apperrors"
	"github.com/Dan9191/credit-service/internal/metrics"
	"github.com/Dan9191/credit-service/internal/models"
	"github.com/Dan9191/credit-service/internal/repository"
	"github.com/Dan9191/credit-service/internal/utils"
)

const (
	// maxNumberAttempts bounds credit number regeneration on collisions.
	maxNumberAttempts = 3
	// maxUpdateAttempts bounds re-read and retry on version conflicts.
	maxUpdateAttempts = 5
	// defaultTermMonths is the single-period policy used when no term is given.
	defaultTermMonths = 1
)

// Options configures the engine
type Options struct {
	MaxBusinessCredits  int
	DefaultInterestRate decimal.Decimal
	StoreTimeout        time.Duration
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
	// NumberGenerator overrides utils.GenerateCreditNumber, mainly for tests.
	NumberGenerator func() string
}

// Service handles business logic
type Service struct {
	store     Store
	validator *Validator
	rates     RateSource
	log       *logrus.Logger
	metrics   *metrics.Metrics
	opts      Options
}

// NewService initializes a new service. rates and m may be nil.
func NewService(store Store, rates RateSource, log *logrus.Logger, m *metrics.Metrics, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NumberGenerator == nil {
		opts.NumberGenerator = utils.GenerateCreditNumber
	}
	return &Service{
		store:     store,
		validator: NewValidator(store, opts.MaxBusinessCredits, opts.StoreTimeout),
		rates:     rates,
		log:       log,
		metrics:   m,
		opts:      opts,
	}
}

// CreateCreditRequest carries the inputs of CreateCredit. TermMonths zero
// selects a one-month term; a nil InterestRate selects the default source.
type CreateCreditRequest struct {
	CustomerID   string
	CustomerType models.CustomerType
	CreditType   models.CreditType
	Amount       decimal.Decimal
	TermMonths   int
	InterestRate *decimal.Decimal
}

// PaymentRequest carries the inputs of ApplyPayment. PayerID is optional.
type PaymentRequest struct {
	CreditID string
	Amount   decimal.Decimal
	PayerID  string
}

// CreateCredit opens a new credit after the eligibility checks pass
func (s *Service) CreateCredit(ctx context.Context, req CreateCreditRequest) (*models.Credit, error) {
	if req.CustomerID == "" {
		return nil, apperrors.ErrBadRequest.WithDetails(map[string]interface{}{"customer_id": "required"})
	}
	if req.TermMonths < 0 {
		return nil, apperrors.ErrInvalidTerm
	}
	if r := req.InterestRate; r != nil && (r.IsNegative() || !r.Equal(r.Truncate(models.AmountScale))) {
		return nil, apperrors.ErrBadRequest.WithDetails(map[string]interface{}{"interest_rate": "must not be negative or have more than 4 decimal places"})
	}

	err := s.validator.Check(ctx, Candidate{
		CustomerID:   req.CustomerID,
		CustomerType: req.CustomerType,
		CreditType:   req.CreditType,
		Amount:       req.Amount,
	})
	if err != nil {
		return nil, s.reject("create", err, logrus.Fields{"customer_id": req.CustomerID, "credit_type": req.CreditType})
	}

	term := req.TermMonths
	if term == 0 {
		term = defaultTermMonths
	}
	now := s.opts.Clock().UTC()
	today := models.StartOfDay(now)

	credit := &models.Credit{
		CustomerID:         req.CustomerID,
		CustomerType:       req.CustomerType,
		CreditType:         req.CreditType,
		PrincipalAmount:    req.Amount,
		OutstandingBalance: req.Amount,
		InterestRate:       s.interestRate(ctx, req.InterestRate),
		TermMonths:         term,
		StartDate:          today,
		DueDate:            today.AddDate(0, term, 0),
		NextPaymentDueDate: today.AddDate(0, 1, 0),
		Status:             models.StatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		credit.ID = uuid.NewString()
		credit.CreditNumber = s.opts.NumberGenerator()

		err := s.insert(ctx, credit)
		switch {
		case err == nil:
			s.metrics.CreditCreated()
			s.log.WithFields(logrus.Fields{
				"credit_id":     credit.ID,
				"credit_number": credit.CreditNumber,
				"customer_id":   credit.CustomerID,
				"credit_type":   credit.CreditType,
			}).Info("Credit created")
			return credit, nil
		case errors.Is(err, repository.ErrActivePersonalCredit):
			return nil, s.reject("create", apperrors.ErrPersonalLimitReached, logrus.Fields{"customer_id": req.CustomerID})
		case errors.Is(err, repository.ErrBusinessLimit):
			return nil, s.reject("create", s.validator.businessLimitErr(), logrus.Fields{"customer_id": req.CustomerID})
		case errors.Is(err, repository.ErrDuplicate):
			s.metrics.Conflict("create")
			s.log.Warnf("Credit number collision on attempt %d: %s", attempt, credit.CreditNumber)
		default:
			return nil, s.storeErr("insert credit", err)
		}
	}
	return nil, apperrors.ErrConflict.WithError(fmt.Errorf("credit number still colliding after %d attempts", maxNumberAttempts))
}

// ApplyPayment reduces the outstanding balance of a credit. A payment on an
// OVERDUE credit returns it to ACTIVE; a payment clearing the balance makes it PAID.
func (s *Service) ApplyPayment(ctx context.Context, req PaymentRequest) (*models.Credit, error) {
	credit, _, err := s.mutate(ctx, "payment", req.CreditID, func(c *models.Credit, now time.Time) (bool, error) {
		if !models.ValidAmount(req.Amount) {
			return false, apperrors.ErrInvalidAmount
		}
		if req.Amount.GreaterThan(c.OutstandingBalance) {
			return false, apperrors.ErrExceedsBalance.WithDetails(map[string]interface{}{
				"outstanding_balance": c.OutstandingBalance.String(),
			})
		}
		applyPayment(c, req.Amount, req.PayerID, now)
		return true, nil
	})
	if err != nil {
		return nil, s.reject("payment", err, logrus.Fields{"credit_id": req.CreditID})
	}

	s.metrics.PaymentApplied(string(credit.Status))
	s.log.WithFields(logrus.Fields{
		"credit_id":           credit.ID,
		"amount":              req.Amount.String(),
		"outstanding_balance": credit.OutstandingBalance.String(),
		"status":              credit.Status,
		"payer_id":            req.PayerID,
	}).Info("Payment applied")
	return credit, nil
}

func applyPayment(c *models.Credit, amount decimal.Decimal, payerID string, now time.Time) {
	c.OutstandingBalance = c.OutstandingBalance.Sub(amount)

	if c.Status == models.StatusOverdue {
		next := models.StartOfDay(now).AddDate(0, 1, 0)
		c.NextPaymentDueDate = next
		c.DueDate = next
	}
	if payerID != "" && payerID != c.CustomerID {
		paidAt := now
		c.LastPaymentBy = payerID
		c.LastPaymentDate = &paidAt
	}

	if c.OutstandingBalance.IsZero() {
		c.Status = models.StatusPaid
	} else {
		c.Status = models.StatusActive
	}
}

// ExtendTerm lengthens the term of an unpaid credit and moves its due date
func (s *Service) ExtendTerm(ctx context.Context, id string, termMonths int) (*models.Credit, error) {
	credit, _, err := s.mutate(ctx, "extend_term", id, func(c *models.Credit, _ time.Time) (bool, error) {
		if c.IsPaid() {
			return false, apperrors.ErrCreditClosed
		}
		if termMonths <= c.TermMonths {
			return false, apperrors.ErrInvalidTerm.WithDetails(map[string]interface{}{
				"current_term_months": c.TermMonths,
			})
		}
		c.TermMonths = termMonths
		c.DueDate = c.StartDate.AddDate(0, termMonths, 0)
		return true, nil
	})
	if err != nil {
		return nil, s.reject("extend_term", err, logrus.Fields{"credit_id": id})
	}
	s.log.Infof("Credit %s term extended to %d months, due %s", id, termMonths, credit.DueDate.Format("2006-01-02"))
	return credit, nil
}

// MarkOverdue moves an ACTIVE credit whose due date passed before asOf to
// OVERDUE. It reports whether the credit transitioned.
func (s *Service) MarkOverdue(ctx context.Context, id string, asOf time.Time) (bool, error) {
	_, changed, err := s.mutate(ctx, "mark_overdue", id, func(c *models.Credit, _ time.Time) (bool, error) {
		if !c.IsPastDue(asOf) {
			return false, nil
		}
		c.Status = models.StatusOverdue
		return true, nil
	})
	return changed, err
}

// HasOverdueDebt reports whether the customer owns at least one OVERDUE credit
func (s *Service) HasOverdueDebt(ctx context.Context, customerID string) (bool, error) {
	overdue, err := s.validator.HasOverdueDebt(ctx, customerID)
	if err != nil {
		return false, s.storeErr("has overdue debt", err)
	}
	return overdue, nil
}

// GetByID retrieves a credit by id
func (s *Service) GetByID(ctx context.Context, id string) (*models.Credit, error) {
	return s.find(ctx, id)
}

// GetByCreditNumber retrieves a credit by its credit number
func (s *Service) GetByCreditNumber(ctx context.Context, number string) (*models.Credit, error) {
	ctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	credit, err := s.store.FindByCreditNumber(ctx, number)
	if err != nil {
		return nil, s.storeErr("find credit by number", err)
	}
	return credit, nil
}

// GetBalance summarizes how much of a credit has been repaid
func (s *Service) GetBalance(ctx context.Context, id string) (models.Balance, error) {
	credit, err := s.find(ctx, id)
	if err != nil {
		return models.Balance{}, err
	}
	return models.BalanceOf(credit), nil
}

// ListByCustomer returns the credits of a customer
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*models.Credit, error) {
	ctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	credits, err := s.store.FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, s.storeErr("list customer credits", err)
	}
	return credits, nil
}

// ListAll returns every credit
func (s *Service) ListAll(ctx context.Context) ([]*models.Credit, error) {
	ctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	credits, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, s.storeErr("list credits", err)
	}
	return credits, nil
}

// Delete removes a credit. Administrative only.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	if err := s.store.DeleteByID(ctx, id); err != nil {
		return s.storeErr("delete credit", err)
	}
	s.log.Warnf("Credit %s deleted", id)
	return nil
}

// pastDue lists ACTIVE credits whose due date is before the day of asOf.
func (s *Service) pastDue(ctx context.Context, asOf time.Time) ([]*models.Credit, error) {
	ctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	credits, err := s.store.FindByStatusAndDueDateBefore(ctx, models.StatusActive, models.StartOfDay(asOf))
	if err != nil {
		return nil, s.storeErr("find past due credits", err)
	}
	return credits, nil
}

// mutate runs a read-modify-write on one credit. change reports whether it
// modified the credit; the write is conditional on the version read, and on a
// conflict the credit is re-read and change is applied again.
func (s *Service) mutate(ctx context.Context, op, id string, change func(c *models.Credit, now time.Time) (bool, error)) (*models.Credit, bool, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		credit, err := s.find(ctx, id)
		if err != nil {
			return nil, false, err
		}

		now := s.opts.Clock().UTC()
		changed, err := change(credit, now)
		if err != nil || !changed {
			return credit, false, err
		}
		credit.UpdatedAt = now

		err = s.update(ctx, credit)
		if err == nil {
			return credit, true, nil
		}
		if errors.Is(err, repository.ErrActivePersonalCredit) {
			return nil, false, apperrors.ErrPersonalLimitReached
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, false, s.storeErr("update credit", err)
		}
		s.metrics.Conflict(op)
		s.log.WithFields(logrus.Fields{"credit_id": id, "attempt": attempt}).Debugf("Version conflict on %s, retrying", op)
	}
	return nil, false, apperrors.ErrConflict.WithError(fmt.Errorf("%s on credit %s: gave up after %d attempts", op, id, maxUpdateAttempts))
}

func (s *Service) find(ctx context.Context, id string) (*models.Credit, error) {
	ctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	credit, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeErr("find credit", err)
	}
	return credit, nil
}

func (s *Service) insert(ctx context.Context, credit *models.Credit) error {
	ctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.store.Insert(ctx, credit)
}

func (s *Service) update(ctx context.Context, credit *models.Credit) error {
	ctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.store.Update(ctx, credit)
}

func (s *Service) interestRate(ctx context.Context, requested *decimal.Decimal) decimal.Decimal {
	if requested != nil {
		return *requested
	}
	if s.rates != nil {
		rate, err := s.rates.InterestRate(ctx)
		if err == nil {
			return rate
		}
		s.log.Warnf("Falling back to default interest rate %s: %v", s.opts.DefaultInterestRate, err)
	}
	return s.opts.DefaultInterestRate
}

// reject records business rejections and converts store errors. It is a
// no-op for errors that are already classified infrastructure failures.
func (s *Service) reject(op string, err error, fields logrus.Fields) error {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return s.storeErr(op, err)
	}
	if appErr.StatusCode < 500 {
		s.metrics.Rejected(op, appErr.Code)
		s.log.WithFields(fields).WithField("reason", appErr.Code).Info("Request rejected")
	}
	return err
}

// storeErr classifies an error returned by the store.
func (s *Service) storeErr(op string, err error) error {
	if _, ok := apperrors.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.ErrNotFound.WithError(fmt.Errorf("%s: %w", op, err))
	}
	if apperrors.IsAny(err, repository.ErrConstraint, repository.ErrDuplicate) {
		s.log.WithError(err).Errorf("Constraint violated in %s", op)
		return apperrors.ErrInternal.WithError(fmt.Errorf("%s: %w", op, err))
	}
	s.log.WithError(err).Errorf("Store failure in %s", op)
	return apperrors.ErrStoreUnavailable.WithError(fmt.Errorf("%s: %w", op, err))
}
