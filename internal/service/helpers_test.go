package service_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/credit-service/internal/models"
	"github.com/Dan9191/credit-service/internal/repository"
	"github.com/Dan9191/credit-service/internal/service"
)

var errConnReset = errors.New("connection reset by peer")

// day0 is the creation time used by most tests. Credits opened then with a
// one-month term fall due on 2025-04-10.
var day0 = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService(store service.Store, clock *testClock) *service.Service {
	return service.NewService(store, nil, testLogger(), nil, service.Options{
		MaxBusinessCredits:  5,
		DefaultInterestRate: decimal.NewFromInt(15),
		StoreTimeout:        time.Second,
		Clock:               clock.Now,
	})
}

func personal(customerID string, amount int64) service.CreateCreditRequest {
	return service.CreateCreditRequest{
		CustomerID:   customerID,
		CustomerType: models.CustomerPersonal,
		CreditType:   models.CreditPersonal,
		Amount:       decimal.NewFromInt(amount),
	}
}

func business(customerID string, amount int64) service.CreateCreditRequest {
	return service.CreateCreditRequest{
		CustomerID:   customerID,
		CustomerType: models.CustomerBusiness,
		CreditType:   models.CreditBusiness,
		Amount:       decimal.NewFromInt(amount),
	}
}

func mustCreate(t *testing.T, svc *service.Service, req service.CreateCreditRequest) *models.Credit {
	t.Helper()
	credit, err := svc.CreateCredit(context.Background(), req)
	require.NoError(t, err)
	return credit
}

func pay(svc *service.Service, creditID string, amount int64, payerID string) (*models.Credit, error) {
	return svc.ApplyPayment(context.Background(), service.PaymentRequest{
		CreditID: creditID,
		Amount:   decimal.NewFromInt(amount),
		PayerID:  payerID,
	})
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

// faultyStore wraps a MemoryStore and fails selected calls.
type faultyStore struct {
	*repository.MemoryStore

	mu          sync.Mutex
	failUpdate  map[string]bool
	updateErr   error
	failFind    bool
	failListDue bool
	blockFind   bool
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: repository.NewMemoryStore(), failUpdate: map[string]bool{}}
}

func (s *faultyStore) Update(ctx context.Context, credit *models.Credit) error {
	s.mu.Lock()
	fail, updateErr := s.failUpdate[credit.ID], s.updateErr
	s.mu.Unlock()
	if fail && updateErr != nil {
		return updateErr
	}
	if fail {
		return errConnReset
	}
	return s.MemoryStore.Update(ctx, credit)
}

func (s *faultyStore) FindByID(ctx context.Context, id string) (*models.Credit, error) {
	s.mu.Lock()
	fail, block := s.failFind, s.blockFind
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, errConnReset
	}
	return s.MemoryStore.FindByID(ctx, id)
}

func (s *faultyStore) FindByStatusAndDueDateBefore(ctx context.Context, status models.CreditStatus, date time.Time) ([]*models.Credit, error) {
	s.mu.Lock()
	fail := s.failListDue
	s.mu.Unlock()
	if fail {
		return nil, errConnReset
	}
	return s.MemoryStore.FindByStatusAndDueDateBefore(ctx, status, date)
}

// racingStore holds the first n reads of a credit until all n arrived, so
// that n concurrent writers start from the same version.
type racingStore struct {
	*repository.MemoryStore

	mu      sync.Mutex
	pending int
	release chan struct{}
}

func newRacingStore(n int) *racingStore {
	return &racingStore{MemoryStore: repository.NewMemoryStore(), pending: n, release: make(chan struct{})}
}

func (s *racingStore) FindByID(ctx context.Context, id string) (*models.Credit, error) {
	credit, err := s.MemoryStore.FindByID(ctx, id)

	s.mu.Lock()
	if s.pending == 0 {
		s.mu.Unlock()
		return credit, err
	}
	s.pending--
	if s.pending == 0 {
		close(s.release)
	}
	s.mu.Unlock()

	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return credit, err
}
