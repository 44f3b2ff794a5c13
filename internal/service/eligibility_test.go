package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/credit-service/internal/apperrors"
	"github.com/Dan9191/credit-service/internal/models"
	"github.com/Dan9191/credit-service/internal/service"
)

type mockCounter struct {
	countByTypeFunc   func(ctx context.Context, customerID string, creditType models.CreditType, status models.CreditStatus) (int, error)
	countByStatusFunc func(ctx context.Context, customerID string, status models.CreditStatus) (int, error)
}

func (m *mockCounter) CountByCustomerIDAndTypeAndStatus(ctx context.Context, customerID string, creditType models.CreditType, status models.CreditStatus) (int, error) {
	if m.countByTypeFunc != nil {
		return m.countByTypeFunc(ctx, customerID, creditType, status)
	}
	return 0, nil
}

func (m *mockCounter) CountByCustomerIDAndStatus(ctx context.Context, customerID string, status models.CreditStatus) (int, error) {
	if m.countByStatusFunc != nil {
		return m.countByStatusFunc(ctx, customerID, status)
	}
	return 0, nil
}

func candidate(customerType models.CustomerType, creditType models.CreditType) service.Candidate {
	return service.Candidate{
		CustomerID:   "C1",
		CustomerType: customerType,
		CreditType:   creditType,
		Amount:       decimal.NewFromInt(100),
	}
}

func activeCounter(active int) *mockCounter {
	return &mockCounter{
		countByTypeFunc: func(_ context.Context, _ string, _ models.CreditType, status models.CreditStatus) (int, error) {
			if status != models.StatusActive {
				return 0, nil
			}
			return active, nil
		},
	}
}

func TestValidator_Check(t *testing.T) {
	tests := []struct {
		name      string
		counter   *mockCounter
		candidate service.Candidate
		want      error
	}{
		{
			name:      "first personal credit",
			counter:   activeCounter(0),
			candidate: candidate(models.CustomerPersonal, models.CreditPersonal),
		},
		{
			name:      "second personal credit",
			counter:   activeCounter(1),
			candidate: candidate(models.CustomerPersonal, models.CreditPersonal),
			want:      apperrors.ErrPersonalLimitReached,
		},
		{
			name:      "business customer personal credit",
			counter:   activeCounter(0),
			candidate: candidate(models.CustomerBusiness, models.CreditPersonal),
		},
		{
			name:      "personal customer business credit",
			counter:   activeCounter(0),
			candidate: candidate(models.CustomerPersonal, models.CreditBusiness),
			want:      apperrors.ErrTypeMismatch,
		},
		{
			name:      "fifth business credit",
			counter:   activeCounter(4),
			candidate: candidate(models.CustomerBusiness, models.CreditBusiness),
		},
		{
			name:      "sixth business credit",
			counter:   activeCounter(5),
			candidate: candidate(models.CustomerBusiness, models.CreditBusiness),
			want:      apperrors.ErrBusinessLimitReached,
		},
		{
			name: "overdue debt blocks every type",
			counter: &mockCounter{
				countByStatusFunc: func(context.Context, string, models.CreditStatus) (int, error) { return 1, nil },
			},
			candidate: candidate(models.CustomerBusiness, models.CreditBusiness),
			want:      apperrors.ErrHasOverdueDebt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := service.NewValidator(tt.counter, 0, time.Second)

			err := v.Check(context.Background(), tt.candidate)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidator_CheckOrder(t *testing.T) {
	t.Run("type mismatch is reported before overdue debt", func(t *testing.T) {
		counter := &mockCounter{
			countByStatusFunc: func(context.Context, string, models.CreditStatus) (int, error) { return 1, nil },
		}
		v := service.NewValidator(counter, 5, time.Second)

		err := v.Check(context.Background(), candidate(models.CustomerPersonal, models.CreditBusiness))
		assert.ErrorIs(t, err, apperrors.ErrTypeMismatch)
	})

	t.Run("overdue debt is reported before the limits", func(t *testing.T) {
		counter := activeCounter(1)
		counter.countByStatusFunc = func(context.Context, string, models.CreditStatus) (int, error) { return 2, nil }
		v := service.NewValidator(counter, 5, time.Second)

		err := v.Check(context.Background(), candidate(models.CustomerPersonal, models.CreditPersonal))
		assert.ErrorIs(t, err, apperrors.ErrHasOverdueDebt)
	})

	t.Run("input is checked before the store is consulted", func(t *testing.T) {
		counter := &mockCounter{
			countByStatusFunc: func(context.Context, string, models.CreditStatus) (int, error) {
				t.Fatal("store must not be queried")
				return 0, nil
			},
		}
		v := service.NewValidator(counter, 5, time.Second)

		c := candidate(models.CustomerPersonal, models.CreditPersonal)
		c.Amount = decimal.Zero
		assert.ErrorIs(t, v.Check(context.Background(), c), apperrors.ErrInvalidAmount)

		c = candidate("", models.CreditPersonal)
		assert.ErrorIs(t, v.Check(context.Background(), c), apperrors.ErrInvalidType)
	})
}

func TestValidator_CustomBusinessLimit(t *testing.T) {
	v := service.NewValidator(activeCounter(2), 2, time.Second)

	err := v.Check(context.Background(), candidate(models.CustomerBusiness, models.CreditBusiness))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBusinessLimitReached)
}

func TestValidator_StoreError(t *testing.T) {
	counter := &mockCounter{
		countByStatusFunc: func(context.Context, string, models.CreditStatus) (int, error) {
			return 0, errConnReset
		},
	}
	v := service.NewValidator(counter, 5, time.Second)

	err := v.Check(context.Background(), candidate(models.CustomerPersonal, models.CreditPersonal))
	require.Error(t, err)
	assert.ErrorIs(t, err, errConnReset)
	assert.Contains(t, err.Error(), "count overdue credits")

	_, ok := apperrors.AsAppError(err)
	assert.False(t, ok, "store errors are classified by the engine")
}

func TestValidator_HasOverdueDebt(t *testing.T) {
	var gotStatus models.CreditStatus
	counter := &mockCounter{
		countByStatusFunc: func(_ context.Context, customerID string, status models.CreditStatus) (int, error) {
			gotStatus = status
			if customerID == "late" {
				return 1, nil
			}
			return 0, nil
		},
	}
	v := service.NewValidator(counter, 5, time.Second)

	overdue, err := v.HasOverdueDebt(context.Background(), "late")
	require.NoError(t, err)
	assert.True(t, overdue)
	assert.Equal(t, models.StatusOverdue, gotStatus)

	overdue, err = v.HasOverdueDebt(context.Background(), "on-time")
	require.NoError(t, err)
	assert.False(t, overdue)
}

func TestCreateCredit_OverdueCustomerIsBlocked(t *testing.T) {
	clock := newTestClock(day0)
	svc := newTestService(newFaultyStore(), clock)
	sweeper := service.NewSweeper(svc, testLogger(), nil)

	mustCreate(t, svc, business("B1", 100))
	_, err := sweeper.Sweep(context.Background(), time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	for _, req := range []service.CreateCreditRequest{business("B1", 10), func() service.CreateCreditRequest {
		r := personal("B1", 10)
		r.CustomerType = models.CustomerBusiness
		return r
	}()} {
		_, err := svc.CreateCredit(context.Background(), req)
		assert.ErrorIs(t, err, apperrors.ErrHasOverdueDebt)
	}
}
