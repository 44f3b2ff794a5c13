package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dan9191/credit-service/internal/models"
)

// MemoryStore keeps credits in process memory. It mirrors the PostgreSQL
// repository semantics: unique id and credit number, version-checked updates
// and the per-customer limits checked on insert.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*models.Credit
	byNumber map[string]string

	maxActiveBusiness int
}

// NewMemoryStore initializes an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*models.Credit),
		byNumber: make(map[string]string),
	}
}

// WithBusinessLimit makes Insert reject an ACTIVE business credit once the
// customer holds n of them. n <= 0 disables the check.
func (s *MemoryStore) WithBusinessLimit(n int) *MemoryStore {
	s.maxActiveBusiness = n
	return s
}

// Insert stores a new credit. Version is set to 1.
func (s *MemoryStore) Insert(ctx context.Context, credit *models.Credit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[credit.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := s.byNumber[credit.CreditNumber]; ok {
		return ErrDuplicate
	}
	if credit.CreditType == models.CreditPersonal && credit.Status == models.StatusActive {
		for _, c := range s.byID {
			if c.CustomerID == credit.CustomerID && c.CreditType == models.CreditPersonal && c.Status == models.StatusActive {
				return ErrActivePersonalCredit
			}
		}
	}
	if s.maxActiveBusiness > 0 && credit.CreditType == models.CreditBusiness && credit.Status == models.StatusActive {
		active := 0
		for _, c := range s.byID {
			if c.CustomerID == credit.CustomerID && c.CreditType == models.CreditBusiness && c.Status == models.StatusActive {
				active++
			}
		}
		if active >= s.maxActiveBusiness {
			return ErrBusinessLimit
		}
	}
	credit.Version = 1
	s.byID[credit.ID] = credit.Clone()
	s.byNumber[credit.CreditNumber] = credit.ID
	return nil
}

// Update replaces the stored credit if its version still equals credit.Version.
// On success credit.Version is incremented.
func (s *MemoryStore) Update(ctx context.Context, credit *models.Credit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[credit.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != credit.Version {
		return ErrVersionConflict
	}
	credit.Version++
	s.byID[credit.ID] = credit.Clone()
	return nil
}

// DeleteByID removes a credit
func (s *MemoryStore) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byNumber, stored.CreditNumber)
	delete(s.byID, id)
	return nil
}

// FindByID retrieves a credit by id
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.Credit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

// FindByCreditNumber retrieves a credit by its credit number
func (s *MemoryStore) FindByCreditNumber(ctx context.Context, number string) (*models.Credit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNumber[number]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// FindAll returns every credit ordered by creation time
func (s *MemoryStore) FindAll(ctx context.Context) ([]*models.Credit, error) {
	return s.filter(ctx, func(*models.Credit) bool { return true })
}

// FindByCustomerID returns the credits of a customer
func (s *MemoryStore) FindByCustomerID(ctx context.Context, customerID string) ([]*models.Credit, error) {
	return s.filter(ctx, func(c *models.Credit) bool { return c.CustomerID == customerID })
}

// FindByCustomerIDAndTypeAndStatus returns a customer's credits of one type in one status
func (s *MemoryStore) FindByCustomerIDAndTypeAndStatus(ctx context.Context, customerID string, creditType models.CreditType, status models.CreditStatus) ([]*models.Credit, error) {
	return s.filter(ctx, func(c *models.Credit) bool {
		return c.CustomerID == customerID && c.CreditType == creditType && c.Status == status
	})
}

// CountByCustomerIDAndTypeAndStatus counts a customer's credits of one type in one status
func (s *MemoryStore) CountByCustomerIDAndTypeAndStatus(ctx context.Context, customerID string, creditType models.CreditType, status models.CreditStatus) (int, error) {
	credits, err := s.FindByCustomerIDAndTypeAndStatus(ctx, customerID, creditType, status)
	return len(credits), err
}

// CountByCustomerIDAndStatus counts a customer's credits in one status
func (s *MemoryStore) CountByCustomerIDAndStatus(ctx context.Context, customerID string, status models.CreditStatus) (int, error) {
	credits, err := s.filter(ctx, func(c *models.Credit) bool {
		return c.CustomerID == customerID && c.Status == status
	})
	return len(credits), err
}

// FindByStatusAndDueDateBefore returns credits in status whose due date is strictly before date
func (s *MemoryStore) FindByStatusAndDueDateBefore(ctx context.Context, status models.CreditStatus, date time.Time) ([]*models.Credit, error) {
	return s.filter(ctx, func(c *models.Credit) bool {
		return c.Status == status && c.DueDate.Before(date)
	})
}

func (s *MemoryStore) filter(ctx context.Context, keep func(*models.Credit) bool) ([]*models.Credit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Credit
	for _, c := range s.byID {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
