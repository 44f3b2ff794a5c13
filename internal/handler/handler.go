package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/credit-service/internal/apperrors"
	"github.com/Dan9191/credit-service/internal/models"
	"github.com/Dan9191/credit-service/internal/service"
)

// Sweeper runs the overdue sweep on demand
type Sweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

// KeyRateSource reports the current central bank key rate
type KeyRateSource interface {
	KeyRate(ctx context.Context) (decimal.Decimal, error)
	Margin() decimal.Decimal
}

// Handler serves the HTTP API of the credit engine
type Handler struct {
	svc      *service.Service
	sweeper  Sweeper
	rates    KeyRateSource
	validate *validator.Validate
	log      *logrus.Logger
}

// NewHandler builds the HTTP handlers. rates may be nil when the key-rate
// integration is disabled.
func NewHandler(svc *service.Service, sweeper Sweeper, rates KeyRateSource, log *logrus.Logger) *Handler {
	return &Handler{
		svc:      svc,
		sweeper:  sweeper,
		rates:    rates,
		validate: validator.New(),
		log:      log,
	}
}

type createCreditRequest struct {
	CustomerID   string           `json:"customer_id" validate:"required,max=64"`
	CustomerType string           `json:"customer_type" validate:"required"`
	CreditType   string           `json:"credit_type" validate:"required"`
	Amount       decimal.Decimal  `json:"amount"`
	TermMonths   int              `json:"term_months" validate:"gte=0,lte=600"`
	InterestRate *decimal.Decimal `json:"interest_rate,omitempty"`
}

type paymentRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	PayerID string          `json:"payer_id" validate:"max=64"`
}

type extendTermRequest struct {
	TermMonths int `json:"term_months" validate:"required,gt=0,lte=600"`
}

// CreateCredit handles credit creation
func (h *Handler) CreateCredit(w http.ResponseWriter, r *http.Request) {
	var req createCreditRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	credit, err := h.svc.CreateCredit(r.Context(), service.CreateCreditRequest{
		CustomerID:   req.CustomerID,
		CustomerType: models.CustomerType(req.CustomerType),
		CreditType:   models.CreditType(req.CreditType),
		Amount:       req.Amount,
		TermMonths:   req.TermMonths,
		InterestRate: req.InterestRate,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, credit)
}

// ListCredits returns every credit
func (h *Handler) ListCredits(w http.ResponseWriter, r *http.Request) {
	credits, err := h.svc.ListAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(credits))
}

// GetCredit returns a credit by id
func (h *Handler) GetCredit(w http.ResponseWriter, r *http.Request) {
	credit, err := h.svc.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credit)
}

// GetCreditByNumber returns a credit by its credit number
func (h *Handler) GetCreditByNumber(w http.ResponseWriter, r *http.Request) {
	credit, err := h.svc.GetByCreditNumber(r.Context(), mux.Vars(r)["creditNumber"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credit)
}

// ListCustomerCredits returns the credits of one customer
func (h *Handler) ListCustomerCredits(w http.ResponseWriter, r *http.Request) {
	credits, err := h.svc.ListByCustomer(r.Context(), mux.Vars(r)["customerId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(credits))
}

// HasOverdueDebt reports whether a customer has an overdue credit
func (h *Handler) HasOverdueDebt(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["customerId"]
	overdue, err := h.svc.HasOverdueDebt(r.Context(), customerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customer_id":      customerID,
		"has_overdue_debt": overdue,
	})
}

// GetBalance returns the repayment summary of a credit
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.svc.GetBalance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// ApplyPayment handles a payment against a credit
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	credit, err := h.svc.ApplyPayment(r.Context(), service.PaymentRequest{
		CreditID: mux.Vars(r)["id"],
		Amount:   req.Amount,
		PayerID:  req.PayerID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credit)
}

// ExtendTerm handles a term extension
func (h *Handler) ExtendTerm(w http.ResponseWriter, r *http.Request) {
	var req extendTermRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	credit, err := h.svc.ExtendTerm(r.Context(), mux.Vars(r)["id"], req.TermMonths)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credit)
}

// DeleteCredit removes a credit
func (h *Handler) DeleteCredit(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TriggerSweep runs the overdue sweep now
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"transitioned": n})
}

// KeyRate returns the current key rate and the bank margin
func (h *Handler) KeyRate(w http.ResponseWriter, r *http.Request) {
	if h.rates == nil {
		h.writeError(w, apperrors.ErrRateUnavailable)
		return
	}
	rate, err := h.rates.KeyRate(r.Context())
	if err != nil {
		h.log.WithError(err).Warn("Failed to get key rate")
		h.writeError(w, apperrors.ErrRateUnavailable.WithError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"key_rate": rate,
		"margin":   h.rates.Margin(),
	})
}

// Health is the liveness probe
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func nonNil(credits []*models.Credit) []*models.Credit {
	if credits == nil {
		return []*models.Credit{}
	}
	return credits
}
