package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerType is the kind of customer that owns a credit
type CustomerType string

const (
	CustomerPersonal CustomerType = "PERSONAL"
	CustomerBusiness CustomerType = "BUSINESS"
)

// Valid reports whether t is a known customer type
func (t CustomerType) Valid() bool {
	return t == CustomerPersonal || t == CustomerBusiness
}

// CreditType is the product line of a credit
type CreditType string

const (
	CreditPersonal CreditType = "PERSONAL"
	CreditBusiness CreditType = "BUSINESS"
)

// Valid reports whether t is a known credit type
func (t CreditType) Valid() bool {
	return t == CreditPersonal || t == CreditBusiness
}

// CreditStatus is the lifecycle state of a credit
type CreditStatus string

const (
	StatusActive  CreditStatus = "ACTIVE"
	StatusOverdue CreditStatus = "OVERDUE"
	StatusPaid    CreditStatus = "PAID"
)

// Credit represents a credit in the system
type Credit struct {
	ID                 string          `json:"id"`
	CreditNumber       string          `json:"credit_number"`
	CustomerID         string          `json:"customer_id"`
	CustomerType       CustomerType    `json:"customer_type"`
	CreditType         CreditType      `json:"credit_type"`
	PrincipalAmount    decimal.Decimal `json:"principal_amount"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	TermMonths         int             `json:"term_months"`
	StartDate          time.Time       `json:"start_date"`
	DueDate            time.Time       `json:"due_date"`
	NextPaymentDueDate time.Time       `json:"next_payment_due_date"`
	Status             CreditStatus    `json:"status"`
	LastPaymentBy      string          `json:"last_payment_by,omitempty"`
	LastPaymentDate    *time.Time      `json:"last_payment_date,omitempty"`
	Version            int             `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsPaid reports whether the credit reached its terminal state
func (c *Credit) IsPaid() bool {
	return c.Status == StatusPaid
}

// IsPastDue reports whether an ACTIVE credit has a due date before the
// calendar day of asOf.
func (c *Credit) IsPastDue(asOf time.Time) bool {
	return c.Status == StatusActive && c.DueDate.Before(StartOfDay(asOf))
}

// Clone returns a copy that shares no pointers with c.
func (c *Credit) Clone() *Credit {
	cp := *c
	if c.LastPaymentDate != nil {
		d := *c.LastPaymentDate
		cp.LastPaymentDate = &d
	}
	return &cp
}

// Balance is a summary of how much of a credit has been repaid
type Balance struct {
	CreditID        string          `json:"credit_id"`
	CreditNumber    string          `json:"credit_number"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	Status          CreditStatus    `json:"status"`
}

// BalanceOf builds the repayment summary of c
func BalanceOf(c *Credit) Balance {
	return Balance{
		CreditID:        c.ID,
		CreditNumber:    c.CreditNumber,
		TotalAmount:     c.PrincipalAmount,
		RemainingAmount: c.OutstandingBalance,
		PaidAmount:      c.PrincipalAmount.Sub(c.OutstandingBalance),
		Status:          c.Status,
	}
}

// StartOfDay truncates t to midnight UTC. Credit dates carry no time of day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AmountScale is the number of decimal places money columns are stored with.
const AmountScale = 4

// maxAmount is the first value NUMERIC(19,4) cannot hold.
var maxAmount = decimal.New(1, 19-AmountScale)

// ValidAmount reports whether amount is positive and storable without
// rounding.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() &&
		amount.LessThan(maxAmount) &&
		amount.Equal(amount.Truncate(AmountScale))
}
