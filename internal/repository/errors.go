package repository

import "errors"

var (
	// ErrNotFound is returned when no credit matches the lookup.
	ErrNotFound = errors.New("credit not found")
	// ErrDuplicate is returned by Insert when the id or credit number is taken.
	ErrDuplicate = errors.New("duplicate credit")
	// ErrActivePersonalCredit is returned by Insert when the customer already
	// holds an ACTIVE personal credit.
	ErrActivePersonalCredit = errors.New("customer already has an active personal credit")
	// ErrBusinessLimit is returned by Insert when the customer already holds
	// the configured number of ACTIVE business credits.
	ErrBusinessLimit = errors.New("customer reached the active business credit limit")
	// ErrVersionConflict is returned by Update when the stored version moved on.
	ErrVersionConflict = errors.New("credit version conflict")
	// ErrConstraint is returned when a write breaks a schema constraint.
	// Retrying the same write cannot succeed.
	ErrConstraint = errors.New("credit constraint violated")
)
