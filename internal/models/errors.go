package models

import "errors"

// Error kinds for every rejected precondition. Services wrap these with
// fmt.Errorf("...: %w", ...) so callers can assert on cause with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrContractSuspended = errors.New("contract is currently suspended")
	ErrInvalidState      = errors.New("invalid state for requested transition")
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate")
	ErrAlreadyExists     = errors.New("already exists")
	ErrAlreadyAssigned   = errors.New("already assigned")
	ErrAlreadyAggregated = errors.New("already aggregated")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidSeverity   = errors.New("invalid severity")
	ErrNothingToWithdraw = errors.New("nothing to withdraw")
)
