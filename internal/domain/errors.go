package domain

import "errors"

var (
	ErrNotFound                  = errors.New("not found")
	ErrNotLoaded                 = errors.New("balances not loaded")
	ErrInsufficientSigningWeight = errors.New("insufficient signing weight: multisig accounts are not supported")
	ErrApprovalRejected          = errors.New("approval server rejected transaction")
	ErrUnknownOperation          = errors.New("unknown operation type")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInvalidAddress            = errors.New("invalid account address")
	ErrLockHeld                  = errors.New("lock already held")
	ErrTxFailed                  = errors.New("transaction failed")
	ErrConfirmationTimeout       = errors.New("transaction confirmation timed out")
	ErrUnauthorized              = errors.New("unauthorized")
	ErrRateLimited               = errors.New("rate limited")
	ErrNetwork                   = errors.New("network failure")
)
