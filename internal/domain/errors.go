package domain

import "errors"

// Error kinds for expected business failures. Callers branch with
// errors.Is; the HTTP layer owns the mapping to status codes.
var (
	ErrUnauthorized      = errors.New("actor lacks required role")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyResolved   = errors.New("request already resolved")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
