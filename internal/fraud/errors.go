package fraud

import "errors"

// Validation errors. These are caller errors: the transaction is rejected
// before any signal collection, never routed through the fail-open path.
var (
	ErrMissingCustomer = errors.New("customer id is required")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidEmail    = errors.New("a valid email is required")
)
