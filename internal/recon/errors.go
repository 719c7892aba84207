package recon

import "errors"

// ErrNotFound is the store-level miss. TransactionStore implementations
// return it (or wrap it) whenever a lookup matches nothing; the engine
// translates it into the operation-specific error below.
var ErrNotFound = errors.New("recon: record not found")

// Typed outcomes of the transition function. Gateway adapters map these to
// their provider-specific response codes; none of them is a fault.
var (
	ErrSignatureInvalid    = errors.New("recon: signature verification failed")
	ErrAmountMismatch      = errors.New("recon: amount does not match order price")
	ErrOrderNotFound       = errors.New("recon: order not found")
	ErrTransactionNotFound = errors.New("recon: transaction not found")
	ErrAlreadyPaid         = errors.New("recon: transaction already confirmed")
	ErrTransactionCanceled = errors.New("recon: transaction canceled")
	ErrTooManyRequests     = errors.New("recon: another transaction already exists for this order")
	ErrMethodNotFound      = errors.New("recon: method not found")
	ErrActionNotFound      = errors.New("recon: action not found")
)
