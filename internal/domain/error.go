package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Capacity errors. Both are expected outcomes, never faults: the caller
	// decides whether to queue, backorder or fail the sale.
	ErrNoCapacity = errors.New("account has no free slot")
	ErrExhausted  = errors.New("no account with free capacity for this service")

	// ErrSlotConflict signals an attempted double-reservation of an occupied
	// slot. This is a programming-level fault and is always rejected.
	ErrSlotConflict = errors.New("slot is already bound to another subscription")

	// Lifecycle errors
	ErrInvalidState     = errors.New("operation not allowed in current subscription state")
	ErrAccountDisabled  = errors.New("account is deactivated")
	ErrChargeDeclined   = errors.New("renewal charge was declined")
	ErrLockNotAcquired  = errors.New("could not acquire lock")
	ErrDeliveryFailed   = errors.New("notification delivery failed")
	ErrNoChannel        = errors.New("no notification channel configured")
	ErrAttemptsExceeded = errors.New("delivery attempts exhausted")

	// Persistence errors
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid transaction context")
)
