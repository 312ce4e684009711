package database

import (
	"errors"

	"github.com/lib/pq"
)

// ErrorClass tells WithRetry whether a failed unit of work may be replayed.
type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

// ClassifyError maps Postgres SQLSTATE codes to retry classes. Serialization
// failures (40001) and deadlocks (40P01) are expected under the serializable
// booking transactions; lock_not_available (55P03) comes from NOWAIT locks.
// Connection exceptions (class 08) are transient. Everything else, constraint
// violations included, is permanent.
func ClassifyError(err error) ErrorClass {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return ErrorClassPermanent
	}

	switch {
	case pqErr.Code == "40001":
		return ErrorClassSerialization
	case pqErr.Code == "40P01":
		return ErrorClassDeadlock
	case pqErr.Code == "55P03", pqErr.Code.Class() == "08":
		return ErrorClassTransient
	default:
		return ErrorClassPermanent
	}
}

// IsRetryable reports whether err is worth another attempt in a fresh transaction.
func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Sentinels returned by the store implementations. Services translate them
// into apperr kinds; ErrStatusConflict is the losing side of a status
// compare-and-set.
var (
	ErrProductNotFound      = errors.New("product not found")
	ErrVariantNotFound      = errors.New("variant not found")
	ErrPricingNotFound      = errors.New("pricing not found")
	ErrCartNotFound         = errors.New("cart not found")
	ErrCartItemNotFound     = errors.New("cart item not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrLockNotFound         = errors.New("inventory lock not found")
	ErrRefundNotFound       = errors.New("refund not found")
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrStatusConflict       = errors.New("order status changed concurrently")
	ErrOptimisticLockFailed = errors.New("optimistic lock failed")
)
