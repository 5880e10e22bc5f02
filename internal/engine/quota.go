package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/idxstore/internal/ir"
)

// DefaultQuota is the storage quota reported and enforced when none is
// configured: 1 GiB.
const DefaultQuota int64 = 1 << 30

// QuotaEnforcer rejects writes that would grow storage past the quota.
//
// Usage is whatever the backend reports, so the check is an estimate: the
// incoming size is the canonical JSON length of the written items.
type QuotaEnforcer struct {
	quota int64
}

// NewQuotaEnforcer creates an enforcer. A quota <= 0 disables enforcement.
func NewQuotaEnforcer(quota int64) *QuotaEnforcer {
	return &QuotaEnforcer{quota: quota}
}

// Check returns *QuotaExceededError if usage plus the size of items exceeds
// the quota.
func (q *QuotaEnforcer) Check(usage int64, items []*ir.Bag) error {
	if q.quota <= 0 {
		return nil
	}
	incoming := int64(0)
	for _, item := range items {
		data, err := ir.MarshalCanonical(item)
		if err != nil {
			return fmt.Errorf("measure item: %w", err)
		}
		incoming += int64(len(data))
	}
	if usage+incoming > q.quota {
		return &QuotaExceededError{Usage: usage, Incoming: incoming, Quota: q.quota}
	}
	return nil
}

// Quota returns the configured quota in bytes.
func (q *QuotaEnforcer) Quota() int64 {
	return q.quota
}

// QuotaExceededError is returned when a write would exceed the quota.
type QuotaExceededError struct {
	Usage    int64
	Incoming int64
	Quota    int64
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("storage quota exceeded: %d bytes used + %d incoming > %d quota",
		e.Usage, e.Incoming, e.Quota)
}

// IsQuotaError returns true if the error is a QuotaExceededError.
// Uses errors.As to handle wrapped errors.
func IsQuotaError(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}
