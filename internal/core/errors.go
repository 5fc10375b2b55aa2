package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTermOverlap        = errors.New("terms overlap")
	ErrPaymentOutsideCoverage    = errors.New("period not covered by any term")
	ErrOrphanedPayment           = errors.New("payment period no longer covered by any term")
	ErrReconciliationInterrupted = errors.New("reconciliation interrupted")

	ErrInvalidPeriod    = errors.New("invalid period")
	ErrInvalidDueDay    = errors.New("invalid due day")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidUnit      = errors.New("invalid unit")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidTermShape = errors.New("invalid term shape")
	ErrInvalidFlow      = errors.New("invalid flow type")
	ErrInvalidLink      = errors.New("invalid link")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyOwner       = errors.New("empty owner")
	ErrNotFound         = errors.New("not found")
	ErrPaymentExists    = errors.New("payment already recorded for period")
	ErrNotOrphaned      = errors.New("payment is not orphaned")
)

// OverlapError describes two terms of one commitment that cover the same period.
type OverlapError struct {
	VersionA int
	VersionB int
	Period   Period
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("terms v%d and v%d both cover %s", e.VersionA, e.VersionB, e.Period)
}

func (e *OverlapError) Unwrap() error {
	return ErrInvalidTermOverlap
}

// Retryable reports whether err is a transient failure the caller may simply retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrReconciliationInterrupted)
}
