package model

import (
	"errors"
	"fmt"
)

// ValidationError is returned when input is missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InvalidStateError is returned when a status transition is not allowed
// from the status the order is currently in.
type InvalidStateError struct {
	OrderID string
	Current OrderStatus
	Target  OrderStatus
}

func (e *InvalidStateError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("order %s cannot move to %s", e.OrderID, e.Target)
	}
	return fmt.Sprintf("order %s cannot move from %s to %s", e.OrderID, e.Current, e.Target)
}

// TransientExternalError wraps a failure of an upstream service that may
// succeed when retried later (timeouts, 5xx, rate limits).
type TransientExternalError struct {
	Service string
	Err     error
}

func (e *TransientExternalError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *TransientExternalError) Unwrap() error { return e.Err }

// PersistenceError wraps a storage failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

func IsTransient(err error) bool {
	var target *TransientExternalError
	return errors.As(err, &target)
}

func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}
