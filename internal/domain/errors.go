package domain

import (
	"errors"
	"fmt"
)

// ValidationError is returned for invalid input to a local operation. It is
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func Invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

var (
	ErrEmptyCart           = &ValidationError{Field: "cart", Reason: "cart is empty"}
	ErrMixedCart           = &ValidationError{Field: "cart", Reason: "cart mixes products and services"}
	ErrInsufficientStock   = &ValidationError{Field: "quantity", Reason: "insufficient stock"}
	ErrInsufficientPayment = &ValidationError{Field: "amount_paid_cents", Reason: "amount paid is less than total"}
	ErrNoIdentity          = &ValidationError{Field: "owner", Reason: "no authenticated user"}
	ErrLineNotFound        = &ValidationError{Field: "line", Reason: "cart line not found"}
)

func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// RemoteError wraps any failure reported by the remote store or the identity
// backend.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}

func IsRemote(err error) bool {
	var rerr *RemoteError
	return errors.As(err, &rerr)
}

// SyncError reports the queue entry a flush stopped at.
type SyncError struct {
	EntryID string
	Kind    SyncKind
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s entry %s: %v", e.Kind, e.EntryID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
