package contracts

import (
	"errors"
	"fmt"
)

var (
	// Transport errors
	ErrHostUnavailable       = errors.New("hostbridge: host channel unavailable")
	ErrDuplicateSubscription = errors.New("hostbridge: raw host hook already registered")

	// Request errors
	ErrRequestTimedOut = errors.New("hostbridge: request timed out")
	ErrTooManyPending  = errors.New("hostbridge: too many pending requests")
	ErrBridgeClosed    = errors.New("hostbridge: bridge closed")

	// Inbound errors
	ErrMalformedEnvelope = errors.New("hostbridge: malformed envelope")
)

// RequestError describes a request that could not be completed
type RequestError struct {
	Op            string
	Kind          string
	CorrelationID string
	Err           error
}

func (e *RequestError) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("hostbridge request error: %s %q (correlationId=%s): %v",
			e.Op, e.Kind, e.CorrelationID, e.Err)
	}
	return fmt.Sprintf("hostbridge request error: %s %q: %v", e.Op, e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ClosedError is returned to every request still pending when the bridge shuts down.
type ClosedError struct {
	Reason string
}

func (e *ClosedError) Error() string {
	if e.Reason == "" {
		return ErrBridgeClosed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrBridgeClosed.Error(), e.Reason)
}

func (e *ClosedError) Unwrap() error {
	return ErrBridgeClosed
}

// RemoteError carries the error text a host put in a reply envelope
type RemoteError struct {
	Kind          string
	CorrelationID string
	Message       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("host rejected %q (correlationId=%s): %s", e.Kind, e.CorrelationID, e.Message)
}

// EnvelopeError represents an envelope that could not be encoded or decoded
type EnvelopeError struct {
	Reason string
	Err    error
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("envelope error: %s: %v", e.Reason, e.Err)
}

func (e *EnvelopeError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err stems from an undecodable envelope
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedEnvelope)
}
