package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConnection is returned when an operation names a connection id
	// that is not (or no longer) registered.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrDeliveryTimeout means a transport write did not finish within the delivery timeout.
	ErrDeliveryTimeout = errors.New("delivery timed out")

	// ErrDeliveryFailed means a transport write returned an error.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// DecodeError reports an inbound frame that is not a valid envelope.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode inbound message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PublishValidationError is returned synchronously by Gateway.Publish; nothing was sent.
type PublishValidationError struct {
	Field  string
	Reason string
}

func (e *PublishValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
