package server

import (
	"errors"
	"fmt"
)

var (
	// ErrSinkClosed is returned when pushing to a sink whose transport is gone.
	ErrSinkClosed = errors.New("sink closed")
	// ErrSinkFull is returned when a sink's outbound queue has no room left.
	ErrSinkFull = errors.New("sink queue full")
)

// DeliveryError reports a failed push to one subscriber. It never reaches
// the message sender; the subscriber is dropped instead.
type DeliveryError struct {
	ConnectionID string
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.ConnectionID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrSinkClosed):
		return "closed"
	case errors.Is(err, ErrSinkFull):
		return "full"
	default:
		return "write"
	}
}
