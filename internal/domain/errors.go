package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidGroupName   = errors.New("invalid group name")
	ErrInvalidChannelName = errors.New("invalid channel name")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrChannelFull        = errors.New("channel full")
	ErrPrinterNotFound    = errors.New("printer not found")
)

// TransportError reports a failed operation against the backing store or
// message transport. Callers get it unretried.
type TransportError struct {
	Op  string
	Key string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError returns nil when err is nil so adapters can wrap
// command results inline.
func NewTransportError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Key: key, Err: err}
}
