package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// Transport errors. Every error returned by USB matches exactly one of these
// with errors.Is.
var (
	ErrTimeout    = errors.New("transport: timeout")
	ErrIO         = errors.New("transport: i/o error")
	ErrDeviceGone = errors.New("transport: device gone")
)

// Error wraps a low-level USB error with its transport kind.
type Error struct {
	Op   string // "write" or "read"
	Kind error  // ErrTimeout, ErrIO or ErrDeviceGone
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("usb %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("usb %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify maps gousb and context errors onto the transport error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := ErrIO
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, gousb.ErrorTimeout),
		errors.Is(err, gousb.TransferTimedOut),
		errors.Is(err, gousb.TransferCancelled):
		kind = ErrTimeout
	case errors.Is(err, gousb.ErrorNoDevice),
		errors.Is(err, gousb.TransferNoDevice):
		kind = ErrDeviceGone
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
