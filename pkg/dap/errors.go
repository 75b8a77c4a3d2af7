package dap

import (
	"errors"
	"fmt"
)

// Protocol errors. Detailed error values below match these with errors.Is.
var (
	ErrUnexpectedCommandEcho = errors.New("dap: unexpected command echo")
	ErrMalformedResponse     = errors.New("dap: malformed response")
	ErrSegmentCountOverflow  = errors.New("dap: segment count overflow")
	ErrFrameTooLarge         = errors.New("dap: frame too large")
	ErrNotConnected          = errors.New("dap: not connected")
	ErrUnknownCommand        = errors.New("dap: unknown command")
	ErrInvalidArgument       = errors.New("dap: invalid argument")
	ErrClosed                = errors.New("dap: session closed")
	ErrStatus                = errors.New("dap: command failed")
)

// EchoError reports a response whose first byte is not the command that was
// sent.
type EchoError struct {
	Want CommandID
	Got  byte
}

func (e *EchoError) Error() string {
	return fmt.Sprintf("dap: response to wrong command (want 0x%02X, got 0x%02X)", byte(e.Want), e.Got)
}

func (e *EchoError) Is(target error) bool {
	return target == ErrUnexpectedCommandEcho
}

// LengthError reports a response whose length does not match the layout the
// command defines.
type LengthError struct {
	Command CommandID
	Want    int
	Got     int
}

func (e *LengthError) Error() string {
	if e.Got == 0 {
		return fmt.Sprintf("dap: %s: empty response", e.Command)
	}
	return fmt.Sprintf("dap: %s: response length %d, want %d", e.Command, e.Got, e.Want)
}

func (e *LengthError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// FrameSizeError reports a command or expected response that does not fit in
// one packet.
type FrameSizeError struct {
	Command CommandID
	Size    int
	Max     int
}

func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("dap: %s: frame of %d bytes exceeds packet size %d", e.Command, e.Size, e.Max)
}

func (e *FrameSizeError) Is(target error) bool {
	return target == ErrFrameTooLarge
}

// StatusError is returned when the probe answers with DAP_ERROR (or, for
// DAP_Connect, with port 0).
type StatusError struct {
	Command CommandID
	Status  byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dap: %s failed (status 0x%02X)", e.Command, e.Status)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// IsStatusError returns true if err carries a probe status failure.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
