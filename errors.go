package gatt

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. The typed errors below wrap one of these; use
// errors.Cause (or errors.Is) to recover the kind.
var (
	ErrInvalidHandle     = errors.New("invalid attribute handle")
	ErrBufferTooSmall    = errors.New("buffer too small")
	ErrValueTooLong      = errors.New("value too long")
	ErrNotSubscribed     = errors.New("peer not subscribed")
	ErrNotConnected      = errors.New("not connected")
	ErrQueueFull         = errors.New("transmit queue full")
	ErrCapacity          = errors.New("attribute table full")
	ErrInvalidUUID       = errors.New("invalid uuid")
	ErrInvalidProperties = errors.New("invalid property combination")
)

// RegisterError is returned when a server cannot be registered.
// Registration errors are fatal at startup.
type RegisterError struct {
	UUID UUID
	Err  error
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("register %s: %s", e.UUID, e.Err)
}

func (e *RegisterError) Cause() error  { return e.Err }
func (e *RegisterError) Unwrap() error { return e.Err }

func IsRegister(err error) bool {
	var e *RegisterError
	return errors.As(err, &e)
}

// GetValueError is returned by Peripheral.Get.
type GetValueError struct {
	Handle uint16
	Err    error
}

func (e *GetValueError) Error() string {
	return fmt.Sprintf("get value 0x%04X: %s", e.Handle, e.Err)
}

func (e *GetValueError) Cause() error  { return e.Err }
func (e *GetValueError) Unwrap() error { return e.Err }

// SetValueError is returned by Peripheral.Set.
type SetValueError struct {
	Handle uint16
	Err    error
}

func (e *SetValueError) Error() string {
	return fmt.Sprintf("set value 0x%04X: %s", e.Handle, e.Err)
}

func (e *SetValueError) Cause() error  { return e.Err }
func (e *SetValueError) Unwrap() error { return e.Err }

// NotifyValueError is returned by Peripheral.Notify and Peripheral.Indicate.
// ErrNotSubscribed and ErrNotConnected are steady-state conditions;
// ErrQueueFull should be retried after a backoff.
type NotifyValueError struct {
	Handle uint16
	Err    error
}

func (e *NotifyValueError) Error() string {
	return fmt.Sprintf("notify value 0x%04X: %s", e.Handle, e.Err)
}

func (e *NotifyValueError) Cause() error  { return e.Err }
func (e *NotifyValueError) Unwrap() error { return e.Err }

// IsQueueFull reports whether err is a recoverable transmit back-pressure error.
func IsQueueFull(err error) bool {
	return errors.Is(err, ErrQueueFull)
}

// DisconnectError is returned by Host.NextWriteEvent once the link is gone.
type DisconnectError struct {
	Reason DisconnectReason
}

func (e *DisconnectError) Error() string {
	return "disconnected: " + e.Reason.String()
}

func IsDisconnect(err error) bool {
	var e *DisconnectError
	return errors.As(err, &e)
}

// RunError ends a session on a link error or protocol violation.
type RunError struct {
	Conn uint16
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("conn %d: %s", e.Conn, e.Err)
}

func (e *RunError) Cause() error  { return e.Err }
func (e *RunError) Unwrap() error { return e.Err }
