package shim

import (
	"fmt"

	"github.com/pkg/errors"

	gatt "github.com/XC-/gattserver"
)

// A Status is the result code of a shim request. Values below 0x80 are
// ATT error codes; the shim reports its own conditions above that.
type Status int

const (
	StatusSuccess             Status = 0x00
	StatusInvalidHandle       Status = 0x01
	StatusReadNotPerm         Status = 0x02
	StatusWriteNotPerm        Status = 0x03
	StatusInvalidPDU          Status = 0x04
	StatusReqNotSupp          Status = 0x06
	StatusAttrNotFound        Status = 0x0a
	StatusInvalAttrValueLen   Status = 0x0d
	StatusUnlikely            Status = 0x0e
	StatusInsuffResources     Status = 0x11
	StatusNotSubscribed       Status = 0x80
	StatusNotConnected        Status = 0x81
	StatusQueueFull           Status = 0x82
	StatusInvalidUUID         Status = 0x83
	StatusInvalidAdvData      Status = 0x84
	StatusAdvertisingDisabled Status = 0x85
)

var statusText = map[Status]string{
	StatusInvalidHandle:       "invalid handle",
	StatusReadNotPerm:         "read not permitted",
	StatusWriteNotPerm:        "write not permitted",
	StatusInvalidPDU:          "invalid pdu",
	StatusReqNotSupp:          "request not supported",
	StatusAttrNotFound:        "attribute not found",
	StatusInvalAttrValueLen:   "invalid attribute value length",
	StatusUnlikely:            "unlikely error",
	StatusInsuffResources:     "insufficient resources",
	StatusNotSubscribed:       "not subscribed",
	StatusNotConnected:        "not connected",
	StatusQueueFull:           "queue full",
	StatusInvalidUUID:         "invalid uuid",
	StatusInvalidAdvData:      "invalid advertising data",
	StatusAdvertisingDisabled: "advertising disabled",
}

func (s Status) String() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return fmt.Sprintf("status 0x%02x", int(s))
}

// statusKind maps a status onto the gatt error kind it stands for.
var statusKind = map[Status]error{
	StatusInvalidHandle:     gatt.ErrInvalidHandle,
	StatusAttrNotFound:      gatt.ErrInvalidHandle,
	StatusInvalAttrValueLen: gatt.ErrValueTooLong,
	StatusInsuffResources:   gatt.ErrCapacity,
	StatusNotSubscribed:     gatt.ErrNotSubscribed,
	StatusNotConnected:      gatt.ErrNotConnected,
	StatusQueueFull:         gatt.ErrQueueFull,
	StatusInvalidUUID:       gatt.ErrInvalidUUID,
	StatusInvalidAdvData:    gatt.ErrInvalidAdvData,
}

// A StatusError is a failed shim request.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("shim %s: %s", e.Op, e.Status)
}

// ErrRequestFailed is the kind of statuses with no gatt equivalent.
var ErrRequestFailed = errors.New("shim request failed")

// Cause returns the gatt error kind of the status, or ErrRequestFailed.
func (e *StatusError) Cause() error {
	if k, ok := statusKind[e.Status]; ok {
		return k
	}
	return ErrRequestFailed
}

func (e *StatusError) Unwrap() error { return e.Cause() }

func statusError(op string, s Status) error {
	if s == StatusSuccess {
		return nil
	}
	return &StatusError{Op: op, Status: s}
}

// IsStatus reports whether err is a StatusError with status s.
func IsStatus(err error, s Status) bool {
	var e *StatusError
	return errors.As(err, &e) && e.Status == s
}
