package gatt

import (
	"context"
	"net"
)

// A Host is the BLE host stack a Peripheral is registered into.
// It owns the attribute table, the radio and the links; the Peripheral
// only ever addresses it by handle.
//
// Implementations must be safe for concurrent use. Errors should wrap
// the kinds declared in this package (ErrInvalidHandle, ErrValueTooLong,
// ErrCapacity, ErrNotSubscribed, ErrNotConnected, ErrQueueFull).
type Host interface {
	// AddService declares a primary service and returns its handle.
	AddService(u UUID) (uint16, error)

	// AllocateAttribute allocates the attributes of one characteristic.
	// CCCDHandle is non-zero iff a.Perm.NeedsCCCD().
	AllocateAttribute(a Allocation) (CharacteristicHandles, error)

	// ReadAttribute copies the stored value of h into buf and returns
	// the full stored length, which may exceed len(buf).
	ReadAttribute(h uint16, buf []byte) (int, error)

	// WriteAttribute replaces the stored value of h.
	WriteAttribute(h uint16, b []byte) error

	// SendNotification queues a Handle Value Notification (or Indication)
	// on l. It must not block.
	SendNotification(l Link, h uint16, b []byte, indicate bool) error

	// Advertise advertises with the given AD and scan response payloads
	// until a central connects.
	Advertise(ctx context.Context, adv, scan []byte) (Link, error)

	// NextWriteEvent blocks until the peer on l writes an attribute.
	// Writes are returned in the order they were received. Once the link
	// is down it returns a *DisconnectError.
	NextWriteEvent(ctx context.Context, l Link) (WriteEvent, error)
}

// A WriteEvent is an attribute write received from a peer. The host has
// already stored the value by the time it is delivered.
type WriteEvent struct {
	Handle uint16
	Data   []byte
}

// A Link is one connection as seen by the host.
type Link interface {
	// Handle returns the connection handle.
	Handle() uint16

	// RemoteAddr returns the address of the connected central.
	RemoteAddr() BDAddr

	// MTU returns the current ATT_MTU.
	MTU() int

	// Close disconnects the link.
	Close() error
}

// A BDAddr (Bluetooth Device Address) is a hardware-addressed-based net.Addr.
type BDAddr struct{ net.HardwareAddr }

func (a BDAddr) Network() string { return "BLE" }
