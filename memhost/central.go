package memhost

import (
	"context"

	"github.com/pkg/errors"

	gatt "github.com/XC-/gattserver"
)

// Peer access errors, as the ATT layer would report them.
var (
	ErrReadNotPermitted  = errors.New("read not permitted")
	ErrWriteNotPermitted = errors.New("write not permitted")
)

// An Attribute is one row of the attribute table, as discovered by a central.
type Attribute struct {
	Handle uint16
	Type   gatt.UUID
	Value  []byte
}

// Attributes returns the attributes in [start, end].
func (h *Host) Attributes(start, end uint16) []Attribute {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var aa []Attribute
	for _, a := range h.attrs.Subrange(start, end) {
		aa = append(aa, Attribute{
			Handle: a.n,
			Type:   a.typ,
			Value:  append([]byte(nil), a.value...),
		})
	}
	return aa
}

// A Central drives one simulated connection from the peer side.
type Central struct {
	lk *link
}

// Connect connects a central with address addr to the next Advertise
// call. It blocks until the host is advertising or ctx is done.
func (h *Host) Connect(ctx context.Context, addr gatt.BDAddr) (*Central, error) {
	lk := newLink(h, addr)
	select {
	case h.centrals <- lk:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	<-lk.accepted
	return &Central{lk: lk}, nil
}

// Handle returns the connection handle.
func (c *Central) Handle() uint16 { return c.lk.handle }

// Done is closed once the link is down.
func (c *Central) Done() <-chan struct{} { return c.lk.done }

// Notifications returns the notifications and indications received.
func (c *Central) Notifications() <-chan Notification { return c.lk.tx }

// Disconnect takes the link down with reason r.
func (c *Central) Disconnect(r gatt.DisconnectReason) {
	c.lk.disconnect(r)
}

// Read reads attribute n. A CCCD reads back this link's configuration.
func (c *Central) Read(n uint16) ([]byte, error) {
	if c.lk.isDown() {
		return nil, gatt.ErrNotConnected
	}
	h := c.lk.h
	h.mu.RLock()
	a, ok := h.attrs.At(n)
	if !ok {
		h.mu.RUnlock()
		return nil, errors.Wrapf(gatt.ErrInvalidHandle, "0x%04X", n)
	}
	if a.perm&gatt.PermRead == 0 {
		h.mu.RUnlock()
		return nil, ErrReadNotPermitted
	}
	if a.isCCCD() {
		owner := a.owner
		h.mu.RUnlock()
		return c.lk.subscription(owner).Bytes(), nil
	}
	v := append([]byte(nil), a.value...)
	h.mu.RUnlock()
	return v, nil
}

// Write writes attribute n the way an ATT Write Request would: the
// value is checked against the attribute's permission and length,
// stored, and then delivered to the peripheral.
func (c *Central) Write(n uint16, data []byte) error {
	if c.lk.isDown() {
		return gatt.ErrNotConnected
	}
	h := c.lk.h
	h.mu.Lock()
	a, ok := h.attrs.At(n)
	if !ok {
		h.mu.Unlock()
		return errors.Wrapf(gatt.ErrInvalidHandle, "0x%04X", n)
	}
	if a.perm&gatt.PermWrite == 0 {
		h.mu.Unlock()
		return ErrWriteNotPermitted
	}
	if len(data) > a.maxLen {
		h.mu.Unlock()
		return errors.Wrapf(gatt.ErrValueTooLong, "%d bytes, max %d", len(data), a.maxLen)
	}
	if a.isCCCD() {
		s := gatt.DecodeCCCD(data)
		if o, ok := h.attrs.At(a.owner); ok {
			s.Notify = s.Notify && o.perm&gatt.PermNotify != 0
			s.Indicate = s.Indicate && o.perm&gatt.PermIndicate != 0
		}
		owner := a.owner
		h.mu.Unlock()
		c.lk.setSubscription(owner, s)
	} else {
		a.value = append(a.value[:0:0], data...)
		h.mu.Unlock()
	}
	return c.Inject(n, data)
}

// Subscribe writes s to the CCCD at handle n.
func (c *Central) Subscribe(n uint16, s gatt.Subscription) error {
	return c.Write(n, s.Bytes())
}

// Inject delivers a write event for handle n without touching the
// table. It stands in for a host that forwards writes it did not check.
func (c *Central) Inject(n uint16, data []byte) error {
	w := gatt.WriteEvent{Handle: n, Data: append([]byte(nil), data...)}
	select {
	case c.lk.rx <- w:
		return nil
	case <-c.lk.done:
		return gatt.ErrNotConnected
	}
}
