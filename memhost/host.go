// Package memhost is an in-memory gatt.Host. It keeps the attribute
// table in a contiguous handle arena and simulates the link layer, so a
// test (or the simulated central of gattd) can connect, write attributes
// and collect notifications without a radio.
package memhost

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	gatt "github.com/XC-/gattserver"
)

// ErrDuplicateService is returned by AddService for a UUID that is
// already in the table.
var ErrDuplicateService = errors.New("service already declared")

// Defaults.
const (
	DefaultCapacity   = 256
	DefaultTxQueueLen = 8
	DefaultRxQueueLen = 32

	// MaxCapacity is the number of attribute handles, 0x0001 to 0xFFFF.
	MaxCapacity = 0xFFFF
)

// An Advertising records one call to Host.Advertise.
type Advertising struct {
	Adv  []byte
	Scan []byte
}

// A Host is an in-memory attribute table and link layer.
// The zero value is not usable; call New.
type Host struct {
	mu       sync.RWMutex
	attrs    *attrRange
	capacity int
	services map[string]uint16
	lastSvc  uint16
	links    map[uint16]*link
	nextConn uint16

	mtu   int
	txLen int
	rxLen int
	log   log.FieldLogger

	centrals chan *link
	adv      chan Advertising
	advCount int
}

// An Option configures a Host.
type Option func(*Host)

// Capacity sets the number of attributes the table can hold,
// at most MaxCapacity.
func Capacity(n int) Option {
	return func(h *Host) {
		if n > MaxCapacity {
			n = MaxCapacity
		}
		h.capacity = n
	}
}

// MTU sets the ATT_MTU of every new link.
func MTU(n int) Option {
	return func(h *Host) { h.mtu = n }
}

// TxQueueLen sets the depth of each link's notification queue.
func TxQueueLen(n int) Option {
	return func(h *Host) { h.txLen = n }
}

// Logger sets the host logger.
func Logger(l log.FieldLogger) Option {
	return func(h *Host) { h.log = l }
}

// New returns an empty host.
func New(opts ...Option) *Host {
	h := &Host{
		attrs:    &attrRange{base: 1},
		capacity: DefaultCapacity,
		services: make(map[string]uint16),
		links:    make(map[uint16]*link),
		mtu:      gatt.DefaultMTU,
		txLen:    DefaultTxQueueLen,
		rxLen:    DefaultRxQueueLen,
		log:      log.StandardLogger(),
		centrals: make(chan *link),
		adv:      make(chan Advertising, 16),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// room fails with ErrCapacity unless n more attributes fit.
// Called with h.mu held.
func (h *Host) room(n int) error {
	last := int(h.attrs.base) + len(h.attrs.hh) + n - 1
	if len(h.attrs.hh)+n > h.capacity || last > MaxCapacity {
		return errors.Wrapf(gatt.ErrCapacity, "%d of %d attributes used", len(h.attrs.hh), h.capacity)
	}
	return nil
}

// AddService declares a primary service.
func (h *Host) AddService(u gatt.UUID) (uint16, error) {
	if !u.Valid() {
		return 0, gatt.ErrInvalidUUID
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.services[u.String()]; ok {
		return 0, errors.Wrap(ErrDuplicateService, u.String())
	}
	if err := h.room(1); err != nil {
		return 0, err
	}
	n := h.attrs.push(&attr{
		typ:    gatt.AttrPrimaryServiceUUID,
		perm:   gatt.PermRead,
		maxLen: u.Len(),
		value:  u.Bytes(),
	})
	h.attrs.hh[len(h.attrs.hh)-1].svc = n
	h.services[u.String()] = n
	h.lastSvc = n

	h.log.WithFields(log.Fields{"uuid": u.String(), "handle": n}).Debug("memhost: service declared")
	return n, nil
}

// AllocateAttribute appends the declaration, value and, if needed, the
// CCCD of one characteristic. Characteristics can only be added to the
// most recently declared service.
func (h *Host) AllocateAttribute(a gatt.Allocation) (gatt.CharacteristicHandles, error) {
	var hh gatt.CharacteristicHandles
	if !a.UUID.Valid() {
		return hh, gatt.ErrInvalidUUID
	}
	if len(a.Initial) > a.MaxLen {
		return hh, errors.Wrapf(gatt.ErrValueTooLong, "initial value %d bytes, max %d", len(a.Initial), a.MaxLen)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if a.Service == 0 || a.Service != h.lastSvc {
		return hh, errors.Wrapf(gatt.ErrInvalidHandle, "service 0x%04X is not open", a.Service)
	}
	need := 2
	if a.Perm.NeedsCCCD() {
		need++
	}
	if err := h.room(need); err != nil {
		return hh, err
	}

	vh := h.attrs.next() + 1
	decl := []byte{byte(a.Props), byte(vh), byte(vh >> 8)}
	h.attrs.push(&attr{
		typ:    gatt.AttrCharacteristicUUID,
		svc:    a.Service,
		perm:   gatt.PermRead,
		maxLen: len(decl) + a.UUID.Len(),
		value:  append(decl, a.UUID.Bytes()...),
	})
	hh.ValueHandle = h.attrs.push(&attr{
		typ:    a.UUID,
		svc:    a.Service,
		perm:   a.Perm,
		maxLen: a.MaxLen,
		value:  append([]byte(nil), a.Initial...),
	})
	if a.Perm.NeedsCCCD() {
		hh.CCCDHandle = h.attrs.push(&attr{
			typ:    gatt.AttrClientCharacteristicConfigUUID,
			svc:    a.Service,
			owner:  hh.ValueHandle,
			perm:   gatt.PermRead | gatt.PermWrite,
			maxLen: 2,
			value:  []byte{0, 0},
		})
	}

	h.log.WithFields(log.Fields{
		"uuid":  a.UUID.String(),
		"value": hh.ValueHandle,
		"cccd":  hh.CCCDHandle,
	}).Debug("memhost: characteristic allocated")
	return hh, nil
}

// ReadAttribute copies the stored value of n into buf and returns the
// full stored length.
func (h *Host) ReadAttribute(n uint16, buf []byte) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	a, ok := h.attrs.At(n)
	if !ok {
		return 0, errors.Wrapf(gatt.ErrInvalidHandle, "0x%04X", n)
	}
	copy(buf, a.value)
	return len(a.value), nil
}

// WriteAttribute replaces the stored value of n. Declarations and
// CCCDs cannot be written locally.
func (h *Host) WriteAttribute(n uint16, b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.attrs.At(n)
	if !ok || a.isDeclaration() || a.isCCCD() {
		return errors.Wrapf(gatt.ErrInvalidHandle, "0x%04X", n)
	}
	if len(b) > a.maxLen {
		return errors.Wrapf(gatt.ErrValueTooLong, "%d bytes, max %d", len(b), a.maxLen)
	}
	a.value = append(a.value[:0:0], b...)
	return nil
}

// SendNotification queues a notification or indication on l.
func (h *Host) SendNotification(l gatt.Link, n uint16, b []byte, indicate bool) error {
	lk, ok := l.(*link)
	if !ok || lk.h != h {
		return errors.Wrap(gatt.ErrNotConnected, "foreign link")
	}

	h.mu.RLock()
	a, ok := h.attrs.At(n)
	var perm gatt.Perm
	var maxLen int
	if ok {
		perm, maxLen = a.perm, a.maxLen
	}
	h.mu.RUnlock()

	want := gatt.PermNotify
	if indicate {
		want = gatt.PermIndicate
	}
	switch {
	case !ok || perm&want == 0:
		return errors.Wrapf(gatt.ErrInvalidHandle, "0x%04X", n)
	case len(b) > maxLen:
		return errors.Wrapf(gatt.ErrValueTooLong, "%d bytes, max %d", len(b), maxLen)
	case len(b) > lk.mtu-3:
		return errors.Wrapf(gatt.ErrValueTooLong, "%d bytes, ATT_MTU %d", len(b), lk.mtu)
	}
	return lk.send(Notification{
		Handle:     n,
		Value:      append([]byte(nil), b...),
		Indication: indicate,
	})
}

// Advertise waits for a central to Connect. Each call is reported on
// the Advertisements channel.
func (h *Host) Advertise(ctx context.Context, adv, scan []byte) (gatt.Link, error) {
	if err := gatt.ValidateAdvData(adv); err != nil {
		return nil, err
	}
	if err := gatt.ValidateAdvData(scan); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.advCount++
	h.mu.Unlock()
	select {
	case h.adv <- Advertising{Adv: adv, Scan: scan}:
	default:
	}

	select {
	case lk := <-h.centrals:
		h.mu.Lock()
		h.nextConn++
		lk.handle = h.nextConn
		h.links[lk.handle] = lk
		h.mu.Unlock()
		close(lk.accepted)
		h.log.WithFields(log.Fields{
			"conn": lk.handle,
			"addr": lk.addr.String(),
		}).Debug("memhost: connected")
		return lk, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NextWriteEvent returns the next write the central made on l.
// Writes made before a disconnection are still delivered.
func (h *Host) NextWriteEvent(ctx context.Context, l gatt.Link) (gatt.WriteEvent, error) {
	lk, ok := l.(*link)
	if !ok || lk.h != h {
		return gatt.WriteEvent{}, errors.Wrap(gatt.ErrNotConnected, "foreign link")
	}
	select {
	case w := <-lk.rx:
		return w, nil
	default:
	}
	select {
	case w := <-lk.rx:
		return w, nil
	case <-lk.done:
		select {
		case w := <-lk.rx:
			return w, nil
		default:
		}
		return gatt.WriteEvent{}, &gatt.DisconnectError{Reason: lk.Reason()}
	case <-ctx.Done():
		return gatt.WriteEvent{}, ctx.Err()
	}
}

// Advertisements returns a channel that receives every advertising
// payload pair passed to Advertise. Sends never block; reports are
// dropped once the buffer is full.
func (h *Host) Advertisements() <-chan Advertising {
	return h.adv
}

// AdvertiseCount returns how many times Advertise has been called.
func (h *Host) AdvertiseCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.advCount
}

// Connections returns the number of links that are up.
func (h *Host) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.links)
}

// Dump writes the attribute table to w.
func (h *Host) Dump(w io.Writer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tTYPE\tPERM\tVALUE")
	for _, a := range h.attrs.hh {
		fmt.Fprintf(tw, "0x%04X\t%s\t%s\t% x\n", a.n, a.typ, permString(a.perm), a.value)
	}
	return tw.Flush()
}

func permString(p gatt.Perm) string {
	b := []byte("----")
	for i, c := range "rwni" {
		if p&(1<<uint(i)) != 0 {
			b[i] = byte(c)
		}
	}
	return string(b)
}

func (h *Host) unlink(lk *link) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.links[lk.handle] == lk {
		delete(h.links, lk.handle)
	}
}
