// Package shim implements gatt.Host on top of an external host-stack
// process. The process owns the radio and the attribute table; this
// package talks to it over a line protocol, one JSON message per line.
//
// Requests carry a non-zero sequence number and are answered by a "rsp"
// message with the same number. Connection events (connect, write,
// disconnect, mtu) arrive unsolicited with sequence number 0.
package shim

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	gatt "github.com/XC-/gattserver"
)

var (
	ErrClosed  = errors.New("shim closed")
	ErrTimeout = errors.New("shim request timed out")
)

// DefaultTimeout bounds every request round trip.
const DefaultTimeout = 5 * time.Second

// A Host is a gatt.Host backed by a shim process.
type Host struct {
	proc    Proc
	log     log.FieldLogger
	timeout time.Duration
	adv     AdvParams

	sendmu sync.Mutex // serializes writes to the shim

	mu      sync.Mutex
	seq     uint32
	pending map[uint32]chan *Msg
	links   map[uint16]*link
	err     error
	adving  bool // an Advertise call is waiting for a connection

	accept chan *link
	done   chan struct{}
}

// An Option configures a Host.
type Option func(*Host)

// Logger sets the host logger.
func Logger(l log.FieldLogger) Option {
	return func(h *Host) { h.log = l }
}

// Timeout sets the request timeout.
func Timeout(d time.Duration) Option {
	return func(h *Host) { h.timeout = d }
}

// AdvParams are the advertising parameters passed with every adv_start.
// Zero fields leave the choice to the shim.
type AdvParams struct {
	IntervalMin uint16 // 0.625 ms units
	IntervalMax uint16
	ChannelMap  uint8 // bit 0 is channel 37
}

// Advertising sets the advertising parameters.
func Advertising(p AdvParams) Option {
	return func(h *Host) { h.adv = p }
}

// New starts serving the shim protocol over p.
func New(p Proc, opts ...Option) *Host {
	h := &Host{
		proc:    p,
		log:     log.StandardLogger(),
		timeout: DefaultTimeout,
		pending: make(map[uint32]chan *Msg),
		links:   make(map[uint16]*link),
		accept:  make(chan *link, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.eventloop()
	return h
}

// Close interrupts the shim and gives it the request timeout to exit.
// A shim still running after that is closed. Close returns once the
// event loop has exited and the shim has been reaped.
func (h *Host) Close() error {
	if err := h.proc.Signal(os.Interrupt); err != nil {
		h.log.WithError(err).Debug("shim: failed to interrupt")
	}
	t := time.NewTimer(h.timeout)
	defer t.Stop()
	select {
	case <-h.done:
	case <-t.C:
	}

	err := h.proc.Close()
	<-h.done
	if werr := h.proc.Wait(); werr != nil {
		h.log.WithError(werr).Debug("shim: exit status")
	}
	return err
}

// Err returns the reason the event loop exited, or nil if it is running.
func (h *Host) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Host) eventloop() {
	r := bufio.NewReader(h.proc)
	for {
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if m, derr := DecodeMsg(line); derr != nil {
				h.log.WithError(derr).Warn("shim: dropping malformed line")
			} else {
				h.dispatch(m)
			}
		}
		if err != nil {
			h.fail(err)
			return
		}
	}
}

func (h *Host) dispatch(m *Msg) {
	if !m.isEvent() {
		h.mu.Lock()
		ch := h.pending[m.Seq]
		delete(h.pending, m.Seq)
		h.mu.Unlock()
		if ch == nil {
			h.log.WithField("seq", m.Seq).Warn("shim: response to no request")
			return
		}
		ch <- m
		return
	}

	l := h.log.WithFields(log.Fields{"event": m.Op, "conn": m.Conn})
	switch m.Op {
	case EvConnect:
		hw, err := net.ParseMAC(m.Addr)
		if err != nil {
			l.WithError(err).Error("shim: failed to parse connected addr")
			return
		}
		lk := newLink(h, m.Conn, gatt.BDAddr{HardwareAddr: hw}, m.MTU)
		h.mu.Lock()
		h.links[m.Conn] = lk
		adving := h.adving
		if adving {
			h.adving = false
			select {
			case h.accept <- lk:
			default:
				adving = false
			}
		}
		h.mu.Unlock()
		if !adving {
			l.Warn("shim: connection while not advertising")
			go lk.Close()
			return
		}
		l.Debug("shim: connected")

	case EvWrite:
		if lk := h.link(m.Conn); lk != nil {
			lk.push(gatt.WriteEvent{Handle: m.Handle, Data: m.Data})
		} else {
			l.Warn("shim: write on unknown connection")
		}

	case EvDisconnect:
		if lk := h.link(m.Conn); lk != nil {
			h.unlink(lk)
			lk.down(gatt.DisconnectReason(m.Reason), nil)
			l.WithField("reason", gatt.DisconnectReason(m.Reason).String()).Debug("shim: disconnected")
		}

	case EvMTU:
		if lk := h.link(m.Conn); lk != nil {
			lk.setMTU(m.MTU)
		}

	default:
		l.Debug("shim: ignoring event")
	}
}

// fail ends every request and link once the shim is gone.
func (h *Host) fail(err error) {
	h.mu.Lock()
	h.err = errors.Wrap(ErrClosed, err.Error())
	links := h.links
	h.links = make(map[uint16]*link)
	h.pending = make(map[uint32]chan *Msg)
	close(h.done)
	h.mu.Unlock()

	h.log.WithError(err).Info("shim: event loop exited")
	for _, lk := range links {
		lk.down(gatt.ReasonLocalHost, h.err)
	}
}

func (h *Host) link(conn uint16) *link {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.links[conn]
}

func (h *Host) unlink(lk *link) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.links[lk.handle] == lk {
		delete(h.links, lk.handle)
	}
}

func (h *Host) send(m *Msg) error {
	b, err := EncodeMsg(m)
	if err != nil {
		return err
	}
	h.sendmu.Lock()
	defer h.sendmu.Unlock()
	_, err = h.proc.Write(b)
	return errors.Wrap(err, "write to shim")
}

// request sends m and waits for its response.
func (h *Host) request(m *Msg) (*Msg, error) {
	h.mu.Lock()
	if h.err != nil {
		h.mu.Unlock()
		return nil, h.err
	}
	h.seq++
	if h.seq == 0 {
		h.seq++
	}
	m.Seq = h.seq
	ch := make(chan *Msg, 1)
	h.pending[m.Seq] = ch
	h.mu.Unlock()

	forget := func() {
		h.mu.Lock()
		delete(h.pending, m.Seq)
		h.mu.Unlock()
	}

	if err := h.send(m); err != nil {
		forget()
		return nil, err
	}

	t := time.NewTimer(h.timeout)
	defer t.Stop()
	select {
	case rsp := <-ch:
		return rsp, statusError(m.Op, rsp.Status)
	case <-h.done:
		return nil, h.Err()
	case <-t.C:
		forget()
		return nil, errors.Wrapf(ErrTimeout, "%s seq %d", m.Op, m.Seq)
	}
}

// AddService declares a primary service.
func (h *Host) AddService(u gatt.UUID) (uint16, error) {
	rsp, err := h.request(&Msg{Op: OpAddService, UUID: u.String()})
	if err != nil {
		return 0, err
	}
	return rsp.Handle, nil
}

// AllocateAttribute declares one characteristic.
func (h *Host) AllocateAttribute(a gatt.Allocation) (gatt.CharacteristicHandles, error) {
	rsp, err := h.request(&Msg{
		Op:     OpAddChr,
		Svc:    a.Service,
		UUID:   a.UUID.String(),
		Props:  uint8(a.Props),
		Perm:   uint8(a.Perm),
		MaxLen: a.MaxLen,
		Data:   a.Initial,
	})
	if err != nil {
		return gatt.CharacteristicHandles{}, err
	}
	return gatt.CharacteristicHandles{ValueHandle: rsp.Handle, CCCDHandle: rsp.CCCD}, nil
}

// ReadAttribute reads the stored value of n.
func (h *Host) ReadAttribute(n uint16, buf []byte) (int, error) {
	rsp, err := h.request(&Msg{Op: OpRead, Handle: n})
	if err != nil {
		return 0, err
	}
	copy(buf, rsp.Data)
	return len(rsp.Data), nil
}

// WriteAttribute replaces the stored value of n.
func (h *Host) WriteAttribute(n uint16, b []byte) error {
	_, err := h.request(&Msg{Op: OpWrite, Handle: n, Data: b})
	return err
}

// SendNotification hands a notification to the shim's transmit queue.
// It waits for the shim to accept or refuse it, never for the radio.
func (h *Host) SendNotification(l gatt.Link, n uint16, b []byte, indicate bool) error {
	lk, ok := l.(*link)
	if !ok || lk.h != h {
		return errors.Wrap(gatt.ErrNotConnected, "foreign link")
	}
	if lk.isDown() {
		return gatt.ErrNotConnected
	}
	_, err := h.request(&Msg{
		Op:       OpNotify,
		Conn:     lk.handle,
		Handle:   n,
		Data:     b,
		Indicate: indicate,
	})
	return err
}

// Advertise starts advertising and waits for the shim to report a
// connection.
func (h *Host) Advertise(ctx context.Context, adv, scan []byte) (gatt.Link, error) {
	if err := gatt.ValidateAdvData(adv); err != nil {
		return nil, err
	}
	if err := gatt.ValidateAdvData(scan); err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.adving = true
	h.mu.Unlock()
	defer h.stopAdvertising()

	if _, err := h.request(&Msg{
		Op:      OpAdvStart,
		Adv:     adv,
		Scan:    scan,
		ItvlMin: h.adv.IntervalMin,
		ItvlMax: h.adv.IntervalMax,
		ChanMap: h.adv.ChannelMap,
	}); err != nil {
		return nil, err
	}

	select {
	case lk := <-h.accept:
		return lk, nil
	case <-h.done:
		return nil, h.Err()
	case <-ctx.Done():
		if _, err := h.request(&Msg{Op: OpAdvStop}); err != nil {
			h.log.WithError(err).Debug("shim: failed to stop advertising")
		}
		return nil, ctx.Err()
	}
}

// stopAdvertising refuses further connections. A link accepted after
// Advertise gave up is closed.
func (h *Host) stopAdvertising() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.adving = false
	select {
	case lk := <-h.accept:
		h.log.WithField("conn", lk.handle).Debug("shim: closing late connection")
		go lk.Close()
	default:
	}
}

// NextWriteEvent returns the next write the peer made on l.
func (h *Host) NextWriteEvent(ctx context.Context, l gatt.Link) (gatt.WriteEvent, error) {
	lk, ok := l.(*link)
	if !ok || lk.h != h {
		return gatt.WriteEvent{}, errors.Wrap(gatt.ErrNotConnected, "foreign link")
	}
	return lk.next(ctx)
}
