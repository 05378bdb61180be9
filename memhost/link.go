package memhost

import (
	"sync"

	"github.com/pkg/errors"

	gatt "github.com/XC-/gattserver"
)

// A Notification is a Handle Value Notification or Indication as the
// central received it.
type Notification struct {
	Handle     uint16
	Value      []byte
	Indication bool
}

// link is one simulated connection. The host keeps its own copy of the
// peer's CCCD values, as a real stack does.
type link struct {
	h        *Host
	handle   uint16
	addr     gatt.BDAddr
	mtu      int
	accepted chan struct{}

	rx   chan gatt.WriteEvent
	tx   chan Notification
	done chan struct{}

	mu     sync.Mutex
	down   bool
	reason gatt.DisconnectReason
	cccd   map[uint16]gatt.Subscription // keyed by value handle
}

func newLink(h *Host, addr gatt.BDAddr) *link {
	return &link{
		h:        h,
		addr:     addr,
		mtu:      h.mtu,
		accepted: make(chan struct{}),
		rx:       make(chan gatt.WriteEvent, h.rxLen),
		tx:       make(chan Notification, h.txLen),
		done:     make(chan struct{}),
		cccd:     make(map[uint16]gatt.Subscription),
	}
}

func (l *link) Handle() uint16          { return l.handle }
func (l *link) RemoteAddr() gatt.BDAddr { return l.addr }
func (l *link) MTU() int                { return l.mtu }

// Close disconnects the link from the peripheral side.
func (l *link) Close() error {
	l.disconnect(gatt.ReasonLocalHost)
	return nil
}

// disconnect takes the link down once; later calls are no-ops.
func (l *link) disconnect(r gatt.DisconnectReason) {
	l.mu.Lock()
	if l.down {
		l.mu.Unlock()
		return
	}
	l.down = true
	l.reason = r
	l.cccd = make(map[uint16]gatt.Subscription)
	close(l.done)
	l.mu.Unlock()

	l.h.unlink(l)
	l.h.log.WithField("conn", l.handle).WithField("reason", r.String()).Debug("memhost: disconnected")
}

// Reason returns the disconnect reason; it is only meaningful once
// the link is down.
func (l *link) Reason() gatt.DisconnectReason {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

func (l *link) isDown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.down
}

func (l *link) subscription(vh uint16) gatt.Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cccd[vh]
}

func (l *link) setSubscription(vh uint16, s gatt.Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return
	}
	if !s.Enabled() {
		delete(l.cccd, vh)
		return
	}
	l.cccd[vh] = s
}

// send queues n for the central without blocking.
func (l *link) send(n Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.down {
		return gatt.ErrNotConnected
	}
	s := l.cccd[n.Handle]
	if (n.Indication && !s.Indicate) || (!n.Indication && !s.Notify) {
		return errors.Wrapf(gatt.ErrNotSubscribed, "0x%04X", n.Handle)
	}
	select {
	case l.tx <- n:
		return nil
	default:
		return errors.Wrapf(gatt.ErrQueueFull, "%d queued", cap(l.tx))
	}
}
