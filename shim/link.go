package shim

import (
	"context"
	"sync"

	gatt "github.com/XC-/gattserver"
)

// link is one connection reported by the shim. Writes are queued
// without bound so the event loop never blocks on a slow session.
type link struct {
	h      *Host
	handle uint16
	addr   gatt.BDAddr

	mu     sync.Mutex
	mtu    int
	q      []gatt.WriteEvent
	closed bool
	reason gatt.DisconnectReason
	err    error

	wake chan struct{}
	done chan struct{}
}

func newLink(h *Host, handle uint16, addr gatt.BDAddr, mtu int) *link {
	if mtu < gatt.DefaultMTU {
		mtu = gatt.DefaultMTU
	}
	return &link{
		h:      h,
		handle: handle,
		addr:   addr,
		mtu:    mtu,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (l *link) Handle() uint16 { return l.handle }

func (l *link) RemoteAddr() gatt.BDAddr { return l.addr }

func (l *link) MTU() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mtu
}

func (l *link) setMTU(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n >= gatt.DefaultMTU {
		l.mtu = n
	}
}

// Close asks the shim to disconnect and takes the link down.
func (l *link) Close() error {
	if l.isDown() {
		return nil
	}
	_, err := l.h.request(&Msg{
		Op:     OpDisconnect,
		Conn:   l.handle,
		Reason: uint8(gatt.ReasonRemoteUser),
	})
	l.h.unlink(l)
	l.down(gatt.ReasonLocalHost, nil)
	return err
}

func (l *link) isDown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *link) down(r gatt.DisconnectReason, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.reason = r
	l.err = err
	close(l.done)
}

func (l *link) push(w gatt.WriteEvent) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.q = append(l.q, w)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest write. Queued writes are still returned after
// the link went down.
func (l *link) next(ctx context.Context) (gatt.WriteEvent, error) {
	for {
		l.mu.Lock()
		if len(l.q) > 0 {
			w := l.q[0]
			l.q = l.q[1:]
			l.mu.Unlock()
			return w, nil
		}
		if l.closed {
			err := l.err
			r := l.reason
			l.mu.Unlock()
			if err != nil {
				return gatt.WriteEvent{}, err
			}
			return gatt.WriteEvent{}, &gatt.DisconnectError{Reason: r}
		}
		l.mu.Unlock()

		select {
		case <-l.wake:
		case <-l.done:
		case <-ctx.Done():
			return gatt.WriteEvent{}, ctx.Err()
		}
	}
}
