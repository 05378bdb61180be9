package gatt

import (
	"fmt"
	"sync"
)

// A ConnState is the state of a session on a Conn.
type ConnState int

const (
	ConnIdle ConnState = iota
	ConnActive
	ConnClosed
)

func (s ConnState) String() string {
	str := []string{
		"Idle",
		"Active",
		"Closed",
	}
	if int(s) < len(str) {
		return str[s]
	}
	return "Unknown"
}

// A Conn is one accepted connection. It carries the peer's CCCD
// subscriptions, which are per connection and die with it.
type Conn struct {
	link Link

	mu    sync.RWMutex
	state ConnState
	subs  map[uint16]Subscription // keyed by value handle
}

// NewConn wraps a link returned by a Host.
func NewConn(l Link) *Conn {
	return &Conn{link: l, subs: make(map[uint16]Subscription)}
}

// Link returns the underlying host link.
func (c *Conn) Link() Link { return c.link }

// Handle returns the connection handle.
func (c *Conn) Handle() uint16 { return c.link.Handle() }

// RemoteAddr returns the address of the connected central.
func (c *Conn) RemoteAddr() BDAddr { return c.link.RemoteAddr() }

// MTU returns the current connection mtu.
func (c *Conn) MTU() int { return c.link.MTU() }

// Close disconnects the connection. The session running on c
// returns once the host reports the disconnection.
func (c *Conn) Close() error { return c.link.Close() }

func (c *Conn) String() string {
	return fmt.Sprintf("conn %d (%s)", c.Handle(), c.RemoteAddr())
}

// State reports the session state.
func (c *Conn) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscription returns the peer's CCCD state for a value handle.
func (c *Conn) Subscription(valueHandle uint16) Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[valueHandle]
}

// activate moves an idle conn to Active and reports whether it did.
func (c *Conn) activate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ConnIdle {
		return false
	}
	c.state = ConnActive
	return true
}

func (c *Conn) subscribe(valueHandle uint16, s Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !s.Enabled() {
		delete(c.subs, valueHandle)
		return
	}
	c.subs[valueHandle] = s
}

// close moves c to Closed and drops its subscriptions.
func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ConnClosed
	c.subs = make(map[uint16]Subscription)
}
