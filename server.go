package gatt

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// An Event is what a Server makes of an attribute write. Each Server
// defines its own closed set of event types; nil means no event.
type Event interface{}

// A Write is an attribute write that has been resolved to one of
// the server's characteristics.
type Write struct {
	ValueHandle uint16 // value handle of the characteristic written
	UUID        UUID   // characteristic UUID

	// CCCD is set when the peer wrote the characteristic's Client
	// Characteristic Configuration Descriptor; Sub holds the decoded value.
	CCCD bool
	Sub  Subscription

	// Data is the written value. It is only set for value writes.
	Data []byte
}

// RegisterFunc allocates one characteristic with the given initial value.
// It is handed to Server.Register and may only be called from there.
type RegisterFunc func(c Characteristic, initial []byte) (CharacteristicHandles, error)

// A Server is an application-defined GATT service.
//
// Register declares the characteristics, in order, keeping the
// returned handles. OnWrite turns a resolved write into an Event;
// it must not block and must not modify the server.
type Server interface {
	UUID() UUID
	Register(service uint16, reg RegisterFunc) error
	OnWrite(w Write) Event
}

// A Peripheral is a Server bound to a Host: the handles are resolved
// and the value accessors, translator and session loops are keyed by them.
// A Peripheral is shared by all connections.
type Peripheral struct {
	host    Host
	srv     Server
	service uint16
	idx     *handleIndex

	log            log.FieldLogger
	maxConnections int
	advBackoff     time.Duration
	connect        func(c *Conn)
	disconnect     func(c *Conn, reason DisconnectReason)
}

// Register registers s into the attribute table of h.
//
// Registration is all-or-nothing: if any characteristic cannot be
// allocated, the first failure is returned as a *RegisterError and no
// Peripheral is returned. Handles the host allocated before the failure
// are not released. A server must be registered only once.
func Register(h Host, s Server, opts ...Option) (*Peripheral, error) {
	p := &Peripheral{
		host:           h,
		srv:            s,
		idx:            newHandleIndex(),
		log:            log.StandardLogger(),
		maxConnections: 1,
		advBackoff:     time.Second,
	}
	p.Option(opts...)

	if !s.UUID().Valid() {
		return nil, &RegisterError{UUID: s.UUID(), Err: ErrInvalidUUID}
	}
	svc, err := h.AddService(s.UUID())
	if err != nil {
		return nil, &RegisterError{UUID: s.UUID(), Err: err}
	}
	p.service = svc

	var failed error
	reg := func(c Characteristic, initial []byte) (CharacteristicHandles, error) {
		if failed != nil {
			return CharacteristicHandles{}, failed
		}
		hh, err := p.allocate(c, initial)
		if err != nil {
			failed = &RegisterError{UUID: c.UUID, Err: err}
			return CharacteristicHandles{}, failed
		}
		return hh, nil
	}

	err = s.Register(svc, reg)
	if failed != nil {
		return nil, failed
	}
	if err != nil {
		if IsRegister(err) {
			return nil, err
		}
		return nil, &RegisterError{UUID: s.UUID(), Err: err}
	}

	p.log.WithFields(log.Fields{
		"uuid":            s.UUID().String(),
		"service":         svc,
		"characteristics": len(p.idx.entries),
	}).Debug("registered gatt server")
	return p, nil
}

func (p *Peripheral) allocate(c Characteristic, initial []byte) (CharacteristicHandles, error) {
	if err := c.Validate(); err != nil {
		return CharacteristicHandles{}, err
	}
	if len(initial) > c.MaxLen {
		return CharacteristicHandles{}, errors.Wrapf(ErrValueTooLong,
			"initial value is %d bytes, max %d", len(initial), c.MaxLen)
	}
	hh, err := p.host.AllocateAttribute(Allocation{
		Service: p.service,
		UUID:    c.UUID,
		Props:   c.Props,
		Perm:    c.Perm(),
		MaxLen:  c.MaxLen,
		Initial: initial,
	})
	if err != nil {
		return CharacteristicHandles{}, err
	}
	if err := p.idx.add(c, hh); err != nil {
		return CharacteristicHandles{}, err
	}
	p.log.WithFields(log.Fields{
		"uuid":  c.UUID.String(),
		"props": c.Props.String(),
		"value": hh.ValueHandle,
		"cccd":  hh.CCCDHandle,
	}).Debug("allocated characteristic")
	return hh, nil
}

// Server returns the registered server.
func (p *Peripheral) Server() Server { return p.srv }

// ServiceHandle returns the handle of the service declaration.
func (p *Peripheral) ServiceHandle() uint16 { return p.service }

// Handles returns the handles of every characteristic, in declaration order.
func (p *Peripheral) Handles() []CharacteristicHandles {
	hh := make([]CharacteristicHandles, len(p.idx.entries))
	for i, e := range p.idx.entries {
		hh[i] = e.handles
	}
	return hh
}

// Characteristic returns the schema registered at value handle h.
func (p *Peripheral) Characteristic(h uint16) (Characteristic, bool) {
	e, ok := p.idx.value(h)
	return e.char, ok
}

// An Option configures a Peripheral.
// It returns an option to restore the last arg's previous value.
type Option func(*Peripheral) Option

// Option sets the options specified.
// It returns an option to restore the last arg's previous value.
// Options must not be changed while serving; they are best used with Register.
func (p *Peripheral) Option(opts ...Option) (prev Option) {
	for _, opt := range opts {
		prev = opt(p)
	}
	return prev
}

// Logger sets the logger used by the peripheral and its sessions.
func Logger(l log.FieldLogger) Option {
	return func(p *Peripheral) Option {
		prev := p.log
		p.log = l
		return Logger(prev)
	}
}

// MaxConnections sets the maximum number of concurrent connections
// AdvertiseAndServe will accept. Not all hosts support more than one.
func MaxConnections(n int) Option {
	return func(p *Peripheral) Option {
		prev := p.maxConnections
		if n < 1 {
			n = 1
		}
		p.maxConnections = n
		return MaxConnections(prev)
	}
}

// AdvertiseBackoff sets how long AdvertiseAndServe waits before
// advertising again after an advertising failure.
func AdvertiseBackoff(d time.Duration) Option {
	return func(p *Peripheral) Option {
		prev := p.advBackoff
		p.advBackoff = d
		return AdvertiseBackoff(prev)
	}
}

// Connected sets a function to be called when a central connects.
func Connected(f func(c *Conn)) Option {
	return func(p *Peripheral) Option {
		prev := p.connect
		p.connect = f
		return Connected(prev)
	}
}

// Disconnected sets a function to be called when a session ends.
// The reason is ReasonLocalHost if the session failed.
func Disconnected(f func(c *Conn, reason DisconnectReason)) Option {
	return func(p *Peripheral) Option {
		prev := p.disconnect
		p.disconnect = f
		return Disconnected(prev)
	}
}
