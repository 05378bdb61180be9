package gatt

import (
	log "github.com/sirupsen/logrus"
)

// A Subscription is a decoded Client Characteristic Configuration value.
type Subscription struct {
	Notify   bool // bit 0
	Indicate bool // bit 1
}

// DecodeCCCD decodes a CCCD write. An empty write disables both.
func DecodeCCCD(data []byte) Subscription {
	if len(data) == 0 {
		return Subscription{}
	}
	return Subscription{
		Notify:   data[0]&cccNotify != 0,
		Indicate: data[0]&cccIndicate != 0,
	}
}

// Enabled reports whether notifications or indications are on.
func (s Subscription) Enabled() bool { return s.Notify || s.Indicate }

// Bytes encodes s as a CCCD value.
func (s Subscription) Bytes() []byte {
	var v byte
	if s.Notify {
		v |= cccNotify
	}
	if s.Indicate {
		v |= cccIndicate
	}
	return []byte{v, 0}
}

// Translate classifies a write delivered by the host into the server's
// Event. It reports false when the write produces no event: unknown
// handles (they may belong to attributes registered by someone else),
// writes to characteristics without a write property, and values longer
// than the characteristic's maximum length, which are dropped.
//
// Translate only reads the handle index; it never stores values.
func (p *Peripheral) Translate(h uint16, data []byte) (Event, bool) {
	if e, ok := p.idx.cccd(h); ok {
		return p.emit(Write{
			ValueHandle: e.handles.ValueHandle,
			UUID:        e.char.UUID,
			CCCD:        true,
			Sub:         e.subscription(data),
		})
	}

	e, ok := p.idx.value(h)
	if !ok {
		return nil, false
	}
	fields := log.Fields{"handle": h, "uuid": e.char.UUID.String()}
	if !e.char.Props.Writable() {
		p.log.WithFields(fields).Debug("ignoring write to read-only characteristic")
		return nil, false
	}
	if len(data) > e.char.MaxLen {
		fields["len"] = len(data)
		fields["max"] = e.char.MaxLen
		p.log.WithFields(fields).Warn("rejecting oversized write")
		return nil, false
	}
	return p.emit(Write{
		ValueHandle: h,
		UUID:        e.char.UUID,
		Data:        data,
	})
}

func (p *Peripheral) emit(w Write) (Event, bool) {
	ev := p.srv.OnWrite(w)
	return ev, ev != nil
}
