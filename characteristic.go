package gatt

import (
	"strings"

	"github.com/pkg/errors"
)

// Do not re-order the bit flags below;
// they are organized to match the BLE spec.

// A Property is the set of operations a characteristic supports.
type Property uint8

// Characteristic property flags.
const (
	PropBroadcast Property = 1 << iota // the characteristic value may be broadcast
	PropRead                           // the characteristic may be read
	PropWriteNR                        // the characteristic may be written to, with no reply
	PropWrite                          // the characteristic may be written to, with a reply
	PropNotify                         // the characteristic supports notifications
	PropIndicate                       // the characteristic supports indications
)

var propNames = []struct {
	p    Property
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteNR, "writenr"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
}

func (p Property) String() string {
	var ss []string
	for _, n := range propNames {
		if p&n.p != 0 {
			ss = append(ss, n.name)
		}
	}
	if len(ss) == 0 {
		return "none"
	}
	return strings.Join(ss, "|")
}

// Readable reports whether the read property is set.
func (p Property) Readable() bool { return p&PropRead != 0 }

// Writable reports whether either write property is set.
func (p Property) Writable() bool { return p&(PropWrite|PropWriteNR) != 0 }

// Notifiable reports whether the notify property is set.
func (p Property) Notifiable() bool { return p&PropNotify != 0 }

// Indicatable reports whether the indicate property is set.
func (p Property) Indicatable() bool { return p&PropIndicate != 0 }

// A Perm is the attribute access encoding handed to the host when
// an attribute is allocated.
type Perm uint8

const (
	PermRead     Perm = 1 << iota // peers may read the value
	PermWrite                     // peers may write the value
	PermNotify                    // the value can be notified; needs a CCCD
	PermIndicate                  // the value can be indicated; needs a CCCD
)

// NeedsCCCD reports whether an attribute with these permissions carries
// a Client Characteristic Configuration Descriptor.
func (p Perm) NeedsCCCD() bool { return p&(PermNotify|PermIndicate) != 0 }

// A Characteristic describes one characteristic at registration time.
// It is never modified once declared.
type Characteristic struct {
	UUID   UUID
	Props  Property
	MaxLen int // maximum value length, 1..MaxAttrLen
}

// Validate checks that c can be allocated.
func (c Characteristic) Validate() error {
	if !c.UUID.Valid() {
		return ErrInvalidUUID
	}
	if c.MaxLen < 1 || c.MaxLen > MaxAttrLen {
		return errors.Wrapf(ErrInvalidProperties, "max length %d", c.MaxLen)
	}
	if c.Props&(PropRead|PropWriteNR|PropWrite|PropNotify|PropIndicate) == 0 {
		return errors.Wrap(ErrInvalidProperties, "no access properties")
	}
	return nil
}

// Perm translates the property set into the host permission encoding.
func (c Characteristic) Perm() Perm {
	var p Perm
	if c.Props.Readable() {
		p |= PermRead
	}
	if c.Props.Writable() {
		p |= PermWrite
	}
	if c.Props.Notifiable() {
		p |= PermNotify
	}
	if c.Props.Indicatable() {
		p |= PermIndicate
	}
	return p
}

// An Allocation asks the host for the attributes of one characteristic.
type Allocation struct {
	Service uint16 // handle of the owning service declaration
	UUID    UUID
	Props   Property
	Perm    Perm
	MaxLen  int
	Initial []byte
}
