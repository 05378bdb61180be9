package gatt

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// MaxEIRPacketLength is the maximum allowed AdvertisingPacket
// and ScanResponsePacket length.
const MaxEIRPacketLength = 31

// ErrEIRPacketTooLong is the error returned when an AdvertisingPacket
// or ScanResponsePacket is too long.
var ErrEIRPacketTooLong = errors.New("max packet length is 31")

// ErrInvalidAdvData is returned for payloads that are not a sequence
// of [length, type, data...] records.
var ErrInvalidAdvData = errors.New("invalid advertise data")

// advertising data field types
const (
	typeFlags            = 0x01 // Flags
	typeSomeUUID16       = 0x02 // Incomplete List of 16-bit Service Class UUIDs
	typeAllUUID16        = 0x03 // Complete List of 16-bit Service Class UUIDs
	typeSomeUUID32       = 0x04 // Incomplete List of 32-bit Service Class UUIDs
	typeAllUUID32        = 0x05 // Complete List of 32-bit Service Class UUIDs
	typeSomeUUID128      = 0x06 // Incomplete List of 128-bit Service Class UUIDs
	typeAllUUID128       = 0x07 // Complete List of 128-bit Service Class UUIDs
	typeShortName        = 0x08 // Shortened Local Name
	typeCompleteName     = 0x09 // Complete Local Name
	typeTxPower          = 0x0A // Tx Power Level
	typeServiceSol16     = 0x14 // List of 16-bit Service Solicitation UUIDs
	typeServiceSol128    = 0x15 // List of 128-bit Service Solicitation UUIDs
	typeServiceData16    = 0x16 // Service Data - 16-bit UUID
	typeAppearance       = 0x19 // Appearance
	typeServiceSol32     = 0x1F // List of 32-bit Service Solicitation UUIDs
	typeServiceData32    = 0x20 // Service Data - 32-bit UUID
	typeServiceData128   = 0x21 // Service Data - 128-bit UUID
	typeManufacturerData = 0xFF // Manufacturer Specific Data
)

// flag bits
const (
	FlagLimitedDiscoverable = 1 << iota // LE Limited Discoverable Mode
	FlagGeneralDiscoverable             // LE General Discoverable Mode
	FlagLEOnly                          // BR/EDR Not Supported.
	FlagBothController                  // Simultaneous LE and BR/EDR to Same Device Capable (Controller).
	FlagBothHost                        // Simultaneous LE and BR/EDR to Same Device Capable (Host).
)

// An Advertisement is the decoded form of an advertising or scan
// response payload.
type Advertisement struct {
	Flags            byte
	LocalName        string
	ManufacturerData []byte
	ServiceData      []byte
	Services         []UUID
	SolicitedService []UUID
	TxPowerLevel     int
	Appearance       uint16
}

// Unmarshal decodes the AD records in b into a.
// Unknown record types are skipped.
func (a *Advertisement) Unmarshal(b []byte) error {
	return walkAdvData(b, func(t byte, d []byte) {
		switch t {
		case typeFlags:
			if len(d) > 0 {
				a.Flags = d[0]
			}
		case typeSomeUUID16, typeAllUUID16:
			a.Services = uuidList(a.Services, d, 2)
		case typeSomeUUID32, typeAllUUID32:
			a.Services = uuidList(a.Services, d, 4)
		case typeSomeUUID128, typeAllUUID128:
			a.Services = uuidList(a.Services, d, 16)
		case typeShortName, typeCompleteName:
			a.LocalName = string(d)
		case typeTxPower:
			if len(d) > 0 {
				a.TxPowerLevel = int(int8(d[0]))
			}
		case typeAppearance:
			if len(d) == 2 {
				a.Appearance = binary.LittleEndian.Uint16(d)
			}
		case typeServiceSol16:
			a.SolicitedService = uuidList(a.SolicitedService, d, 2)
		case typeServiceSol32:
			a.SolicitedService = uuidList(a.SolicitedService, d, 4)
		case typeServiceSol128:
			a.SolicitedService = uuidList(a.SolicitedService, d, 16)
		case typeServiceData16, typeServiceData32, typeServiceData128:
			a.ServiceData = append([]byte(nil), d...)
		case typeManufacturerData:
			a.ManufacturerData = append([]byte(nil), d...)
		}
	})
}

// ValidateAdvData checks that b fits in an advertising PDU and is a
// well-formed sequence of AD records. A nil payload is valid.
func ValidateAdvData(b []byte) error {
	if len(b) > MaxEIRPacketLength {
		return ErrEIRPacketTooLong
	}
	return walkAdvData(b, func(byte, []byte) {})
}

func walkAdvData(b []byte, f func(typ byte, data []byte)) error {
	for len(b) > 0 {
		l := int(b[0])
		if l == 0 {
			// Zero-length records pad the rest of the payload.
			return nil
		}
		if len(b) < 1+l {
			return errors.Wrapf(ErrInvalidAdvData, "record of length %d overruns payload", l)
		}
		f(b[1], b[2:1+l])
		b = b[1+l:]
	}
	return nil
}

func uuidList(u []UUID, d []byte, w int) []UUID {
	for len(d) >= w {
		u = append(u, UUID{append([]byte(nil), d[:w]...)})
		d = d[w:]
	}
	return u
}

// NameScanResponsePacket constructs a scan response packet with
// the given name, truncated as necessary.
func NameScanResponsePacket(name string) []byte {
	scan := new(AdvPacket)
	scan.AppendName(name)
	return scan.Bytes()
}

// ServiceAdvertisingPacket constructs an advertising packet that
// advertises as many of the provided service uuids as possible.
// It returns the advertising packet and the contained uuids.
func ServiceAdvertisingPacket(uu []UUID) ([]byte, []UUID) {
	fit := make([]UUID, 0, len(uu))
	adv := new(AdvPacket)
	adv.AppendFlags(FlagGeneralDiscoverable | FlagLEOnly)
	for _, u := range uu {
		if ok := adv.AppendUUIDFit(u); ok {
			fit = append(fit, u)
		}
	}
	return adv.Bytes(), fit
}

// An AdvPacket builds an advertising or scan response payload.
// The zero value is an empty packet.
type AdvPacket struct {
	data []byte
}

// Bytes returns the encoded payload.
func (p *AdvPacket) Bytes() []byte { return p.data }

// Len returns the encoded length.
func (p *AdvPacket) Len() int { return len(p.data) }

// AppendField appends a BLE advertising packet field.
// It refuses fields that would make the packet too long.
func (p *AdvPacket) AppendField(typ byte, data []byte) error {
	// A field consists of len, typ, data.
	// Len is 1 byte for typ plus len(data).
	if len(p.data)+2+len(data) > MaxEIRPacketLength {
		return ErrEIRPacketTooLong
	}
	p.data = append(p.data, byte(len(data)+1))
	p.data = append(p.data, typ)
	p.data = append(p.data, data...)
	return nil
}

// AppendFlags appends the Flags record.
func (p *AdvPacket) AppendFlags(f byte) error {
	return p.AppendField(typeFlags, []byte{f})
}

// AppendName appends the local name, shortened to whatever room is left.
func (p *AdvPacket) AppendName(name string) error {
	typ := byte(typeCompleteName)
	if max := MaxEIRPacketLength - len(p.data) - 2; len(name) > max {
		if max < 1 {
			return ErrEIRPacketTooLong
		}
		name = name[:max]
		typ = typeShortName
	}
	return p.AppendField(typ, []byte(name))
}

// AppendServices appends the complete list of service UUIDs of one width.
func (p *AdvPacket) AppendServices(uu []UUID) error {
	if len(uu) == 0 {
		return nil
	}
	var typ byte
	switch uu[0].Len() {
	case 2:
		typ = typeAllUUID16
	case 4:
		typ = typeAllUUID32
	case 16:
		typ = typeAllUUID128
	default:
		return ErrInvalidUUID
	}
	var d []byte
	for _, u := range uu {
		if u.Len() != uu[0].Len() {
			return errors.Wrap(ErrInvalidUUID, "mixed uuid widths")
		}
		d = append(d, u.b...)
	}
	return p.AppendField(typ, d)
}

// AppendManufacturerData appends manufacturer specific data for company id.
func (p *AdvPacket) AppendManufacturerData(id uint16, data []byte) error {
	d := append([]byte{uint8(id), uint8(id >> 8)}, data...)
	return p.AppendField(typeManufacturerData, d)
}

// AppendUUIDFit appends a BLE advertised service UUID
// packet field if it fits in the packet, and reports
// whether the UUID fit.
func (p *AdvPacket) AppendUUIDFit(u UUID) bool {
	// Err on the side of safety and assume that there might be
	// other services available: Use typeSomeUUID instead
	// of typeAllUUID.
	var typ byte
	switch u.Len() {
	case 2:
		typ = typeSomeUUID16
	case 4:
		typ = typeSomeUUID32
	case 16:
		typ = typeSomeUUID128
	default:
		return false
	}
	return p.AppendField(typ, u.b) == nil
}
