package service

import (
	"encoding/binary"

	gatt "github.com/XC-/gattserver"
)

// Assigned numbers.
var (
	GenericAccessUUID = gatt.AttrGAPUUID
	DeviceNameUUID    = gatt.AttrDeviceNameUUID
	AppearanceUUID    = gatt.AttrAppearanceUUID
)

// AppearanceGenericTag is the appearance value of a generic tag.
const AppearanceGenericTag = 0x0200

// GAP is the Generic Access service: the device name and appearance,
// both read-only. It never emits events.
type GAP struct {
	name       string
	appearance uint16

	nameHandles       gatt.CharacteristicHandles
	appearanceHandles gatt.CharacteristicHandles
}

func NewGAP(name string, appearance uint16) *GAP {
	return &GAP{name: name, appearance: appearance}
}

func (g *GAP) UUID() gatt.UUID { return GenericAccessUUID }

func (g *GAP) Register(svc uint16, reg gatt.RegisterFunc) error {
	var err error
	g.nameHandles, err = reg(gatt.Characteristic{
		UUID:   DeviceNameUUID,
		Props:  gatt.PropRead,
		MaxLen: 248,
	}, []byte(g.name))
	if err != nil {
		return err
	}

	var a [2]byte
	binary.LittleEndian.PutUint16(a[:], g.appearance)
	g.appearanceHandles, err = reg(gatt.Characteristic{
		UUID:   AppearanceUUID,
		Props:  gatt.PropRead,
		MaxLen: 2,
	}, a[:])
	return err
}

func (g *GAP) OnWrite(w gatt.Write) gatt.Event { return nil }

func (g *GAP) NameHandles() gatt.CharacteristicHandles { return g.nameHandles }

func (g *GAP) AppearanceHandles() gatt.CharacteristicHandles { return g.appearanceHandles }
