// Package service implements standard GATT services on top of gatt.Server.
package service

import (
	"github.com/pkg/errors"

	gatt "github.com/XC-/gattserver"
)

// Assigned numbers.
var (
	BatteryServiceUUID = gatt.UUID16(0x180F)
	BatteryLevelUUID   = gatt.UUID16(0x2A19)
)

// Events emitted by Battery.
type (
	BatteryLevelNotificationsEnabled  struct{}
	BatteryLevelNotificationsDisabled struct{}
)

// Battery is the Battery Service: one readable, notifiable level byte.
type Battery struct {
	initial uint8
	level   gatt.CharacteristicHandles
}

// NewBattery returns a Battery service whose level starts at initial.
func NewBattery(initial uint8) *Battery {
	return &Battery{initial: initial}
}

func (b *Battery) UUID() gatt.UUID { return BatteryServiceUUID }

func (b *Battery) Register(svc uint16, reg gatt.RegisterFunc) error {
	var err error
	b.level, err = reg(gatt.Characteristic{
		UUID:   BatteryLevelUUID,
		Props:  gatt.PropRead | gatt.PropNotify,
		MaxLen: 1,
	}, []byte{b.initial})
	return err
}

func (b *Battery) OnWrite(w gatt.Write) gatt.Event {
	if !w.CCCD || w.ValueHandle != b.level.ValueHandle {
		return nil
	}
	if w.Sub.Notify {
		return BatteryLevelNotificationsEnabled{}
	}
	return BatteryLevelNotificationsDisabled{}
}

// LevelHandles returns the handles of the battery level characteristic.
func (b *Battery) LevelHandles() gatt.CharacteristicHandles { return b.level }

// Level reads the stored battery level.
func (b *Battery) Level(p *gatt.Peripheral) (uint8, error) {
	var buf [1]byte
	n, err := p.Get(b.level.ValueHandle, buf[:])
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, errors.Errorf("battery level is %d bytes", n)
	}
	return buf[0], nil
}

// SetLevel stores a new battery level without notifying.
func (b *Battery) SetLevel(p *gatt.Peripheral, v uint8) error {
	return p.Set(b.level.ValueHandle, []byte{v})
}

// NotifyLevel sends v to the peer on c. The stored level is unchanged.
func (b *Battery) NotifyLevel(p *gatt.Peripheral, c *gatt.Conn, v uint8) error {
	return p.Notify(c, b.level.ValueHandle, []byte{v})
}
