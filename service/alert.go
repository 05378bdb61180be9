package service

import (
	"fmt"

	gatt "github.com/XC-/gattserver"
)

// Assigned numbers.
var (
	ImmediateAlertServiceUUID = gatt.UUID16(0x1802)
	AlertLevelUUID            = gatt.UUID16(0x2A06)
)

// An AlertLevel is the value of the Alert Level characteristic.
type AlertLevel uint8

const (
	AlertNone AlertLevel = iota
	AlertMild
	AlertHigh
)

func (l AlertLevel) String() string {
	switch l {
	case AlertNone:
		return "none"
	case AlertMild:
		return "mild"
	case AlertHigh:
		return "high"
	}
	return fmt.Sprintf("AlertLevel(%d)", uint8(l))
}

// AlertLevelWritten is emitted when the peer writes a valid alert level.
type AlertLevelWritten struct {
	Level AlertLevel
}

// ImmediateAlert is the Immediate Alert service: a single write-only
// alert level. Writes of unknown levels produce no event.
type ImmediateAlert struct {
	level gatt.CharacteristicHandles
}

func NewImmediateAlert() *ImmediateAlert { return &ImmediateAlert{} }

func (a *ImmediateAlert) UUID() gatt.UUID { return ImmediateAlertServiceUUID }

func (a *ImmediateAlert) Register(svc uint16, reg gatt.RegisterFunc) error {
	var err error
	a.level, err = reg(gatt.Characteristic{
		UUID:   AlertLevelUUID,
		Props:  gatt.PropWriteNR,
		MaxLen: 1,
	}, []byte{byte(AlertNone)})
	return err
}

func (a *ImmediateAlert) OnWrite(w gatt.Write) gatt.Event {
	if w.CCCD || w.ValueHandle != a.level.ValueHandle || len(w.Data) != 1 {
		return nil
	}
	l := AlertLevel(w.Data[0])
	if l > AlertHigh {
		return nil
	}
	return AlertLevelWritten{Level: l}
}

// LevelHandles returns the handles of the alert level characteristic.
func (a *ImmediateAlert) LevelHandles() gatt.CharacteristicHandles { return a.level }
