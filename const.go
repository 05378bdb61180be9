package gatt

import "fmt"

// This file includes constants from the BLE spec.

var (
	AttrGAPUUID  = UUID16(0x1800)
	AttrGATTUUID = UUID16(0x1801)

	AttrPrimaryServiceUUID   = UUID16(0x2800)
	AttrSecondaryServiceUUID = UUID16(0x2801)
	AttrIncludeUUID          = UUID16(0x2802)
	AttrCharacteristicUUID   = UUID16(0x2803)

	AttrClientCharacteristicConfigUUID = UUID16(0x2902)
	AttrServerCharacteristicConfigUUID = UUID16(0x2903)

	AttrDeviceNameUUID = UUID16(0x2A00)
	AttrAppearanceUUID = UUID16(0x2A01)
)

// Client Characteristic Configuration bits.
const (
	cccNotify   = 0x0001
	cccIndicate = 0x0002
)

// MaxAttrLen is the largest value an attribute may hold.
const MaxAttrLen = 512

// DefaultMTU is the ATT_MTU every LE link starts with.
const DefaultMTU = 23

// A DisconnectReason is the HCI error code reported when a link goes down.
type DisconnectReason uint8

const (
	ReasonAuthFailure        DisconnectReason = 0x05
	ReasonConnTimeout        DisconnectReason = 0x08
	ReasonRemoteUser         DisconnectReason = 0x13
	ReasonRemoteLowResources DisconnectReason = 0x14
	ReasonRemotePowerOff     DisconnectReason = 0x15
	ReasonLocalHost          DisconnectReason = 0x16
	ReasonLMPTimeout         DisconnectReason = 0x22
	ReasonUnacceptableParams DisconnectReason = 0x3B
	ReasonMICFailure         DisconnectReason = 0x3D
	ReasonFailedToEstablish  DisconnectReason = 0x3E
)

var reasonNames = map[DisconnectReason]string{
	ReasonAuthFailure:        "authentication failure",
	ReasonConnTimeout:        "connection timeout",
	ReasonRemoteUser:         "remote user terminated",
	ReasonRemoteLowResources: "remote low resources",
	ReasonRemotePowerOff:     "remote power off",
	ReasonLocalHost:          "local host terminated",
	ReasonLMPTimeout:         "LL response timeout",
	ReasonUnacceptableParams: "unacceptable connection parameters",
	ReasonMICFailure:         "MIC failure",
	ReasonFailedToEstablish:  "failed to establish",
}

func (r DisconnectReason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason 0x%02x", uint8(r))
}
