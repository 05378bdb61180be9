package service

import (
	"sort"

	gatt "github.com/XC-/gattserver"
)

// Params carries the settings a service may start from. Each service
// reads only the fields it needs.
type Params struct {
	DeviceName   string
	BatteryLevel uint8
	Appearance   uint16
}

var registry = map[string]func(Params) gatt.Server{
	"battery": func(p Params) gatt.Server { return NewBattery(p.BatteryLevel) },
	"alert":   func(Params) gatt.Server { return NewImmediateAlert() },
	"gap":     func(p Params) gatt.Server { return NewGAP(p.DeviceName, p.Appearance) },
}

// New returns a fresh server for a service name, as accepted by gattd.
func New(name string, p Params) (gatt.Server, bool) {
	f, ok := registry[name]
	if !ok {
		return nil, false
	}
	return f(p), true
}

// Names lists the known service names.
func Names() []string {
	var names []string
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
