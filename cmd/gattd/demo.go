package main

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	gatt "github.com/XC-/gattserver"
	"github.com/XC-/gattserver/memhost"
	"github.com/XC-/gattserver/service"
)

// demoAddr is the address of the simulated central.
var demoAddr = gatt.BDAddr{HardwareAddr: net.HardwareAddr{0xc0, 0xff, 0xee, 0x00, 0x00, 0x01}}

const demoTimeout = 2 * time.Second

// runDemo plays one central against h: it connects, exercises srv and
// disconnects.
func runDemo(ctx context.Context, h *memhost.Host, srv gatt.Server, l log.FieldLogger) error {
	c, err := h.Connect(ctx, demoAddr)
	if err != nil {
		return errors.Wrap(err, "demo connect")
	}
	defer c.Disconnect(gatt.ReasonRemoteUser)
	l = l.WithField("central", demoAddr.String())

	switch s := srv.(type) {
	case *service.Battery:
		hh := s.LevelHandles()
		v, err := c.Read(hh.ValueHandle)
		if err != nil {
			return errors.Wrap(err, "demo read level")
		}
		l.WithField("level", v).Info("demo: read battery level")

		if err := c.Subscribe(hh.CCCDHandle, gatt.Subscription{Notify: true}); err != nil {
			return errors.Wrap(err, "demo subscribe")
		}
		select {
		case n := <-c.Notifications():
			l.WithField("value", n.Value).Info("demo: battery level notified")
		case <-time.After(demoTimeout):
			return errors.New("demo: no battery level notification")
		case <-ctx.Done():
			return ctx.Err()
		}

	case *service.ImmediateAlert:
		hh := s.LevelHandles()
		if err := c.Write(hh.ValueHandle, []byte{byte(service.AlertHigh)}); err != nil {
			return errors.Wrap(err, "demo write alert level")
		}
		l.Info("demo: wrote high alert")

	case *service.GAP:
		v, err := c.Read(s.NameHandles().ValueHandle)
		if err != nil {
			return errors.Wrap(err, "demo read device name")
		}
		l.WithField("name", string(v)).Info("demo: read device name")

	default:
		return errors.Errorf("demo: no script for %T", srv)
	}
	return nil
}
