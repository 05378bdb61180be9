// Package gatt provides a generic Bluetooth Low Energy GATT peripheral
// server.
//
// Gatt (Generic Attribute Profile) is the protocol used to write
// BLE peripherals (servers) and centrals (clients). This package is
// the peripheral half only.
//
//
// SERVERS
//
// An application describes one service as a type implementing Server.
// Register hands the server a RegisterFunc; the server declares its
// characteristics through it and keeps the handles the host allocated.
// Writes from a central are resolved against those handles and handed to
// the server's OnWrite, which turns them into the application's own
// event values:
//
//     type batteryServer struct{ level gatt.CharacteristicHandles }
//
//     func (s *batteryServer) UUID() gatt.UUID { return gatt.UUID16(0x180F) }
//
//     func (s *batteryServer) Register(svc uint16, reg gatt.RegisterFunc) error {
//     	var err error
//     	s.level, err = reg(gatt.Characteristic{
//     		UUID:   gatt.UUID16(0x2A19),
//     		Props:  gatt.PropRead | gatt.PropNotify,
//     		MaxLen: 1,
//     	}, []byte{100})
//     	return err
//     }
//
//     func (s *batteryServer) OnWrite(w gatt.Write) gatt.Event {
//     	if w.CCCD {
//     		return w.Sub.Notify
//     	}
//     	return nil
//     }
//
//
// SERVING
//
// The attribute table, the radio and the links belong to a Host. The
// memhost package provides an in-memory host for tests and simulation;
// the shim package drives an external host-stack process.
//
//     srv := &batteryServer{}
//     p, err := gatt.Register(host, srv)
//     if err != nil {
//     	log.Fatal(err)
//     }
//     adv, _ := gatt.ServiceAdvertisingPacket([]gatt.UUID{srv.UUID()})
//     scan := gatt.NameScanResponsePacket("gopher")
//     p.AdvertiseAndServe(ctx, adv, scan, func(c *gatt.Conn, e gatt.Event) {
//     	if on, _ := e.(bool); on {
//     		p.Notify(c, srv.level.ValueHandle, []byte{99})
//     	}
//     })
//
// Set only updates the stored value; it never notifies. Notify and
// Indicate push a value to one connection and fail with ErrNotSubscribed
// until the peer has enabled them through the CCCD, and with ErrQueueFull
// when the link's transmit queue is saturated.
package gatt
