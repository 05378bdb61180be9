package gatt

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Accept advertises until a central connects and returns the connection.
func (p *Peripheral) Accept(ctx context.Context, adv, scan []byte) (*Conn, error) {
	l, err := p.host.Advertise(ctx, adv, scan)
	if err != nil {
		return nil, errors.Wrap(err, "advertise")
	}
	c := NewConn(l)
	if p.connect != nil {
		p.connect(c)
	}
	return c, nil
}

// AdvertiseAndServe advertises, serves each accepted connection with Run,
// and advertises again, until ctx is done. Session failures are logged and
// never end the loop; advertising failures are retried after the
// AdvertiseBackoff delay. Up to MaxConnections sessions run at once.
//
// The payloads are raw AD structures and are checked before the first
// advertisement. AdvertiseAndServe returns ctx.Err() once every session
// has ended.
func (p *Peripheral) AdvertiseAndServe(ctx context.Context, adv, scan []byte, h EventHandler) error {
	if err := ValidateAdvData(adv); err != nil {
		return errors.Wrap(err, "advertising data")
	}
	if err := ValidateAdvData(scan); err != nil {
		return errors.Wrap(err, "scan response data")
	}

	slots := make(chan struct{}, p.maxConnections)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		c, err := p.Accept(ctx, adv, scan)
		if err != nil {
			<-slots
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.WithError(err).Error("advertising failed")
			select {
			case <-time.After(p.advBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		p.log.WithFields(log.Fields{
			"conn": c.Handle(),
			"addr": c.RemoteAddr().String(),
		}).Info("central connected")

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			p.serve(ctx, c, h)
		}()
	}
}

func (p *Peripheral) serve(ctx context.Context, c *Conn, h EventHandler) {
	reason, err := p.Run(ctx, c, h)
	l := p.log.WithField("conn", c.Handle())
	if err != nil {
		l.WithError(err).Error("gatt server run exited with error")
		reason = ReasonLocalHost
	} else {
		l.WithField("reason", reason.String()).Info("central disconnected")
	}
	if p.disconnect != nil {
		p.disconnect(c, reason)
	}
}
