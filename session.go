package gatt

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// An EventHandler receives the events of one connection, in the order
// the writes arrived. It is called from the session goroutine.
type EventHandler func(c *Conn, e Event)

// Run serves c until it disconnects. Each write the host delivers is
// translated and any resulting event passed to h. CCCD writes update
// the connection's subscriptions before the event is delivered, so a
// handler may notify straight away.
//
// Run returns the disconnect reason when the link goes down, or a
// *RunError on a link or protocol error. If ctx is done the link is
// closed and Run returns ReasonLocalHost.
func (p *Peripheral) Run(ctx context.Context, c *Conn, h EventHandler) (DisconnectReason, error) {
	if !c.activate() {
		return 0, &RunError{Conn: c.Handle(), Err: errors.Wrapf(ErrNotConnected, "conn is %s", c.State())}
	}
	defer c.close()

	l := p.log.WithField("conn", c.Handle())
	l.Debug("session active")

	for {
		w, err := p.host.NextWriteEvent(ctx, c.link)
		if err != nil {
			var de *DisconnectError
			if errors.As(err, &de) {
				l.WithField("reason", de.Reason.String()).Debug("session closed")
				return de.Reason, nil
			}
			c.link.Close()
			if ctx.Err() != nil {
				return ReasonLocalHost, nil
			}
			return 0, &RunError{Conn: c.Handle(), Err: err}
		}

		if e, ok := p.idx.cccd(w.Handle); ok {
			sub := e.subscription(w.Data)
			c.subscribe(e.handles.ValueHandle, sub)
			l.WithFields(log.Fields{
				"handle":   e.handles.ValueHandle,
				"notify":   sub.Notify,
				"indicate": sub.Indicate,
			}).Debug("subscription changed")
		}

		if ev, ok := p.Translate(w.Handle, w.Data); ok && h != nil {
			h(c, ev)
		}
	}
}
