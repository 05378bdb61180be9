package gatt

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Get reads the stored value of h into buf and returns its length.
func (p *Peripheral) Get(h uint16, buf []byte) (int, error) {
	n, err := p.host.ReadAttribute(h, buf)
	if err != nil {
		return 0, &GetValueError{Handle: h, Err: err}
	}
	if n > len(buf) {
		return 0, &GetValueError{
			Handle: h,
			Err:    errors.Wrapf(ErrBufferTooSmall, "value is %d bytes, buffer %d", n, len(buf)),
		}
	}
	return n, nil
}

// Set replaces the stored value of h. Set never notifies subscribers;
// call Notify or Indicate for that.
func (p *Peripheral) Set(h uint16, v []byte) error {
	if e, ok := p.idx.value(h); ok && len(v) > e.char.MaxLen {
		return &SetValueError{
			Handle: h,
			Err:    errors.Wrapf(ErrValueTooLong, "%d bytes, max %d", len(v), e.char.MaxLen),
		}
	}
	if err := p.host.WriteAttribute(h, v); err != nil {
		return &SetValueError{Handle: h, Err: err}
	}
	return nil
}

// Notify sends v to the peer on c as a Handle Value Notification.
// The stored value is not changed.
func (p *Peripheral) Notify(c *Conn, h uint16, v []byte) error {
	return p.send(c, h, v, false)
}

// Indicate sends v to the peer on c as a Handle Value Indication.
func (p *Peripheral) Indicate(c *Conn, h uint16, v []byte) error {
	return p.send(c, h, v, true)
}

func (p *Peripheral) send(c *Conn, h uint16, v []byte, indicate bool) error {
	fail := func(err error) error { return &NotifyValueError{Handle: h, Err: err} }

	e, ok := p.idx.value(h)
	switch {
	case !ok:
		return fail(ErrInvalidHandle)
	case indicate && !e.char.Props.Indicatable():
		return fail(errors.Wrap(ErrInvalidHandle, "characteristic does not indicate"))
	case !indicate && !e.char.Props.Notifiable():
		return fail(errors.Wrap(ErrInvalidHandle, "characteristic does not notify"))
	case len(v) > e.char.MaxLen:
		return fail(errors.Wrapf(ErrValueTooLong, "%d bytes, max %d", len(v), e.char.MaxLen))
	}

	if c.State() == ConnClosed {
		return fail(ErrNotConnected)
	}
	sub := c.Subscription(h)
	if (indicate && !sub.Indicate) || (!indicate && !sub.Notify) {
		return fail(ErrNotSubscribed)
	}
	if err := p.host.SendNotification(c.link, h, v, indicate); err != nil {
		return fail(err)
	}
	return nil
}

// NotifyRetry is Notify, retried with exponential backoff while the
// transmit queue is full. It gives up when ctx is done.
func (p *Peripheral) NotifyRetry(ctx context.Context, c *Conn, h uint16, v []byte) error {
	backoff := 5 * time.Millisecond
	for {
		err := p.Notify(c, h, v)
		if !IsQueueFull(err) {
			return err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return err
		}
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}
}
