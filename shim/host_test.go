package shim

import (
	"bufio"
	"bytes"
	"context"
	"io/ioutil"
	"net"
	"os"
	"os/exec"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	gatt "github.com/XC-/gattserver"
	"github.com/XC-/gattserver/service"
)

// fakeStack is the shim side of the pipe: a tiny attribute table that
// answers requests and lets the test inject connection events.
type fakeStack struct {
	t    *testing.T
	conn net.Conn

	sendmu sync.Mutex

	mu       sync.Mutex
	next     uint16
	values   map[uint16][]byte
	maxLen   map[uint16]int
	queueLen int // notifications accepted before reporting queue full
	sent     []*Msg
	ops      []*Msg // every request, in order
	adv      chan *Msg
}

func newFake(t *testing.T, opts ...Option) (*Host, *fakeStack) {
	a, b := net.Pipe()
	f := &fakeStack{
		t:        t,
		conn:     b,
		values:   make(map[uint16][]byte),
		maxLen:   make(map[uint16]int),
		queueLen: 8,
		adv:      make(chan *Msg, 4),
	}
	go f.serve()

	l := log.New()
	l.Out = ioutil.Discard
	opts = append([]Option{Logger(l), Timeout(time.Second)}, opts...)
	return New(Stream(a), opts...), f
}

func (f *fakeStack) write(m *Msg) {
	b, err := EncodeMsg(m)
	if err != nil {
		f.t.Errorf("encode: %v", err)
		return
	}
	f.sendmu.Lock()
	defer f.sendmu.Unlock()
	f.conn.Write(b)
}

func (f *fakeStack) serve() {
	r := bufio.NewReader(f.conn)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return
		}
		m, err := DecodeMsg(line)
		if err != nil {
			f.t.Errorf("fake shim: %v", err)
			continue
		}
		f.write(f.handle(m))
	}
}

func (f *fakeStack) handle(m *Msg) *Msg {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ops = append(f.ops, m)
	rsp := &Msg{Op: OpResponse, Seq: m.Seq}
	switch m.Op {
	case OpAddService:
		if _, err := gatt.ParseUUID(m.UUID); err != nil {
			rsp.Status = StatusInvalidUUID
			break
		}
		f.next++
		rsp.Handle = f.next
	case OpAddChr:
		f.next += 2
		rsp.Handle = f.next
		f.values[rsp.Handle] = m.Data
		f.maxLen[rsp.Handle] = m.MaxLen
		if gatt.Perm(m.Perm).NeedsCCCD() {
			f.next++
			rsp.CCCD = f.next
		}
	case OpRead:
		v, ok := f.values[m.Handle]
		if !ok {
			rsp.Status = StatusInvalidHandle
			break
		}
		rsp.Data = v
	case OpWrite:
		if _, ok := f.values[m.Handle]; !ok {
			rsp.Status = StatusInvalidHandle
		} else if len(m.Data) > f.maxLen[m.Handle] {
			rsp.Status = StatusInvalAttrValueLen
		} else {
			f.values[m.Handle] = m.Data
		}
	case OpNotify:
		if len(f.sent) >= f.queueLen {
			rsp.Status = StatusQueueFull
			break
		}
		f.sent = append(f.sent, m)
	case OpAdvStart:
		f.adv <- m
	case OpAdvStop, OpDisconnect:
	default:
		rsp.Status = StatusReqNotSupp
	}
	return rsp
}

func (f *fakeStack) notifications() []*Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Msg(nil), f.sent...)
}

// requests returns the requests with op seen so far.
func (f *fakeStack) requests(op string) []*Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var mm []*Msg
	for _, m := range f.ops {
		if m.Op == op {
			mm = append(mm, m)
		}
	}
	return mm
}

// waitRequest waits for the n'th request with op.
func (f *fakeStack) waitRequest(op string, n int) *Msg {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if mm := f.requests(op); len(mm) >= n {
			return mm[n-1]
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.t.Fatalf("timed out waiting for %s #%d", op, n)
	return nil
}

func (f *fakeStack) waitAdv() *Msg {
	select {
	case m := <-f.adv:
		return m
	case <-time.After(time.Second):
		f.t.Fatal("timed out waiting for adv_start")
	}
	return nil
}

func TestEncodeMsg(t *testing.T) {
	b, err := EncodeMsg(&Msg{Op: OpWrite, Seq: 3, Handle: 4, Data: []byte{1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if b[len(b)-1] != '\n' || bytes.Count(b, []byte("\n")) != 1 {
		t.Fatalf("not a single line: %q", b)
	}
	for _, absent := range []string{"status", "conn", "uuid"} {
		if bytes.Contains(b, []byte(absent)) {
			t.Errorf("%q encoded in %s", absent, b)
		}
	}

	m, err := DecodeMsg(b)
	if err != nil {
		t.Fatal(err)
	}
	if m.Op != OpWrite || m.Seq != 3 || m.Handle != 4 || !bytes.Equal(m.Data, []byte{1, 0}) {
		t.Errorf("round trip: got %+v", m)
	}

	if _, err := DecodeMsg([]byte(`{"seq":1}`)); err == nil {
		t.Error("message without op decoded")
	}
	if _, err := DecodeMsg([]byte(`{"op":`)); err == nil {
		t.Error("truncated message decoded")
	}
}

func TestStatusError(t *testing.T) {
	cases := []struct {
		s    Status
		kind error
	}{
		{StatusInvalidHandle, gatt.ErrInvalidHandle},
		{StatusInvalAttrValueLen, gatt.ErrValueTooLong},
		{StatusInsuffResources, gatt.ErrCapacity},
		{StatusQueueFull, gatt.ErrQueueFull},
		{StatusNotSubscribed, gatt.ErrNotSubscribed},
		{StatusReadNotPerm, ErrRequestFailed},
	}
	for _, tt := range cases {
		err := statusError("op", tt.s)
		if errors.Cause(err) != tt.kind {
			t.Errorf("%s: cause %v want %v", tt.s, errors.Cause(err), tt.kind)
		}
		if !IsStatus(err, tt.s) {
			t.Errorf("IsStatus(%v, %s) = false", err, tt.s)
		}
	}
	if statusError("op", StatusSuccess) != nil {
		t.Error("success is an error")
	}
	if !gatt.IsQueueFull(statusError("notify", StatusQueueFull)) {
		t.Error("queue full status not recognised")
	}
}

func TestAttributeRequests(t *testing.T) {
	h, _ := newFake(t)
	defer h.Close()

	svc, err := h.AddService(gatt.UUID16(0x180F))
	if err != nil || svc != 1 {
		t.Fatalf("AddService: %d, %v", svc, err)
	}
	hh, err := h.AllocateAttribute(gatt.Allocation{
		Service: svc,
		UUID:    gatt.UUID16(0x2A19),
		Props:   gatt.PropRead | gatt.PropNotify,
		Perm:    gatt.PermRead | gatt.PermNotify,
		MaxLen:  1,
		Initial: []byte{123},
	})
	if err != nil || hh != (gatt.CharacteristicHandles{ValueHandle: 3, CCCDHandle: 4}) {
		t.Fatalf("AllocateAttribute: %+v, %v", hh, err)
	}

	buf := make([]byte, 4)
	if n, err := h.ReadAttribute(3, buf); err != nil || n != 1 || buf[0] != 123 {
		t.Errorf("ReadAttribute: %d % x %v", n, buf, err)
	}
	if err := h.WriteAttribute(3, []byte{1, 2}); errors.Cause(err) != gatt.ErrValueTooLong {
		t.Errorf("long write: got %v", err)
	}
	if _, err := h.ReadAttribute(9999, buf); errors.Cause(err) != gatt.ErrInvalidHandle {
		t.Errorf("read 9999: got %v", err)
	}
}

func TestPeripheralOverShim(t *testing.T) {
	h, f := newFake(t)
	defer h.Close()

	quiet := log.New()
	quiet.Out = ioutil.Discard
	b := service.NewBattery(123)
	p, err := gatt.Register(h, b, gatt.Logger(quiet))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	hh := b.LevelHandles()

	adv := []byte{0x02, 0x01, 0x06, 0x03, 0x03, 0x0f, 0x18}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conns := make(chan *gatt.Conn, 1)
	go func() {
		c, err := p.Accept(ctx, adv, nil)
		if err != nil {
			t.Errorf("Accept: %v", err)
		}
		conns <- c
	}()
	if m := f.waitAdv(); !bytes.Equal(m.Adv, adv) {
		t.Errorf("advertised % x", m.Adv)
	}
	f.write(&Msg{Op: EvConnect, Conn: 7, Addr: "c0:ff:ee:00:00:01", MTU: 64})
	c := <-conns
	if c.Handle() != 7 || c.MTU() != 64 || c.RemoteAddr().String() != "c0:ff:ee:00:00:01" {
		t.Errorf("conn %s mtu %d", c, c.MTU())
	}

	events := make(chan gatt.Event, 4)
	done := make(chan gatt.DisconnectReason, 1)
	go func() {
		r, err := p.Run(ctx, c, func(c *gatt.Conn, e gatt.Event) { events <- e })
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		done <- r
	}()

	f.write(&Msg{Op: EvWrite, Conn: 7, Handle: 9999, Data: []byte{1}})
	f.write(&Msg{Op: EvWrite, Conn: 7, Handle: hh.CCCDHandle, Data: []byte{1, 0}})
	select {
	case e := <-events:
		if e != (service.BatteryLevelNotificationsEnabled{}) {
			t.Fatalf("got %#v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	if err := b.NotifyLevel(p, c, 42); err != nil {
		t.Fatalf("NotifyLevel: %v", err)
	}
	sent := f.notifications()
	if len(sent) != 1 || sent[0].Conn != 7 || sent[0].Handle != hh.ValueHandle || !bytes.Equal(sent[0].Data, []byte{42}) {
		t.Errorf("notifications: %+v", sent)
	}
	if v, err := b.Level(p); err != nil || v != 123 {
		t.Errorf("Level: %d, %v", v, err)
	}

	f.mu.Lock()
	f.queueLen = 1
	f.mu.Unlock()
	if err := b.NotifyLevel(p, c, 43); !gatt.IsQueueFull(err) {
		t.Errorf("full queue: got %v", err)
	}

	f.write(&Msg{Op: EvDisconnect, Conn: 7, Reason: uint8(gatt.ReasonRemoteUser)})
	select {
	case r := <-done:
		if r != gatt.ReasonRemoteUser {
			t.Errorf("reason %s", r)
		}
	case <-time.After(time.Second):
		t.Fatal("session did not end")
	}
}

func TestShimExit(t *testing.T) {
	h, f := newFake(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		_, err := h.Advertise(ctx, nil, nil)
		errc <- err
	}()
	f.waitAdv()
	f.conn.Close()

	select {
	case err := <-errc:
		if errors.Cause(err) != ErrClosed {
			t.Errorf("Advertise: got %v want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Advertise did not return")
	}
	if _, err := h.AddService(gatt.UUID16(0x180F)); errors.Cause(err) != ErrClosed {
		t.Errorf("request after exit: got %v", err)
	}
	h.Close()
}

func TestAdvertisingParams(t *testing.T) {
	h, f := newFake(t, Advertising(AdvParams{IntervalMin: 0xA0, IntervalMax: 0xF0, ChannelMap: 0x07}))
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := h.Advertise(ctx, []byte{0x02, 0x01, 0x06}, nil)
		errc <- err
	}()
	m := f.waitAdv()
	if m.ItvlMin != 0xA0 || m.ItvlMax != 0xF0 || m.ChanMap != 0x07 {
		t.Errorf("adv_start: %+v", m)
	}
	cancel()
	if err := <-errc; err != context.Canceled {
		t.Errorf("Advertise: got %v", err)
	}

	if _, err := h.Advertise(context.Background(), []byte{0x05, 0x01}, nil); errors.Cause(err) != gatt.ErrInvalidAdvData {
		t.Errorf("bad payload: got %v", err)
	}
}

// zeroServer has no service UUID.
type zeroServer struct{}

func (zeroServer) UUID() gatt.UUID                          { return gatt.UUID{} }
func (zeroServer) Register(uint16, gatt.RegisterFunc) error { return nil }
func (zeroServer) OnWrite(gatt.Write) gatt.Event            { return nil }

func TestRegisterZeroServiceUUID(t *testing.T) {
	h, f := newFake(t)
	defer h.Close()

	quiet := log.New()
	quiet.Out = ioutil.Discard
	p, err := gatt.Register(h, zeroServer{}, gatt.Logger(quiet))
	if p != nil || !gatt.IsRegister(err) || errors.Cause(err) != gatt.ErrInvalidUUID {
		t.Fatalf("got %v, %v want ErrInvalidUUID", p, err)
	}
	if strings.Contains(err.Error(), "PANIC") {
		t.Errorf("error text %q", err.Error())
	}
	if mm := f.requests(OpAddService); len(mm) != 0 {
		t.Errorf("add_svc sent: %+v", mm)
	}
}

// recordedProc logs the Proc calls Host.Close makes.
type recordedProc struct {
	Proc
	mu    sync.Mutex
	calls []string
}

func (p *recordedProc) record(c string) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

func (p *recordedProc) Signal(sig os.Signal) error {
	p.record("signal")
	return p.Proc.Signal(sig)
}

func (p *recordedProc) Close() error {
	p.record("close")
	return p.Proc.Close()
}

func (p *recordedProc) Wait() error {
	p.record("wait")
	return p.Proc.Wait()
}

func TestCloseReapsShim(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	go ioutil.ReadAll(b)

	l := log.New()
	l.Out = ioutil.Discard
	p := &recordedProc{Proc: Stream(a)}
	h := New(p, Logger(l), Timeout(time.Second))

	closed := make(chan error, 1)
	go func() { closed <- h.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if want := []string{"signal", "close", "wait"}; !reflect.DeepEqual(p.calls, want) {
		t.Errorf("calls %v want %v", p.calls, want)
	}
	if errors.Cause(h.Err()) != ErrClosed {
		t.Errorf("Err after Close: %v", h.Err())
	}
}

func TestStreamWait(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	p := Stream(a)

	waited := make(chan error, 1)
	go func() { waited <- p.Wait() }()
	select {
	case <-waited:
		t.Fatal("Wait returned before Close")
	case <-time.After(20 * time.Millisecond):
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-waited:
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Close")
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Errorf("second Wait: %v", err)
	}
}

func TestConnectWhileNotAdvertising(t *testing.T) {
	h, f := newFake(t)
	defer h.Close()

	f.write(&Msg{Op: EvConnect, Conn: 3, Addr: "c0:ff:ee:00:00:03", MTU: 23})
	if m := f.waitRequest(OpDisconnect, 1); m.Conn != 3 {
		t.Errorf("disconnected conn %d want 3", m.Conn)
	}
	f.write(&Msg{Op: EvDisconnect, Conn: 3, Reason: uint8(gatt.ReasonLocalHost)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	links := make(chan gatt.Link, 1)
	go func() {
		lk, err := h.Advertise(ctx, nil, nil)
		if err != nil {
			t.Errorf("Advertise: %v", err)
		}
		links <- lk
	}()
	f.waitAdv()
	f.write(&Msg{Op: EvConnect, Conn: 4, Addr: "c0:ff:ee:00:00:04", MTU: 23})

	select {
	case lk := <-links:
		if lk == nil || lk.Handle() != 4 {
			t.Errorf("Advertise returned %v want conn 4", lk)
		}
	case <-time.After(time.Second):
		t.Fatal("Advertise did not return")
	}
	if mm := f.requests(OpDisconnect); len(mm) != 1 {
		t.Errorf("disconnects %+v", mm)
	}
}

func TestCloseReapsExec(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("no cat in PATH")
	}
	proc, err := Exec("cat")
	if err != nil {
		t.Fatal(err)
	}
	l := log.New()
	l.Out = ioutil.Discard
	h := New(proc, Logger(l), Timeout(time.Second))
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ps := proc.(*execProc).cmd.ProcessState; ps == nil {
		t.Error("shim not reaped")
	}
}
