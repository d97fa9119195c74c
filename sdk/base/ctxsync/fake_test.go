package ctxsync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Techcyte/context-sync/sdk/base/transport"
	"github.com/Techcyte/context-sync/sdk/contracts/syncmsg"
)

// fakeConn is a scripted transport handle: sends are recorded and inbound
// events are injected synchronously by the test.
type fakeConn struct {
	mu     sync.Mutex
	open   bool
	ev     transport.Events
	sent   [][]byte
	closed int
}

func (f *fakeConn) Start(ev transport.Events) {
	f.mu.Lock()
	f.ev = ev
	f.mu.Unlock()
	ev.Opened()
}

func (f *fakeConn) Send(text []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return transport.ErrNotOpen
	}
	f.sent = append(f.sent, append([]byte(nil), text...))
	return nil
}

func (f *fakeConn) Open() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.open = false
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) events() transport.Events {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ev
}

// deliver injects an inbound message.
func (f *fakeConn) deliver(t *testing.T, m syncmsg.Message) {
	t.Helper()
	b, err := syncmsg.Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.events().Received(transport.Frame{Type: transport.FrameText, Data: b})
}

func (f *fakeConn) deliverRaw(typ transport.FrameType, data string) {
	f.events().Received(transport.Frame{Type: typ, Data: []byte(data)})
}

// peerClose simulates the channel ending on the remote side.
func (f *fakeConn) peerClose() {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	f.events().Closed()
}

func (f *fakeConn) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// sentMessages decodes everything handed to the transport so far.
func (f *fakeConn) sentMessages(t *testing.T) []syncmsg.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]syncmsg.Message, 0, len(f.sent))
	for _, b := range f.sent {
		m, err := syncmsg.Decode(b)
		if err != nil {
			t.Fatalf("decode sent %s: %v", b, err)
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) last(t *testing.T) syncmsg.Message {
	t.Helper()
	msgs := f.sentMessages(t)
	if len(msgs) == 0 {
		t.Fatalf("nothing sent")
	}
	return msgs[len(msgs)-1]
}

type fakeDialer struct {
	conns []*fakeConn
	err   error
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{open: true}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) current() *fakeConn { return d.conns[len(d.conns)-1] }

// recorder captures every notification in order.
type recorder struct {
	mu        sync.Mutex
	calls     []string
	subs      []*syncmsg.Rejection
	switched  []syncmsg.Context
	requested []syncmsg.Context
	rejected  []string
	rejCtx    []syncmsg.Context
	errs      []*Error
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnConnected: func() { r.add("connected") },
		OnSubscribed: func(rej *syncmsg.Rejection) {
			r.mu.Lock()
			r.subs = append(r.subs, rej)
			r.mu.Unlock()
			r.add("subscribed")
		},
		OnContextSwitched: func(ctx syncmsg.Context) {
			r.mu.Lock()
			r.switched = append(r.switched, ctx)
			r.mu.Unlock()
			r.add("switched")
		},
		OnContextChangeRequested: func(ctx syncmsg.Context) {
			r.mu.Lock()
			r.requested = append(r.requested, ctx)
			r.mu.Unlock()
			r.add("requested")
		},
		OnContextChangeRejected: func(reason string, ctx syncmsg.Context) {
			r.mu.Lock()
			r.rejected = append(r.rejected, reason)
			r.rejCtx = append(r.rejCtx, ctx)
			r.mu.Unlock()
			r.add("rejected")
		},
		OnClosed: func() { r.add("closed") },
		OnError: func(err *Error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.add("error")
		},
	}
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) count(s string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == s {
			n++
		}
	}
	return n
}

func (r *recorder) lastErr(t *testing.T) *Error {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		t.Fatalf("no error reported")
	}
	return r.errs[len(r.errs)-1]
}

// newTestClient returns a client wired to a fake dialer and recorder.
func newTestClient(t *testing.T) (*Client, *fakeDialer, *recorder) {
	t.Helper()
	rec := &recorder{}
	d := &fakeDialer{}
	c := New(Options{URL: "ws://host/cm", Application: "Demo", Handlers: rec.handlers(), Dialer: d})
	return c, d, rec
}

// subscribed connects and completes the handshake with ctx as host context.
func subscribed(t *testing.T, ctx syncmsg.Context) (*Client, *fakeConn, *recorder) {
	t.Helper()
	c, d, rec := newTestClient(t)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := d.current()
	conn.deliver(t, syncmsg.SubscriptionAccept{Context: ctx})
	if !c.IsSubscribed() {
		t.Fatalf("expected subscribed")
	}
	return c, conn, rec
}

func asError(t *testing.T, err error) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %v", err)
	}
	return e
}
