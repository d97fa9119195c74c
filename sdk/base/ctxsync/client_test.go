package ctxsync

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Techcyte/context-sync/sdk/base/transport"
	"github.com/Techcyte/context-sync/sdk/contracts/syncmsg"
)

func TestConnectSendsSubscriptionRequest(t *testing.T) {
	c, d, rec := newTestClient(t)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !c.IsConnected() || c.IsSubscribed() {
		t.Fatalf("connected=%v subscribed=%v", c.IsConnected(), c.IsSubscribed())
	}
	if rec.count("connected") != 1 {
		t.Fatalf("OnConnected fired %d times", rec.count("connected"))
	}
	req, ok := d.current().last(t).(syncmsg.SubscriptionRequest)
	if !ok {
		t.Fatalf("first message is %T", d.current().last(t))
	}
	if req.Info.Version != 1 || req.Info.Application != "Demo" {
		t.Fatalf("info = %+v", req.Info)
	}
	if c.State() != StateSubscriptionRequestSent {
		t.Fatalf("state = %s", c.State())
	}
	if c.ProtocolVersion() != 1 {
		t.Fatalf("version = %d", c.ProtocolVersion())
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	c, d, _ := newTestClient(t)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := d.current()

	// connected but not yet subscribed: connect re-subscribes
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if conn.sentCount() != 2 {
		t.Fatalf("expected second subscription request, sent %d", conn.sentCount())
	}

	conn.deliver(t, syncmsg.SubscriptionAccept{Context: syncmsg.CaseContext("A1")})
	for i := 0; i < 5; i++ {
		if err := c.Connect(ctx); err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
	}
	if conn.sentCount() != 2 {
		t.Fatalf("duplicate subscription requests: sent %d", conn.sentCount())
	}
	if len(d.conns) != 1 {
		t.Fatalf("dialed %d times", len(d.conns))
	}
}

func TestDialFailureIsReturned(t *testing.T) {
	rec := &recorder{}
	c := New(Options{URL: "ws://nowhere", Handlers: rec.handlers(), Dialer: &fakeDialer{err: errors.New("refused")}})
	if err := c.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
	if c.IsConnected() || rec.count("error") != 0 {
		t.Fatalf("dial failure must not connect nor notify")
	}
}

func TestSendWithoutTransport(t *testing.T) {
	c, _, rec := newTestClient(t)
	err := c.Send(syncmsg.SubscriptionRequest{})
	if !errors.Is(err, ErrTransportNotOpen) {
		t.Fatalf("want ErrTransportNotOpen, got %v", err)
	}
	if e := asError(t, err); e.Status != syncmsg.ServerError {
		t.Fatalf("status = %d", e.Status)
	}
	if rec.lastErr(t) != err {
		t.Fatalf("OnError did not receive the returned error")
	}
	if c.State() != StateWaiting {
		t.Fatalf("state mutated: %s", c.State())
	}
}

func TestSendWhileUnsubscribedIsRejected(t *testing.T) {
	msgs := []syncmsg.Message{
		syncmsg.SubscriptionAccept{},
		syncmsg.SubscriptionReject{},
		syncmsg.ContextChangeRequest{Context: syncmsg.CaseContext("B2")},
		syncmsg.ContextChangeAccept{},
		syncmsg.ContextChangeReject{},
		syncmsg.EmptyContext{},
		syncmsg.OutOfSyncError{},
		syncmsg.Unknown{Name: "bogus"},
	}
	for _, m := range msgs {
		t.Run(string(m.Kind()), func(t *testing.T) {
			c, d, _ := newTestClient(t)
			if err := c.Connect(context.Background()); err != nil {
				t.Fatalf("connect: %v", err)
			}
			conn := d.current()
			before := conn.sentCount()
			state := c.State()

			err := c.Send(m)
			if !errors.Is(err, ErrNotSubscribed) {
				t.Fatalf("want ErrNotSubscribed, got %v", err)
			}
			if e := asError(t, err); e.Status != syncmsg.BadRequest {
				t.Fatalf("status = %d", e.Status)
			}
			if conn.sentCount() != before {
				t.Fatalf("message reached the transport")
			}
			if c.State() != state {
				t.Fatalf("state changed from %s to %s", state, c.State())
			}
			if snap := c.Snapshot(); snap.PendingContext != nil {
				t.Fatalf("pending context set: %v", snap.PendingContext)
			}
		})
	}
}

func TestSubscriptionAcceptScenario(t *testing.T) {
	c, conn, rec := subscribed(t, syncmsg.CaseContext("A1"))
	if _, ok := conn.sentMessages(t)[0].(syncmsg.SubscriptionRequest); !ok {
		t.Fatalf("first sent message was not a subscription request")
	}
	if !c.Context().Equal(syncmsg.CaseContext("A1")) {
		t.Fatalf("context = %v", c.Context())
	}
	if rec.count("switched") != 1 || !rec.switched[0].Equal(syncmsg.CaseContext("A1")) {
		t.Fatalf("switched = %v", rec.switched)
	}
	if rec.count("subscribed") != 1 || rec.subs[0] != nil {
		t.Fatalf("subscribed notifications = %v", rec.subs)
	}
	if c.State() != StateWaiting {
		t.Fatalf("state = %s", c.State())
	}
}

func TestSubscriptionAcceptWithoutContext(t *testing.T) {
	_, _, rec := subscribed(t, nil)
	if rec.count("switched") != 0 {
		t.Fatalf("switch fired without context")
	}
}

func TestSubscriptionReject(t *testing.T) {
	c, d, rec := newTestClient(t)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	d.current().deliver(t, syncmsg.SubscriptionReject{Rejection: syncmsg.Rejection{Reason: "taken", Status: syncmsg.ConflictWithRetry}})
	if c.IsSubscribed() {
		t.Fatalf("should not be subscribed")
	}
	if len(rec.subs) != 1 || rec.subs[0] == nil || rec.subs[0].Reason != "taken" || rec.subs[0].Status != syncmsg.ConflictWithRetry {
		t.Fatalf("rejection = %+v", rec.subs)
	}
	if rec.count("error") != 0 {
		t.Fatalf("subscription rejection must not use the error channel")
	}
	if c.State() != StateWaiting {
		t.Fatalf("state = %s", c.State())
	}
}

func TestClientRequestRejectedByHost(t *testing.T) {
	c, conn, rec := subscribed(t, syncmsg.CaseContext("A1"))
	if err := c.RequestContextChange(syncmsg.CaseContext("B2")); err != nil {
		t.Fatalf("request: %v", err)
	}
	if c.State() != StateContextChangeRequestSent {
		t.Fatalf("state = %s", c.State())
	}
	req, ok := conn.last(t).(syncmsg.ContextChangeRequest)
	if !ok || !req.Context.Equal(syncmsg.CaseContext("B2")) {
		t.Fatalf("sent %#v", conn.last(t))
	}

	conn.deliver(t, syncmsg.ContextChangeReject{Rejection: syncmsg.Rejection{Reason: "busy", Status: syncmsg.Conflict}})
	if len(rec.rejected) != 1 || rec.rejected[0] != "busy" || !rec.rejCtx[0].Equal(syncmsg.CaseContext("B2")) {
		t.Fatalf("rejected = %v %v", rec.rejected, rec.rejCtx)
	}
	snap := c.Snapshot()
	if snap.PendingContext != nil {
		t.Fatalf("pending not cleared")
	}
	if !snap.Context.Equal(syncmsg.CaseContext("A1")) {
		t.Fatalf("context changed: %v", snap.Context)
	}
	if snap.State != StateWaiting {
		t.Fatalf("state = %s", snap.State)
	}
}

func TestClientRequestAcceptedByHost(t *testing.T) {
	c, conn, rec := subscribed(t, syncmsg.CaseContext("A1"))
	if err := c.RequestContextChange(syncmsg.CaseContext("B2")); err != nil {
		t.Fatalf("request: %v", err)
	}
	conn.deliver(t, syncmsg.ContextChangeAccept{})
	snap := c.Snapshot()
	if !snap.Context.Equal(syncmsg.CaseContext("B2")) {
		t.Fatalf("context = %v", snap.Context)
	}
	if !snap.PreviousContext.Equal(syncmsg.CaseContext("A1")) {
		t.Fatalf("previous = %v", snap.PreviousContext)
	}
	if snap.PendingContext != nil || snap.State != StateWaiting {
		t.Fatalf("snapshot = %+v", snap)
	}
	if rec.count("switched") != 2 {
		t.Fatalf("switched %d times", rec.count("switched"))
	}
}

func TestEmptyRequestIsNoop(t *testing.T) {
	c, conn, _ := subscribed(t, syncmsg.CaseContext("A1"))
	before := conn.sentCount()
	if err := c.RequestContextChange(nil); err != nil {
		t.Fatalf("empty request: %v", err)
	}
	if conn.sentCount() != before || c.State() != StateWaiting {
		t.Fatalf("empty request had effects")
	}
}

func TestHostRequestAccepted(t *testing.T) {
	c, conn, rec := subscribed(t, syncmsg.CaseContext("A1"))
	conn.deliver(t, syncmsg.ContextChangeRequest{Context: syncmsg.CaseContext("C3")})
	if len(rec.requested) != 1 || !rec.requested[0].Equal(syncmsg.CaseContext("C3")) {
		t.Fatalf("requested = %v", rec.requested)
	}
	if c.State() != StateWaiting {
		t.Fatalf("state after host request = %s", c.State())
	}

	if err := c.Accept(); err != nil {
		t.Fatalf("accept: %v", err)
	}
	snap := c.Snapshot()
	if !snap.Context.Equal(syncmsg.CaseContext("C3")) || !snap.PreviousContext.Equal(syncmsg.CaseContext("A1")) {
		t.Fatalf("context=%v previous=%v", snap.Context, snap.PreviousContext)
	}
	acc, ok := conn.last(t).(syncmsg.ContextChangeAccept)
	if !ok || !acc.Context.Equal(syncmsg.CaseContext("C3")) {
		t.Fatalf("sent %#v", conn.last(t))
	}
	if snap.State != StateWaiting || snap.PendingContext != nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if rec.count("switched") != 2 {
		t.Fatalf("switched %d times", rec.count("switched"))
	}
}

func TestHostRequestRejected(t *testing.T) {
	c, conn, _ := subscribed(t, syncmsg.CaseContext("A1"))
	conn.deliver(t, syncmsg.ContextChangeRequest{Context: syncmsg.CaseContext("C3")})
	if err := c.Reject("user declined", 0); err != nil {
		t.Fatalf("reject: %v", err)
	}
	want := syncmsg.ContextChangeReject{
		Context:        syncmsg.CaseContext("C3"),
		CurrentContext: syncmsg.CaseContext("A1"),
		Rejection:      syncmsg.Rejection{Reason: "user declined", Status: syncmsg.Conflict},
	}
	if got := conn.last(t); !reflect.DeepEqual(got, want) {
		t.Fatalf("sent %#v want %#v", got, want)
	}
	snap := c.Snapshot()
	if snap.PendingContext != nil || snap.State != StateWaiting || !snap.Context.Equal(syncmsg.CaseContext("A1")) {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestAcceptWithoutPending(t *testing.T) {
	c, conn, _ := subscribed(t, syncmsg.CaseContext("A1"))
	before := conn.sentCount()
	if err := c.Accept(); !errors.Is(err, ErrNothingPending) {
		t.Fatalf("accept: %v", err)
	}
	if err := c.Reject("x", 0); !errors.Is(err, ErrNothingPending) {
		t.Fatalf("reject: %v", err)
	}
	if conn.sentCount() != before || !c.Context().Equal(syncmsg.CaseContext("A1")) {
		t.Fatalf("nothing-pending calls had effects")
	}
}

func TestLocalHostOnlyKindPoisonsSession(t *testing.T) {
	c, conn, rec := subscribed(t, syncmsg.CaseContext("A1"))
	before := conn.sentCount()

	err := c.Send(syncmsg.SubscriptionAccept{})
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("want ErrProtocolViolation, got %v", err)
	}
	if c.State() != StateError {
		t.Fatalf("state = %s", c.State())
	}
	if rec.lastErr(t).Kind != KindProtocolViolation {
		t.Fatalf("OnError kind = %s", rec.lastErr(t).Kind)
	}

	if err := c.RequestContextChange(syncmsg.CaseContext("D4")); !errors.Is(err, ErrInErrorState) {
		t.Fatalf("follow-up request: %v", err)
	}
	if conn.sentCount() != before {
		t.Fatalf("transport was used after protocol violation")
	}
}

func TestErrorStateBlocksEveryKind(t *testing.T) {
	c, conn, _ := subscribed(t, syncmsg.CaseContext("A1"))
	_ = c.Send(syncmsg.Unknown{Name: "bogus"})
	if c.State() != StateError {
		t.Fatalf("state = %s", c.State())
	}
	before := conn.sentCount()
	msgs := []syncmsg.Message{
		syncmsg.SubscriptionRequest{},
		syncmsg.SubscriptionAccept{},
		syncmsg.SubscriptionReject{},
		syncmsg.ContextChangeRequest{Context: syncmsg.CaseContext("X")},
		syncmsg.ContextChangeAccept{},
		syncmsg.ContextChangeReject{},
		syncmsg.EmptyContext{},
		syncmsg.OutOfSyncError{},
		syncmsg.Unknown{Name: "other"},
	}
	for _, m := range msgs {
		if err := c.Send(m); !errors.Is(err, ErrInErrorState) {
			t.Fatalf("%s: want ErrInErrorState, got %v", m.Kind(), err)
		}
	}
	// a pending host proposal cannot be answered either, and the state stays error
	conn.deliver(t, syncmsg.ContextChangeRequest{Context: syncmsg.CaseContext("Y")})
	if err := c.Reject("no", 0); !errors.Is(err, ErrInErrorState) {
		t.Fatalf("reject: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if conn.sentCount() != before {
		t.Fatalf("transport send invoked %d times in error state", conn.sentCount()-before)
	}
	if c.State() != StateError {
		t.Fatalf("error state left: %s", c.State())
	}
}

func TestReconnectClearsErrorState(t *testing.T) {
	c, d, _ := newTestClient(t)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	d.current().deliver(t, syncmsg.SubscriptionAccept{Context: syncmsg.CaseContext("A1")})
	_ = c.Send(syncmsg.SubscriptionReject{})
	if c.State() != StateError {
		t.Fatalf("state = %s", c.State())
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if c.State() != StateSubscriptionRequestSent {
		t.Fatalf("state after reconnect = %s", c.State())
	}
	if len(d.conns) != 2 || d.current().sentCount() != 1 {
		t.Fatalf("expected a fresh subscription on the new channel")
	}
}

func TestInboundHandling(t *testing.T) {
	c, conn, rec := subscribed(t, syncmsg.CaseContext("A1"))

	conn.deliverRaw(transport.FrameBinary, `{"kind":"context_change_request"}`)
	if rec.count("error") != 0 || rec.count("requested") != 0 {
		t.Fatalf("binary frame was not ignored")
	}

	conn.deliverRaw(transport.FrameText, `{not json`)
	if e := rec.lastErr(t); e.Kind != KindDecodeError || !errors.Is(e, ErrDecode) || !errors.Is(e, syncmsg.ErrMalformed) {
		t.Fatalf("decode error = %v", e)
	}

	conn.deliverRaw(transport.FrameText, `{"kind":"mystery"}`)
	if e := rec.lastErr(t); e.Kind != KindUnexpectedKind || e.Status != syncmsg.BadRequest {
		t.Fatalf("unknown kind error = %v", e)
	}

	errs := rec.count("error")
	conn.deliver(t, syncmsg.SubscriptionRequest{Info: syncmsg.ConnectionInfo{Version: 1}})
	if rec.count("error") != errs {
		t.Fatalf("host-sent subscription request must be a no-op")
	}

	conn.deliver(t, syncmsg.OutOfSyncError{Error: syncmsg.MessageError{Message: "drift", Status: syncmsg.Conflict}})
	if e := rec.lastErr(t); e.Kind != KindOutOfSync || e.Status != syncmsg.Conflict || e.Message != "drift" {
		t.Fatalf("desync error = %v", e)
	}
	if c.State() != StateWaiting || !c.IsSubscribed() {
		t.Fatalf("inbound failures must not change state: %s", c.State())
	}
}

func TestCloseKeepsContext(t *testing.T) {
	c, conn, rec := subscribed(t, syncmsg.CaseContext("A1"))
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if c.IsConnected() || c.IsSubscribed() {
		t.Fatalf("still connected after close")
	}
	if rec.count("closed") != 1 {
		t.Fatalf("OnClosed fired %d times", rec.count("closed"))
	}
	// late transport event from the old handle is dropped
	conn.events().Closed()
	if rec.count("closed") != 1 {
		t.Fatalf("stale close event was delivered")
	}
	if !c.Context().Equal(syncmsg.CaseContext("A1")) {
		t.Fatalf("context cleared on close")
	}
	if err := c.Close(); err != nil || rec.count("closed") != 1 {
		t.Fatalf("second close must be a no-op")
	}
	if err := c.RequestContextChange(syncmsg.CaseContext("B2")); !errors.Is(err, ErrTransportNotOpen) {
		t.Fatalf("send after close: %v", err)
	}
}

func TestPeerCloseAndFailure(t *testing.T) {
	c, conn, rec := subscribed(t, syncmsg.CaseContext("A1"))
	conn.events().Failed(errors.New("reset"))
	if e := rec.lastErr(t); e.Kind != KindTransportError {
		t.Fatalf("failure kind = %s", e.Kind)
	}
	conn.peerClose()
	if c.IsConnected() || c.IsSubscribed() || rec.count("closed") != 1 {
		t.Fatalf("peer close not applied")
	}
}

func TestHandlersMayReenterClient(t *testing.T) {
	d := &fakeDialer{}
	var c *Client
	c = New(Options{URL: "ws://host/cm", Application: "Demo", Dialer: d, Handlers: Handlers{
		OnContextChangeRequested: func(syncmsg.Context) {
			if err := c.Accept(); err != nil {
				t.Errorf("accept from handler: %v", err)
			}
		},
	}})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := d.current()
	conn.deliver(t, syncmsg.SubscriptionAccept{Context: syncmsg.CaseContext("A1")})
	conn.deliver(t, syncmsg.ContextChangeRequest{Context: syncmsg.CaseContext("Z9")})
	if !c.Context().Equal(syncmsg.CaseContext("Z9")) {
		t.Fatalf("context = %v", c.Context())
	}
	if _, ok := conn.last(t).(syncmsg.ContextChangeAccept); !ok {
		t.Fatalf("last sent = %T", conn.last(t))
	}
}

func TestReportOutOfSync(t *testing.T) {
	c, conn, _ := subscribed(t, syncmsg.CaseContext("A1"))
	if err := c.ReportOutOfSync("host shows another case", 0); err != nil {
		t.Fatalf("report: %v", err)
	}
	m, ok := conn.last(t).(syncmsg.OutOfSyncError)
	if !ok || m.Error.Status != syncmsg.Conflict || !m.CurrentContext.Equal(syncmsg.CaseContext("A1")) {
		t.Fatalf("sent %#v", conn.last(t))
	}
	if c.State() != StateWaiting {
		t.Fatalf("out_of_sync_error changed state to %s", c.State())
	}
}

func TestHostInfoRecorded(t *testing.T) {
	c, d, _ := newTestClient(t)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	timeout := 30
	d.current().deliver(t, syncmsg.SubscriptionAccept{Info: &syncmsg.ConnectionInfo{Version: 1, Application: "host", Timeout: &timeout}})
	hi := c.HostInfo()
	if hi == nil || hi.Timeout == nil || *hi.Timeout != 30 || hi.Application != "host" {
		t.Fatalf("host info = %#v", hi)
	}
}

func TestSubscriptionRequestCarriesOptions(t *testing.T) {
	d := &fakeDialer{}
	timeout, replace := 45, true
	c := New(Options{URL: "ws://host/cm", Version: 3, Application: "Viewer", Timeout: &timeout, ReplaceExistingClient: &replace, Dialer: d})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	req := d.current().last(t).(syncmsg.SubscriptionRequest)
	want := syncmsg.ConnectionInfo{Version: 3, Application: "Viewer", Timeout: &timeout, ReplaceExistingClient: &replace}
	if !reflect.DeepEqual(req.Info, want) {
		t.Fatalf("info = %#v", req.Info)
	}
}

func TestHandlersNeverOverlap(t *testing.T) {
	var active, overlaps atomic.Int32
	enter := func() {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
	}
	d := &fakeDialer{}
	c := New(Options{URL: "ws://host/cm", Dialer: d, Handlers: Handlers{
		OnContextChangeRequested: func(syncmsg.Context) { enter() },
		OnError:                  func(*Error) { enter() },
	}})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ev := d.current().events()
	frame, err := syncmsg.Encode(syncmsg.ContextChangeRequest{Context: syncmsg.CaseContext("H1")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			// not subscribed yet, so every request reports an error
			_ = c.RequestContextChange(syncmsg.CaseContext("C1"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			ev.Received(transport.Frame{Type: transport.FrameText, Data: frame})
		}
	}()
	wg.Wait()
	if n := overlaps.Load(); n != 0 {
		t.Fatalf("handlers overlapped %d times", n)
	}
}

func TestNotificationsKeepStepOrder(t *testing.T) {
	d := &fakeDialer{}
	var calls []string
	var c *Client
	c = New(Options{URL: "ws://host/cm", Dialer: d, Handlers: Handlers{
		OnContextChangeRequested: func(syncmsg.Context) {
			calls = append(calls, "requested")
			_ = c.Accept()
			calls = append(calls, "accept returned")
		},
		OnContextSwitched: func(ctx syncmsg.Context) {
			calls = append(calls, "switched "+ctx.CaseNumber())
		},
	}})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := d.current()
	conn.deliver(t, syncmsg.SubscriptionAccept{Context: syncmsg.CaseContext("A1")})
	conn.deliver(t, syncmsg.ContextChangeRequest{Context: syncmsg.CaseContext("Z9")})
	want := []string{"switched A1", "requested", "accept returned", "switched Z9"}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestAcceptOnClosedTransportStillCommitsLocally(t *testing.T) {
	c, conn, rec := subscribed(t, syncmsg.CaseContext("A1"))
	conn.deliver(t, syncmsg.ContextChangeRequest{Context: syncmsg.CaseContext("Z9")})
	sent := conn.sentCount()
	_ = conn.Close()

	err := c.Accept()
	if e := asError(t, err); e.Kind != KindTransportNotOpen {
		t.Fatalf("kind = %s", e.Kind)
	}
	if !c.Context().Equal(syncmsg.CaseContext("Z9")) {
		t.Fatalf("context = %v", c.Context())
	}
	if rec.count("switched") != 2 {
		t.Fatalf("OnContextSwitched fired %d times", rec.count("switched"))
	}
	if conn.sentCount() != sent {
		t.Fatalf("accept reached a closed transport")
	}
}
