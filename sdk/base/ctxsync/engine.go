package ctxsync

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/Techcyte/context-sync/sdk/base/transport"
	"github.com/Techcyte/context-sync/sdk/contracts/syncmsg"
)

// Engine is the protocol state machine of one client session. It is not safe
// for concurrent use: Client drives it from behind a mutex. Notifications
// produced by a step are queued and must be collected with Flush and run by
// the caller once the step is over.
type Engine struct {
	conn     transport.Conn
	session  Session
	info     syncmsg.ConnectionInfo
	handlers Handlers
	log      zerolog.Logger
	queue    []func()
}

// NewEngine returns an engine in the waiting state with no transport. info is
// announced in every subscription request.
func NewEngine(info syncmsg.ConnectionInfo, h Handlers, log zerolog.Logger) *Engine {
	return &Engine{
		session:  newSession(),
		info:     info,
		handlers: h,
		log:      log,
	}
}

// Session returns a copy of the current session.
func (e *Engine) Session() Session { return e.session.clone() }

// Flush returns the notifications queued so far and resets the queue.
func (e *Engine) Flush() []func() {
	q := e.queue
	e.queue = nil
	return q
}

// Attach binds a freshly dialed transport handle. Events from any previously
// attached handle must be discarded by the caller.
func (e *Engine) Attach(conn transport.Conn) { e.conn = conn }

// Attached reports whether conn is the current transport handle.
func (e *Engine) Attached(conn transport.Conn) bool { return conn != nil && e.conn == conn }

func (e *Engine) setState(s ProtocolState) {
	if s == e.session.State {
		return
	}
	e.log.Debug().Str("from", string(e.session.State)).Str("to", string(s)).Msg("protocol state")
	e.session.State = s
	stateTransitions.WithLabelValues(string(s)).Inc()
}

// settle returns to waiting after a locally resolved negotiation. The error
// state is sticky until the next Opened.
func (e *Engine) settle() {
	if e.session.State != StateError {
		e.setState(StateWaiting)
	}
}

func (e *Engine) notify(fn func()) {
	if fn != nil {
		e.queue = append(e.queue, fn)
	}
}

// fail records err, queues it for OnError and returns it.
func (e *Engine) fail(err *Error) *Error {
	failures.WithLabelValues(string(err.Kind)).Inc()
	ev := e.log.Warn().Str("error_kind", string(err.Kind)).Int("status", int(err.Status))
	if err.MessageKind != "" {
		ev = ev.Str("message_kind", string(err.MessageKind))
	}
	if err.Err != nil {
		ev = ev.Err(err.Err)
	}
	ev.Msg(err.Message)
	if h := e.handlers.OnError; h != nil {
		e.notify(func() { h(err) })
	}
	return err
}

// Send applies the outbound guard and the kind-specific transition, then
// encodes and transmits m. A nil return means m was handed to the transport.
func (e *Engine) Send(m syncmsg.Message) error {
	if m == nil {
		return e.fail(newError(KindProtocolViolation, syncmsg.BadRequest, "nil message"))
	}
	kind := m.Kind()
	if e.conn == nil || !e.conn.Open() {
		err := newError(KindTransportNotOpen, syncmsg.ServerError, "transport not open")
		err.MessageKind = kind
		return e.fail(err)
	}
	if !e.session.Subscribed && kind != syncmsg.KindSubscriptionRequest {
		err := newError(KindNotSubscribed, syncmsg.BadRequest, "tried to send %s message while not subscribed", kind)
		err.MessageKind = kind
		return e.fail(err)
	}
	if e.session.State == StateError {
		err := newError(KindInErrorState, syncmsg.ServerError, "tried to send %s message while in error state", kind)
		err.MessageKind = kind
		return e.fail(err)
	}

	switch v := m.(type) {
	case syncmsg.SubscriptionRequest:
		e.setState(StateSubscriptionRequestSent)
	case syncmsg.ContextChangeRequest:
		e.session.PendingContext = v.Context.Clone()
		e.setState(StateContextChangeRequestSent)
	case syncmsg.ContextChangeReject:
		e.session.PendingContext = nil
		e.setState(StateRejectSent)
	case syncmsg.ContextChangeAccept:
		if e.session.PendingContext != nil {
			e.commitPending()
		}
	case syncmsg.OutOfSyncError:
	case syncmsg.SubscriptionAccept, syncmsg.SubscriptionReject:
		e.setState(StateError)
		err := newError(KindProtocolViolation, syncmsg.BadRequest, "%s can only be sent by the host", kind)
		err.MessageKind = kind
		return e.fail(err)
	default:
		e.setState(StateError)
		err := newError(KindProtocolViolation, syncmsg.ServerError, "unhandled message kind %q in send", kind)
		err.MessageKind = kind
		return e.fail(err)
	}

	b, err := syncmsg.Encode(m)
	if err != nil {
		return e.fail(&Error{Kind: KindEncodeError, Status: syncmsg.ServerError, Message: "encode failed", MessageKind: kind, Err: err})
	}
	if err := e.conn.Send(b); err != nil {
		ek := KindTransportError
		if errors.Is(err, transport.ErrNotOpen) {
			ek = KindTransportNotOpen
		}
		return e.fail(&Error{Kind: ek, Status: syncmsg.ServerError, Message: "transport rejected message", MessageKind: kind, Err: err})
	}
	messagesSent.WithLabelValues(string(kind)).Inc()
	e.log.Debug().Str("kind", string(kind)).Msg("sent message")
	return nil
}

// commitPending makes the pending proposal the current context and records
// the superseded one.
func (e *Engine) commitPending() syncmsg.Context {
	e.session.PreviousContext = e.session.Context
	e.session.Context = e.session.PendingContext
	e.session.PendingContext = nil
	return e.session.Context
}

// HandleIncoming dispatches one inbound frame.
func (e *Engine) HandleIncoming(f transport.Frame) {
	if f.Type != transport.FrameText {
		e.log.Debug().Str("frame_type", f.Type.String()).Int("bytes", len(f.Data)).Msg("ignoring non-text frame")
		return
	}
	m, err := syncmsg.Decode(f.Data)
	if err != nil {
		e.fail(&Error{Kind: KindDecodeError, Status: syncmsg.BadRequest, Message: "cannot decode incoming message", Err: err})
		return
	}
	kind := m.Kind()
	messagesReceived.WithLabelValues(metricKind(kind)).Inc()
	e.log.Debug().Str("kind", string(kind)).Msg("received message")

	h := e.handlers
	switch v := m.(type) {
	case syncmsg.SubscriptionAccept:
		e.session.Subscribed = true
		e.session.Context = v.Context.Clone()
		e.session.HostInfo = v.Info
		if h.OnSubscribed != nil {
			e.notify(func() { h.OnSubscribed(nil) })
		}
		if ctx := e.session.Context; ctx != nil && h.OnContextSwitched != nil {
			ctx = ctx.Clone()
			e.notify(func() { h.OnContextSwitched(ctx) })
		}
		e.setState(StateWaiting)
	case syncmsg.SubscriptionReject:
		e.session.Subscribed = false
		e.session.HostInfo = v.Info
		if h.OnSubscribed != nil {
			rej := v.Rejection
			e.notify(func() { h.OnSubscribed(&rej) })
		}
		e.setState(StateWaiting)
	case syncmsg.ContextChangeRequest:
		if e.session.PendingContext != nil {
			e.log.Warn().Msg("host proposal overwrites pending context change")
		}
		e.session.PendingContext = v.Context.Clone()
		if h.OnContextChangeRequested != nil {
			proposed := v.Context.Clone()
			e.notify(func() { h.OnContextChangeRequested(proposed) })
		}
	case syncmsg.ContextChangeAccept:
		if e.session.PendingContext == nil {
			if v.Context == nil {
				e.log.Warn().Msg("context change accepted with nothing pending")
				e.setState(StateWaiting)
				return
			}
			e.session.PendingContext = v.Context.Clone()
		}
		// previousContext keeps the context we are leaving, not the pending
		// one, so callers can still see what was replaced.
		ctx := e.commitPending().Clone()
		if h.OnContextSwitched != nil {
			e.notify(func() { h.OnContextSwitched(ctx) })
		}
		e.setState(StateWaiting)
	case syncmsg.ContextChangeReject:
		reason := v.Rejection.Reason
		if reason == "" {
			reason = "Unknown reason."
		}
		proposed := e.session.PendingContext
		e.session.PendingContext = nil
		if h.OnContextChangeRejected != nil {
			e.notify(func() { h.OnContextChangeRejected(reason, proposed) })
		}
		e.setState(StateWaiting)
	case syncmsg.SubscriptionRequest:
		e.log.Warn().Str("kind", string(kind)).Msg("host sent a client-only message; ignoring")
	case syncmsg.OutOfSyncError:
		status := v.Error.Status
		if status == 0 {
			status = syncmsg.ServerError
		}
		err := newError(KindOutOfSync, status, "%s", v.Error.Message)
		err.MessageKind = kind
		e.fail(err)
	default:
		err := newError(KindUnexpectedKind, syncmsg.BadRequest, "unknown message kind %q", kind)
		err.MessageKind = kind
		e.fail(err)
	}
}

// Opened marks the transport open, resets negotiation state and subscribes.
func (e *Engine) Opened() {
	e.session.Connected = true
	e.session.Subscribed = false
	e.session.PendingContext = nil
	e.setState(StateWaiting)
	e.log.Info().Msg("connected")
	if h := e.handlers.OnConnected; h != nil {
		e.notify(h)
	}
	_ = e.Subscribe()
}

// Failed reports a transport failure while connected. Failures before the
// session was connected are only logged.
func (e *Engine) Failed(err error) {
	if !e.session.Connected {
		e.log.Debug().Err(err).Msg("transport failure before connect")
		return
	}
	e.fail(&Error{Kind: KindTransportError, Status: syncmsg.ServerError, Message: "transport error", Err: err})
}

// Closed resets the session to disconnected. Context and previous context are
// kept for display.
func (e *Engine) Closed() {
	was := e.session.Connected
	e.conn = nil
	e.session.Connected = false
	e.session.Subscribed = false
	if was {
		e.log.Info().Msg("disconnected")
		if h := e.handlers.OnClosed; h != nil {
			e.notify(h)
		}
	}
}

// Detach closes the session locally. It returns the handle the caller must
// close, or nil when the transport was not open.
func (e *Engine) Detach() transport.Conn {
	conn := e.conn
	if conn == nil || !conn.Open() {
		return nil
	}
	e.conn = nil
	e.session.Connected = false
	e.session.Subscribed = false
	if h := e.handlers.OnClosed; h != nil {
		e.notify(h)
	}
	return conn
}

// Subscribe sends the subscription request.
func (e *Engine) Subscribe() error {
	return e.Send(syncmsg.SubscriptionRequest{Info: e.info})
}

// RequestContextChange proposes items to the host. Empty proposals are
// ignored.
func (e *Engine) RequestContextChange(items syncmsg.Context) error {
	if len(items) == 0 {
		return nil
	}
	return e.Send(syncmsg.ContextChangeRequest{Context: items.Clone()})
}

// Accept commits the pending proposal, notifies the switch and confirms it to
// the host. The commit happens before the outbound guard: when the guard
// fails the context has still changed locally and only the returned error
// tells the caller the host was not told.
func (e *Engine) Accept() error {
	if e.session.PendingContext == nil {
		return e.fail(newError(KindNothingPending, syncmsg.BadRequest, "no pending context change to accept"))
	}
	ctx := e.commitPending().Clone()
	if h := e.handlers.OnContextSwitched; h != nil {
		e.notify(func() { h(ctx) })
	}
	err := e.Send(syncmsg.ContextChangeAccept{Context: ctx.Clone()})
	e.settle()
	return err
}

// Reject refuses the pending proposal with reason. A zero status means
// Conflict.
func (e *Engine) Reject(reason string, status syncmsg.StatusCode) error {
	if e.session.PendingContext == nil {
		return e.fail(newError(KindNothingPending, syncmsg.BadRequest, "no pending context change to reject"))
	}
	if status == 0 {
		status = syncmsg.Conflict
	}
	msg := syncmsg.ContextChangeReject{
		Context:        e.session.PendingContext.Clone(),
		CurrentContext: e.session.Context.Clone(),
		Rejection:      syncmsg.Rejection{Reason: reason, Status: status},
	}
	err := e.Send(msg)
	e.session.PendingContext = nil
	e.settle()
	return err
}

// ReportOutOfSync tells the host that the two sides disagree.
func (e *Engine) ReportOutOfSync(message string, status syncmsg.StatusCode) error {
	if status == 0 {
		status = syncmsg.Conflict
	}
	return e.Send(syncmsg.OutOfSyncError{
		Error:          syncmsg.MessageError{Message: message, Status: status},
		CurrentContext: e.session.Context.Clone(),
	})
}

// metricKind bounds label cardinality for kinds sent by a misbehaving peer.
func metricKind(k syncmsg.Kind) string {
	if k.Known() {
		return string(k)
	}
	return "unknown"
}
