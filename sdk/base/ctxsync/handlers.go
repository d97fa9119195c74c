package ctxsync

import "github.com/Techcyte/context-sync/sdk/contracts/syncmsg"

// Handlers receives session notifications. Every slot is optional. Handlers
// of one Client run one at a time, in the order the session produced them,
// and never while the Client's lock is held, so they may call back into the
// Client. They usually run on the goroutine that triggered the step; when
// another goroutine is already firing handlers, that goroutine runs them
// instead and the triggering call may return first.
type Handlers struct {
	// OnConnected fires once the transport is open, before the subscription
	// request is sent.
	OnConnected func()
	// OnSubscribed fires with a nil rejection when the host accepts the
	// subscription, or with the host's rejection otherwise.
	OnSubscribed func(rejection *syncmsg.Rejection)
	// OnContextSwitched fires whenever a new context is committed.
	OnContextSwitched func(ctx syncmsg.Context)
	// OnContextChangeRequested fires when the host proposes a change; answer
	// with Client.Accept or Client.Reject.
	OnContextChangeRequested func(proposed syncmsg.Context)
	// OnContextChangeRejected fires when the host refuses our proposal.
	OnContextChangeRejected func(reason string, proposed syncmsg.Context)
	OnClosed                func()
	OnError                 func(err *Error)
}
