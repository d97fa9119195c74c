package ctxsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Techcyte/context-sync/core/logx"
	"github.com/Techcyte/context-sync/sdk/base/transport"
	"github.com/Techcyte/context-sync/sdk/contracts/syncmsg"
)

// DefaultProtocolVersion is announced in subscription requests when Options
// leaves Version unset.
const DefaultProtocolVersion = 1

// Options configures a Client.
type Options struct {
	// URL of the host channel, e.g. ws://localhost:4002/cm.
	URL string
	// Version is the protocol version announced to the host.
	Version int
	// Application names this client to the host.
	Application string
	// Timeout is announced to the host in seconds. Nil leaves it off the wire.
	Timeout *int
	// ReplaceExistingClient asks the host to evict a client already
	// subscribed. Nil leaves the field off the wire.
	ReplaceExistingClient *bool
	Handlers              Handlers
	// Dialer opens the transport; nil uses a websocket dialer.
	Dialer transport.Dialer
	// ID tags log lines; a random id is used when empty.
	ID string
}

// Client is the public surface of a context-sync session. It is safe for
// concurrent use.
type Client struct {
	mu         sync.Mutex
	eng        *Engine
	url        string
	version    int
	dialer     transport.Dialer
	id         string
	connecting bool

	// queue holds notifications not yet fired; dispatching is set while one
	// goroutine is firing them.
	queue       []func()
	dispatching bool
}

// New returns a disconnected client.
func New(opts Options) *Client {
	if opts.Version == 0 {
		opts.Version = DefaultProtocolVersion
	}
	if opts.Dialer == nil {
		opts.Dialer = transport.WebSocketDialer{}
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	log := logx.Log.With().Str("client_id", opts.ID).Str("application", opts.Application).Logger()
	return &Client{
		eng: NewEngine(syncmsg.ConnectionInfo{
			Version:               opts.Version,
			Application:           opts.Application,
			Timeout:               opts.Timeout,
			ReplaceExistingClient: opts.ReplaceExistingClient,
		}, opts.Handlers, log),
		url:     opts.URL,
		version: opts.Version,
		dialer:  opts.Dialer,
		id:      opts.ID,
	}
}

// step runs fn on the engine under the lock and fires the resulting
// notifications once the lock is released.
func (c *Client) step(fn func(e *Engine) error) error {
	c.mu.Lock()
	err := fn(c.eng)
	c.dispatchLocked()
	return err
}

// dispatchLocked appends the engine's notifications to the queue and fires
// them in order with the lock released. When another call is already firing,
// it leaves them to that call, so handlers never overlap. Called with c.mu
// held; returns with it released.
func (c *Client) dispatchLocked() {
	c.queue = append(c.queue, c.eng.Flush()...)
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.queue) > 0 {
		n := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		n()
		c.mu.Lock()
	}
	c.queue = nil
	c.dispatching = false
	c.mu.Unlock()
}

// Connect opens the transport and subscribes. When already connected it only
// re-subscribes if the session is not subscribed, so repeated calls never
// duplicate the subscription request. Dial failures are returned but not
// delivered to OnError.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.eng.session.Connected {
		var err error
		if !c.eng.session.Subscribed {
			err = c.eng.Subscribe()
		}
		c.dispatchLocked()
		return err
	}
	if c.connecting {
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	c.connecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
	}()

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		logx.Log.Warn().Err(err).Str("client_id", c.id).Str("url", c.url).Msg("failed to connect")
		return fmt.Errorf("ctxsync: dial %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.eng.Attach(conn)
	c.mu.Unlock()
	conn.Start(&connEvents{c: c, conn: conn})
	return nil
}

// Close shuts the transport down when it is open.
func (c *Client) Close() error {
	var conn transport.Conn
	_ = c.step(func(e *Engine) error {
		conn = e.Detach()
		return nil
	})
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Send pushes a raw message through the outbound guard. Most callers use the
// dedicated operations below instead.
func (c *Client) Send(m syncmsg.Message) error {
	return c.step(func(e *Engine) error { return e.Send(m) })
}

// RequestContextChange proposes items to the host; empty items are a no-op.
// The answer arrives later through OnContextSwitched or
// OnContextChangeRejected.
func (c *Client) RequestContextChange(items syncmsg.Context) error {
	return c.step(func(e *Engine) error { return e.RequestContextChange(items) })
}

// Accept commits the proposal pending from the host and confirms it. The
// commit and OnContextSwitched happen before the send, so a non-nil error
// means the local context changed but the host did not hear the accept.
func (c *Client) Accept() error {
	return c.step(func(e *Engine) error { return e.Accept() })
}

// Reject refuses the proposal pending from the host. A zero status is sent
// as Conflict.
func (c *Client) Reject(reason string, status syncmsg.StatusCode) error {
	return c.step(func(e *Engine) error { return e.Reject(reason, status) })
}

// ReportOutOfSync notifies the host of a desync. A zero status is sent as
// Conflict.
func (c *Client) ReportOutOfSync(message string, status syncmsg.StatusCode) error {
	return c.step(func(e *Engine) error { return e.ReportOutOfSync(message, status) })
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eng.session.Connected
}

func (c *Client) IsSubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eng.session.Subscribed
}

func (c *Client) ProtocolVersion() int { return c.version }

// ID returns the identifier used in log lines.
func (c *Client) ID() string { return c.id }

// State returns the current protocol state.
func (c *Client) State() ProtocolState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eng.session.State
}

// Context returns a copy of the committed context.
func (c *Client) Context() syncmsg.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eng.session.Context.Clone()
}

// HostInfo returns the connection info the host sent with its subscription
// answer, if any.
func (c *Client) HostInfo() *syncmsg.ConnectionInfo {
	return c.Snapshot().HostInfo
}

// Snapshot returns a copy of the whole session.
func (c *Client) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eng.Session()
}

// connEvents routes the events of one transport handle. Events of a handle
// that is no longer attached are dropped.
type connEvents struct {
	c    *Client
	conn transport.Conn
}

func (ev *connEvents) deliver(fn func(e *Engine)) {
	_ = ev.c.step(func(e *Engine) error {
		if !e.Attached(ev.conn) {
			return nil
		}
		fn(e)
		return nil
	})
}

func (ev *connEvents) Opened() { ev.deliver(func(e *Engine) { e.Opened() }) }
func (ev *connEvents) Received(f transport.Frame) {
	ev.deliver(func(e *Engine) { e.HandleIncoming(f) })
}
func (ev *connEvents) Failed(err error) { ev.deliver(func(e *Engine) { e.Failed(err) }) }
func (ev *connEvents) Closed()          { ev.deliver(func(e *Engine) { e.Closed() }) }
