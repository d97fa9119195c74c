// Package host implements a reference context-sync host: it accepts client
// channels, keeps one subscribed client at a time and arbitrates context
// changes between that client and the host operator.
package host

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Techcyte/context-sync/core/logx"
	"github.com/Techcyte/context-sync/sdk/contracts/syncmsg"
)

var (
	ErrNoSubscriber = errors.New("host: no subscribed client")
	ErrNoVote       = errors.New("host: no context change awaiting a vote")
	ErrEmptyContext = errors.New("host: empty context")
)

const (
	alreadySubscribed = "Already have a subscribed client."
	notSubscribed     = "Client is not subscribed."
	userRejected      = "User rejected context change."
	peerQueueSize     = 16
)

// Options configures a Manager.
type Options struct {
	// Application is announced to clients in subscription answers.
	Application string
	// Timeout is announced to clients; it is not enforced.
	Timeout time.Duration
	// AutoAccept resolves client context change requests without a vote.
	AutoAccept bool
	Store      Store
}

// Peer is one client channel as seen by the manager.
type Peer struct {
	ID          string
	Remote      string
	ConnectedAt time.Time

	application string
	requested   bool
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	reason      string
}

// Outbound delivers encoded messages queued for the peer.
func (p *Peer) Outbound() <-chan []byte { return p.send }

// Done is closed when the manager wants the channel shut.
func (p *Peer) Done() <-chan struct{} { return p.done }

// CloseReason is the reason given when Done was closed.
func (p *Peer) CloseReason() string { return p.reason }

func (p *Peer) close(reason string) {
	p.closeOnce.Do(func() {
		p.reason = reason
		close(p.done)
	})
}

// ClientInfo describes a connected client in State.
type ClientInfo struct {
	ID          string    `json:"id"`
	Application string    `json:"application,omitempty"`
	Remote      string    `json:"remote,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// State is a point-in-time view of the host.
type State struct {
	Context    syncmsg.Context `json:"context"`
	Subscriber *ClientInfo     `json:"subscriber,omitempty"`
	Clients    []ClientInfo    `json:"clients"`
	Vote       syncmsg.Context `json:"vote,omitempty"`
	Proposal   syncmsg.Context `json:"proposal,omitempty"`
	AutoAccept bool            `json:"auto_accept"`
}

// Manager owns the host side of every client channel.
type Manager struct {
	mu         sync.Mutex
	peers      map[string]*Peer
	order      []*Peer
	subscribed *Peer
	// vote is a client proposal awaiting the operator.
	vote syncmsg.Context
	// proposal is an operator proposal awaiting the client.
	proposal   syncmsg.Context
	store      Store
	info       syncmsg.ConnectionInfo
	autoAccept bool
	log        zerolog.Logger
}

// NewManager returns a manager with no clients. A nil store starts empty in
// memory.
func NewManager(opts Options) *Manager {
	if opts.Store == nil {
		opts.Store = NewMemoryStore(nil)
	}
	info := syncmsg.ConnectionInfo{Version: 1, Application: opts.Application}
	if opts.Timeout > 0 {
		secs := int(opts.Timeout / time.Second)
		info.Timeout = &secs
	}
	return &Manager{
		peers:      map[string]*Peer{},
		store:      opts.Store,
		info:       info,
		autoAccept: opts.AutoAccept,
		log:        logx.Log.With().Str("component", "host").Logger(),
	}
}

// Connect registers a new client channel.
func (m *Manager) Connect(remote string) *Peer {
	p := &Peer{
		ID:          uuid.NewString(),
		Remote:      remote,
		ConnectedAt: time.Now(),
		send:        make(chan []byte, peerQueueSize),
		done:        make(chan struct{}),
	}
	m.mu.Lock()
	m.peers[p.ID] = p
	m.order = append(m.order, p)
	m.mu.Unlock()
	connectedClients.Inc()
	m.log.Info().Str("client_id", p.ID).Str("remote", remote).Msg("client connected")
	return p
}

// Disconnect forgets p. When p was the subscriber, the earliest remaining
// client that asked to subscribe is promoted.
func (m *Manager) Disconnect(ctx context.Context, p *Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[p.ID]; !ok {
		return
	}
	delete(m.peers, p.ID)
	for i, q := range m.order {
		if q == p {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	p.close("disconnected")
	connectedClients.Dec()
	m.log.Info().Str("client_id", p.ID).Str("application", p.application).Msg("client disconnected")
	if m.subscribed != p {
		return
	}
	m.subscribed = nil
	m.vote = nil
	m.proposal = nil
	for _, next := range m.order {
		if !next.requested {
			continue
		}
		m.subscribed = next
		subscriptions.WithLabelValues("promoted").Inc()
		m.log.Info().Str("client_id", next.ID).Str("application", next.application).Msg("promoted next client")
		m.acceptSubscription(ctx, next)
		return
	}
}

// Handle processes one text frame received from p.
func (m *Manager) Handle(ctx context.Context, p *Peer, data []byte) {
	msg, err := syncmsg.Decode(data)
	if err != nil {
		m.log.Warn().Err(err).Str("client_id", p.ID).Msg("cannot decode client message")
		return
	}
	kind := msg.Kind()
	label := string(kind)
	if !kind.Known() {
		label = "unknown"
	}
	messagesIn.WithLabelValues(label).Inc()
	m.log.Debug().Str("client_id", p.ID).Str("kind", string(kind)).Msg("received message")

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[p.ID]; !ok {
		return
	}

	if req, ok := msg.(syncmsg.SubscriptionRequest); ok {
		m.subscribe(ctx, p, req)
		return
	}
	if m.subscribed != p {
		if req, ok := msg.(syncmsg.ContextChangeRequest); ok {
			cur, _ := m.store.Load(ctx)
			m.enqueue(p, syncmsg.ContextChangeReject{
				Context:        req.Context,
				CurrentContext: cur,
				Rejection:      syncmsg.Rejection{Reason: notSubscribed, Status: syncmsg.BadRequest},
			})
			return
		}
		m.log.Warn().Str("client_id", p.ID).Str("kind", string(kind)).Msg("message from unsubscribed client ignored")
		return
	}

	switch v := msg.(type) {
	case syncmsg.ContextChangeRequest:
		if len(v.Context) == 0 {
			m.log.Warn().Str("client_id", p.ID).Msg("empty context in change request")
			return
		}
		if m.vote != nil {
			m.log.Warn().Str("client_id", p.ID).Msg("new request replaces the open vote")
		}
		m.vote = v.Context.Clone()
		if m.autoAccept {
			if err := m.acceptVote(ctx); err != nil {
				m.log.Error().Err(err).Msg("auto accept")
			}
		}
	case syncmsg.ContextChangeAccept:
		next := m.proposal
		if next == nil {
			next = v.Context
		}
		m.proposal = nil
		if len(next) == 0 {
			m.log.Warn().Str("client_id", p.ID).Msg("client accepted with nothing proposed")
			return
		}
		if err := m.store.Save(ctx, next); err != nil {
			m.log.Error().Err(err).Msg("save context")
			return
		}
		m.log.Info().Str("case", next.CaseNumber()).Msg("client accepted context change")
	case syncmsg.ContextChangeReject:
		m.proposal = nil
		m.log.Info().Str("reason", v.Rejection.Reason).Int("status", int(v.Rejection.Status)).Msg("client rejected context change")
	case syncmsg.OutOfSyncError:
		m.log.Error().Str("client_id", p.ID).Str("message", v.Error.Message).Int("status", int(v.Error.Status)).Msg("out of sync with client")
	case syncmsg.EmptyContext:
		m.log.Info().Str("client_id", p.ID).Msg("client reported an empty context")
	default:
		m.log.Warn().Str("client_id", p.ID).Str("kind", string(kind)).Msg("unexpected message kind")
	}
}

func (m *Manager) subscribe(ctx context.Context, p *Peer, req syncmsg.SubscriptionRequest) {
	p.application = req.Info.Application
	p.requested = true
	replace := req.Info.ReplaceExistingClient != nil && *req.Info.ReplaceExistingClient
	switch {
	case m.subscribed == nil || m.subscribed == p:
		m.subscribed = p
		subscriptions.WithLabelValues("accepted").Inc()
	case replace:
		old := m.subscribed
		m.subscribed = p
		m.vote = nil
		m.proposal = nil
		subscriptions.WithLabelValues("replaced").Inc()
		m.log.Info().Str("client_id", p.ID).Str("replaced", old.ID).Msg("subscriber replaced")
		old.close("replaced by another client")
	default:
		subscriptions.WithLabelValues("rejected").Inc()
		info := m.info
		m.enqueue(p, syncmsg.SubscriptionReject{
			Info:      &info,
			Rejection: syncmsg.Rejection{Reason: alreadySubscribed, Status: syncmsg.ConflictWithRetry},
		})
		return
	}
	m.acceptSubscription(ctx, p)
}

func (m *Manager) acceptSubscription(ctx context.Context, p *Peer) {
	cur, err := m.store.Load(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("load context")
	}
	info := m.info
	m.enqueue(p, syncmsg.SubscriptionAccept{Info: &info, Context: cur})
	m.log.Info().Str("client_id", p.ID).Str("application", p.application).Msg("client subscribed")
}

// Propose asks the subscribed client to switch to items.
func (m *Manager) Propose(ctx context.Context, items syncmsg.Context) error {
	if len(items) == 0 {
		return ErrEmptyContext
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribed == nil {
		return ErrNoSubscriber
	}
	m.proposal = items.Clone()
	m.enqueue(m.subscribed, syncmsg.ContextChangeRequest{Context: items.Clone()})
	return nil
}

// AcceptVote commits the client's open proposal and confirms it.
func (m *Manager) AcceptVote(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acceptVote(ctx)
}

func (m *Manager) acceptVote(ctx context.Context) error {
	if m.vote == nil || m.subscribed == nil {
		return ErrNoVote
	}
	next := m.vote
	if err := m.store.Save(ctx, next); err != nil {
		return err
	}
	m.vote = nil
	votes.WithLabelValues("accepted").Inc()
	m.enqueue(m.subscribed, syncmsg.ContextChangeAccept{Context: next})
	return nil
}

// RejectVote refuses the client's open proposal. Empty reason and zero
// status fall back to a user rejection with BadRequest.
func (m *Manager) RejectVote(ctx context.Context, reason string, status syncmsg.StatusCode) error {
	if reason == "" {
		reason = userRejected
	}
	if status == 0 {
		status = syncmsg.BadRequest
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vote == nil || m.subscribed == nil {
		return ErrNoVote
	}
	cur, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	m.enqueue(m.subscribed, syncmsg.ContextChangeReject{
		Context:        m.vote,
		CurrentContext: cur,
		Rejection:      syncmsg.Rejection{Reason: reason, Status: status},
	})
	m.vote = nil
	votes.WithLabelValues("rejected").Inc()
	return nil
}

// State returns a snapshot of the host.
func (m *Manager) State(ctx context.Context) (State, error) {
	cur, err := m.store.Load(ctx)
	if err != nil {
		return State{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{
		Context:    cur,
		Clients:    make([]ClientInfo, 0, len(m.order)),
		Vote:       m.vote.Clone(),
		Proposal:   m.proposal.Clone(),
		AutoAccept: m.autoAccept,
	}
	for _, p := range m.order {
		ci := ClientInfo{ID: p.ID, Application: p.application, Remote: p.Remote, ConnectedAt: p.ConnectedAt}
		st.Clients = append(st.Clients, ci)
		if p == m.subscribed {
			sub := ci
			st.Subscriber = &sub
		}
	}
	return st, nil
}

// enqueue encodes msg for p. A peer whose queue is full is dropped.
func (m *Manager) enqueue(p *Peer, msg syncmsg.Message) {
	b, err := syncmsg.Encode(msg)
	if err != nil {
		m.log.Error().Err(err).Str("kind", string(msg.Kind())).Msg("encode message")
		return
	}
	select {
	case p.send <- b:
		messagesOut.WithLabelValues(string(msg.Kind())).Inc()
		m.log.Debug().Str("client_id", p.ID).Str("kind", string(msg.Kind())).Msg("queued message")
	default:
		m.log.Warn().Str("client_id", p.ID).Msg("client queue full; closing channel")
		p.close("send queue full")
	}
}
