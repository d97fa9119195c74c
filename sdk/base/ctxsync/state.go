package ctxsync

import "github.com/Techcyte/context-sync/sdk/contracts/syncmsg"

// ProtocolState is the negotiation state of a session.
type ProtocolState string

const (
	StateWaiting                  ProtocolState = "waiting"
	StateSubscriptionRequestSent  ProtocolState = "subscription_request_sent"
	StateContextChangeRequestSent ProtocolState = "ctx_change_request_sent"
	StateAcceptSent               ProtocolState = "accept_sent"
	StateRejectSent               ProtocolState = "reject_sent"
	StateError                    ProtocolState = "error"
)

// Session is the mutable state of one client. Only the Engine writes it;
// callers get copies through Client.Snapshot.
type Session struct {
	Connected       bool                    `json:"connected"`
	Subscribed      bool                    `json:"subscribed"`
	State           ProtocolState           `json:"state"`
	Context         syncmsg.Context         `json:"context,omitempty"`
	PendingContext  syncmsg.Context         `json:"pending_context,omitempty"`
	PreviousContext syncmsg.Context         `json:"previous_context,omitempty"`
	HostInfo        *syncmsg.ConnectionInfo `json:"host_info,omitempty"`
}

func newSession() Session {
	return Session{State: StateWaiting}
}

func (s Session) clone() Session {
	out := s
	out.Context = s.Context.Clone()
	out.PendingContext = s.PendingContext.Clone()
	out.PreviousContext = s.PreviousContext.Clone()
	if s.HostInfo != nil {
		hi := *s.HostInfo
		out.HostInfo = &hi
	}
	return out
}
