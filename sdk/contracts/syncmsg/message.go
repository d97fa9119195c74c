package syncmsg

// ConnectionInfo travels with subscription messages. Timeout is advertised by
// hosts in seconds; neither it nor ReplaceExistingClient is enforced by the
// codec.
type ConnectionInfo struct {
	Version               int    `json:"version"`
	Application           string `json:"application"`
	Timeout               *int   `json:"timeout,omitempty"`
	ReplaceExistingClient *bool  `json:"replace_existing_client,omitempty"`
}

// Rejection explains why a subscription or context change was refused.
type Rejection struct {
	Reason string     `json:"reason"`
	Status StatusCode `json:"status"`
}

// MessageError is the payload of an out_of_sync_error message.
type MessageError struct {
	Message string     `json:"message"`
	Status  StatusCode `json:"status"`
}

// Message is implemented by every variant below. Each variant carries only the
// payload meaningful for its kind.
type Message interface {
	Kind() Kind
	isMessage()
}

type SubscriptionRequest struct {
	Info ConnectionInfo
}

type SubscriptionAccept struct {
	Info    *ConnectionInfo
	Context Context
}

type SubscriptionReject struct {
	Info      *ConnectionInfo
	Rejection Rejection
}

type ContextChangeRequest struct {
	Context Context
}

type ContextChangeAccept struct {
	Context Context
}

// ContextChangeReject names the refused proposal in Context and the sender's
// committed context in CurrentContext.
type ContextChangeReject struct {
	Context        Context
	CurrentContext Context
	Rejection      Rejection
}

type EmptyContext struct{}

type OutOfSyncError struct {
	Error          MessageError
	Context        Context
	CurrentContext Context
}

// Unknown holds a message whose kind is not part of the protocol. It is
// produced by Decode for forward compatibility and can be encoded by tests.
type Unknown struct {
	Name Kind
}

func (SubscriptionRequest) Kind() Kind  { return KindSubscriptionRequest }
func (SubscriptionAccept) Kind() Kind   { return KindSubscriptionAccept }
func (SubscriptionReject) Kind() Kind   { return KindSubscriptionReject }
func (ContextChangeRequest) Kind() Kind { return KindContextChangeRequest }
func (ContextChangeAccept) Kind() Kind  { return KindContextChangeAccept }
func (ContextChangeReject) Kind() Kind  { return KindContextChangeReject }
func (EmptyContext) Kind() Kind         { return KindEmptyContext }
func (OutOfSyncError) Kind() Kind       { return KindOutOfSyncError }
func (u Unknown) Kind() Kind            { return u.Name }

func (SubscriptionRequest) isMessage()  {}
func (SubscriptionAccept) isMessage()   {}
func (SubscriptionReject) isMessage()   {}
func (ContextChangeRequest) isMessage() {}
func (ContextChangeAccept) isMessage()  {}
func (ContextChangeReject) isMessage()  {}
func (EmptyContext) isMessage()         {}
func (OutOfSyncError) isMessage()       {}
func (Unknown) isMessage()              {}
