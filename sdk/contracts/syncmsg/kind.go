package syncmsg

// Kind discriminates messages on the wire.
type Kind string

const (
	KindSubscriptionRequest  Kind = "subscription_request"
	KindSubscriptionAccept   Kind = "subscription_accept"
	KindSubscriptionReject   Kind = "subscription_reject"
	KindContextChangeRequest Kind = "context_change_request"
	KindContextChangeAccept  Kind = "context_change_accept"
	KindContextChangeReject  Kind = "context_change_reject"
	KindEmptyContext         Kind = "empty_context"
	KindOutOfSyncError       Kind = "out_of_sync_error"
)

// legacyKinds maps the short spellings emitted by older hosts.
var legacyKinds = map[string]Kind{
	"sub-request":        KindSubscriptionRequest,
	"sync-request":       KindSubscriptionRequest,
	"sync-accept":        KindSubscriptionAccept,
	"sync-reject":        KindSubscriptionReject,
	"sub-accept":         KindSubscriptionAccept,
	"sub-reject":         KindSubscriptionReject,
	"ctx-change-request": KindContextChangeRequest,
	"ctx-change-accept":  KindContextChangeAccept,
	"ctx-change-reject":  KindContextChangeReject,
	"ctx-null":           KindEmptyContext,
	"sync-error":         KindOutOfSyncError,
}

// Known reports whether k is one of the eight defined kinds.
func (k Kind) Known() bool {
	switch k {
	case KindSubscriptionRequest, KindSubscriptionAccept, KindSubscriptionReject,
		KindContextChangeRequest, KindContextChangeAccept, KindContextChangeReject,
		KindEmptyContext, KindOutOfSyncError:
		return true
	}
	return false
}

// HostOnly reports whether only the host may originate messages of kind k.
func (k Kind) HostOnly() bool {
	return k == KindSubscriptionAccept || k == KindSubscriptionReject
}

// ClientOnly reports whether only the client may originate messages of kind k.
func (k Kind) ClientOnly() bool {
	return k == KindSubscriptionRequest
}

// normalizeKind resolves legacy spellings to their canonical kind.
func normalizeKind(s string) Kind {
	if k, ok := legacyKinds[s]; ok {
		return k
	}
	return Kind(s)
}
