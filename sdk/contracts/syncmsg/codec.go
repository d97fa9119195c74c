package syncmsg

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed wraps payloads that are not a JSON object envelope.
	ErrMalformed = errors.New("syncmsg: malformed message")
	// ErrMissingKind is returned when the envelope has no kind.
	ErrMissingKind = errors.New("syncmsg: missing kind")
)

// envelope is the flat JSON shape seen on the wire.
type envelope struct {
	Kind           string        `json:"kind"`
	Info           *wireInfo     `json:"info,omitempty"`
	Context        Context       `json:"context,omitempty"`
	CurrentContext Context       `json:"current_context,omitempty"`
	Rejection      *Rejection    `json:"rejection,omitempty"`
	Error          *MessageError `json:"error,omitempty"`
}

type wireInfo struct {
	Version               int    `json:"version"`
	Application           string `json:"application"`
	Timeout               *int   `json:"timeout,omitempty"`
	ReplaceExistingClient *bool  `json:"replace_existing_client,omitempty"`
	// older hosts misspell the replace flag
	LegacyReplace *bool `json:"replace_exiting_client,omitempty"`
}

func toWireInfo(ci *ConnectionInfo) *wireInfo {
	if ci == nil {
		return nil
	}
	return &wireInfo{
		Version:               ci.Version,
		Application:           ci.Application,
		Timeout:               ci.Timeout,
		ReplaceExistingClient: ci.ReplaceExistingClient,
	}
}

func (w *wireInfo) info() *ConnectionInfo {
	if w == nil {
		return nil
	}
	ci := &ConnectionInfo{
		Version:               w.Version,
		Application:           w.Application,
		Timeout:               w.Timeout,
		ReplaceExistingClient: w.ReplaceExistingClient,
	}
	if ci.ReplaceExistingClient == nil {
		ci.ReplaceExistingClient = w.LegacyReplace
	}
	return ci
}

// Encode serializes m into its wire text.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	env := envelope{Kind: string(m.Kind())}
	switch v := m.(type) {
	case SubscriptionRequest:
		env.Info = toWireInfo(&v.Info)
	case SubscriptionAccept:
		env.Info = toWireInfo(v.Info)
		env.Context = v.Context
	case SubscriptionReject:
		env.Info = toWireInfo(v.Info)
		rej := v.Rejection
		env.Rejection = &rej
	case ContextChangeRequest:
		env.Context = v.Context
	case ContextChangeAccept:
		env.Context = v.Context
	case ContextChangeReject:
		env.Context = v.Context
		env.CurrentContext = v.CurrentContext
		rej := v.Rejection
		env.Rejection = &rej
	case EmptyContext:
	case OutOfSyncError:
		e := v.Error
		env.Error = &e
		env.Context = v.Context
		env.CurrentContext = v.CurrentContext
	case Unknown:
		if v.Name == "" {
			return nil, ErrMissingKind
		}
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrMalformed, m)
	}
	return json.Marshal(env)
}

// Decode parses wire text into the variant matching its kind. Fields that are
// irrelevant to the kind are dropped. Unrecognized kinds decode to Unknown.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Kind == "" {
		return nil, ErrMissingKind
	}
	kind := normalizeKind(env.Kind)
	switch kind {
	case KindSubscriptionRequest:
		var info ConnectionInfo
		if ci := env.Info.info(); ci != nil {
			info = *ci
		}
		return SubscriptionRequest{Info: info}, nil
	case KindSubscriptionAccept:
		return SubscriptionAccept{Info: env.Info.info(), Context: env.Context}, nil
	case KindSubscriptionReject:
		return SubscriptionReject{Info: env.Info.info(), Rejection: derefRejection(env.Rejection)}, nil
	case KindContextChangeRequest:
		return ContextChangeRequest{Context: env.Context}, nil
	case KindContextChangeAccept:
		return ContextChangeAccept{Context: env.Context}, nil
	case KindContextChangeReject:
		return ContextChangeReject{
			Context:        env.Context,
			CurrentContext: env.CurrentContext,
			Rejection:      derefRejection(env.Rejection),
		}, nil
	case KindEmptyContext:
		return EmptyContext{}, nil
	case KindOutOfSyncError:
		var me MessageError
		if env.Error != nil {
			me = *env.Error
		}
		return OutOfSyncError{Error: me, Context: env.Context, CurrentContext: env.CurrentContext}, nil
	default:
		return Unknown{Name: kind}, nil
	}
}

func derefRejection(r *Rejection) Rejection {
	if r == nil {
		return Rejection{}
	}
	return *r
}
