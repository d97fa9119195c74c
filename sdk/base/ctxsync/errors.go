package ctxsync

import (
	"errors"
	"fmt"

	"github.com/Techcyte/context-sync/sdk/contracts/syncmsg"
)

// ErrorKind classifies failures delivered to Handlers.OnError.
type ErrorKind string

const (
	KindTransportNotOpen  ErrorKind = "TransportNotOpen"
	KindNotSubscribed     ErrorKind = "NotSubscribed"
	KindInErrorState      ErrorKind = "InErrorState"
	KindProtocolViolation ErrorKind = "ProtocolViolation"
	KindUnexpectedKind    ErrorKind = "UnexpectedKind"
	KindDecodeError       ErrorKind = "DecodeError"
	KindEncodeError       ErrorKind = "EncodeError"
	KindTransportError    ErrorKind = "TransportError"
	KindOutOfSync         ErrorKind = "OutOfSync"
	KindNothingPending    ErrorKind = "NothingPending"
)

// Sentinels matched by Error.Is.
var (
	ErrTransportNotOpen  = errors.New("ctxsync: transport not open")
	ErrNotSubscribed     = errors.New("ctxsync: not subscribed")
	ErrInErrorState      = errors.New("ctxsync: session in error state")
	ErrProtocolViolation = errors.New("ctxsync: protocol violation")
	ErrUnexpectedKind    = errors.New("ctxsync: unexpected message kind")
	ErrDecode            = errors.New("ctxsync: cannot decode message")
	ErrEncode            = errors.New("ctxsync: cannot encode message")
	ErrTransport         = errors.New("ctxsync: transport failure")
	ErrOutOfSync         = errors.New("ctxsync: peer reported desync")
	ErrNothingPending    = errors.New("ctxsync: no pending context change")
	ErrConnectInProgress = errors.New("ctxsync: connect already in progress")
)

var sentinels = map[ErrorKind]error{
	KindTransportNotOpen:  ErrTransportNotOpen,
	KindNotSubscribed:     ErrNotSubscribed,
	KindInErrorState:      ErrInErrorState,
	KindProtocolViolation: ErrProtocolViolation,
	KindUnexpectedKind:    ErrUnexpectedKind,
	KindDecodeError:       ErrDecode,
	KindEncodeError:       ErrEncode,
	KindTransportError:    ErrTransport,
	KindOutOfSync:         ErrOutOfSync,
	KindNothingPending:    ErrNothingPending,
}

// Error is the single failure type reported by the engine. It is both
// returned to the caller and delivered to Handlers.OnError.
type Error struct {
	Kind    ErrorKind
	Status  syncmsg.StatusCode
	Message string
	// MessageKind is the wire kind involved, when there is one.
	MessageKind syncmsg.Kind
	Err         error
}

func newError(kind ErrorKind, status syncmsg.StatusCode, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: status, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ctxsync: %s (%d): %s: %v", e.Kind, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("ctxsync: %s (%d): %s", e.Kind, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel associated with the error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}
