// Package ctxsync keeps a shared context (e.g. the active case) synchronized
// with a remote host over a transport channel.
//
// The Engine owns the session state and enforces which message kinds may be
// sent in which state. Client is the public facade: it serializes transport
// events and caller operations onto the engine and fires the caller's
// Handlers after each step, outside of its lock, so handlers may call back
// into the Client.
package ctxsync
