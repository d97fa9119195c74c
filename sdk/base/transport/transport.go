// Package transport adapts an ordered, reliable, bidirectional text channel to
// the event contract consumed by the context-sync engine.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrNotOpen is returned by Send when the channel is not open.
	ErrNotOpen = errors.New("transport: channel not open")
	// ErrQueueFull is returned by Send when the outbound queue is saturated.
	ErrQueueFull = errors.New("transport: send queue full")
)

// FrameType distinguishes text from binary frames.
type FrameType int

const (
	FrameText FrameType = iota
	FrameBinary
)

func (t FrameType) String() string {
	if t == FrameText {
		return "text"
	}
	return "binary"
}

// Frame is one inbound unit as delivered by the peer.
type Frame struct {
	Type FrameType
	Data []byte
}

// Events receives the lifecycle of one connection: exactly one Opened, then
// zero or more Received, ending in exactly one Closed, possibly preceded by
// Failed. Calls are never concurrent and follow delivery order.
type Events interface {
	Opened()
	Received(f Frame)
	Failed(err error)
	Closed()
}

// Conn is an established channel.
type Conn interface {
	// Start begins event delivery. Opened is invoked before Start returns;
	// the remaining events are delivered from a reader goroutine.
	Start(ev Events)
	// Send queues a text frame. It fails with ErrNotOpen rather than
	// dropping when the channel is not open.
	Send(text []byte) error
	// Open reports whether the channel accepts sends.
	Open() bool
	// Close shuts the channel down. Closed is still delivered once.
	Close() error
}

// Dialer opens channels to a URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
