package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/Techcyte/context-sync/core/logx"
)

// WebSocketDialer dials channels with coder/websocket.
type WebSocketDialer struct {
	// Options are passed to websocket.Dial; nil uses the defaults.
	Options *websocket.DialOptions
	// QueueSize bounds the outbound queue; zero means 16.
	QueueSize int
	// ReadLimit overrides the per-message read limit when positive.
	ReadLimit int64
}

// Dial connects to url and returns a channel ready to Start.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, d.Options)
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	size := d.QueueSize
	if size <= 0 {
		size = 16
	}
	return newWSConn(c, url, size), nil
}

// flushTimeout bounds how long Close waits for queued frames to be written.
const flushTimeout = 2 * time.Second

type wsConn struct {
	c      *websocket.Conn
	url    string
	ctx    context.Context
	cancel context.CancelFunc
	sendCh chan []byte
	done   chan struct{}
	// flush asks the writer to drain sendCh and stop; flushed is closed when
	// the writer has returned.
	flush   chan struct{}
	flushed chan struct{}
	// mu orders enqueues against Close so nothing lands in sendCh after the
	// final drain.
	mu      sync.Mutex
	open    atomic.Bool
	closing atomic.Bool
	once    sync.Once
	started atomic.Bool
}

func newWSConn(c *websocket.Conn, url string, queue int) *wsConn {
	ctx, cancel := context.WithCancel(context.Background())
	w := &wsConn{
		c:       c,
		url:     url,
		ctx:     ctx,
		cancel:  cancel,
		sendCh:  make(chan []byte, queue),
		done:    make(chan struct{}),
		flush:   make(chan struct{}),
		flushed: make(chan struct{}),
	}
	w.open.Store(true)
	return w
}

func (w *wsConn) Start(ev Events) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.writeLoop()
	ev.Opened()
	go w.readLoop(ev)
}

func (w *wsConn) Open() bool { return w.open.Load() }

func (w *wsConn) Send(text []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open.Load() {
		return ErrNotOpen
	}
	select {
	case <-w.done:
		return ErrNotOpen
	default:
	}
	select {
	case w.sendCh <- text:
		return nil
	case <-w.done:
		return ErrNotOpen
	default:
		return ErrQueueFull
	}
}

// Close writes every frame already accepted by Send, then performs the close
// handshake.
func (w *wsConn) Close() error {
	if !w.closing.CompareAndSwap(false, true) {
		return nil
	}
	w.mu.Lock()
	w.open.Store(false)
	w.mu.Unlock()
	if w.started.Load() {
		close(w.flush)
		<-w.flushed
	}
	err := w.c.Close(websocket.StatusNormalClosure, "client closing")
	w.shutdown()
	return err
}

func (w *wsConn) shutdown() {
	w.once.Do(func() {
		w.open.Store(false)
		close(w.done)
		w.cancel()
	})
}

func (w *wsConn) writeLoop() {
	defer close(w.flushed)
	for {
		select {
		case <-w.done:
			return
		case <-w.flush:
			w.drain()
			return
		case msg := <-w.sendCh:
			if err := w.c.Write(w.ctx, websocket.MessageText, msg); err != nil {
				logx.Log.Debug().Err(err).Str("url", w.url).Msg("websocket write failed")
				w.shutdown()
				return
			}
		}
	}
}

// drain writes what is left in the queue before a local close.
func (w *wsConn) drain() {
	ctx, cancel := context.WithTimeout(w.ctx, flushTimeout)
	defer cancel()
	for {
		select {
		case msg := <-w.sendCh:
			if err := w.c.Write(ctx, websocket.MessageText, msg); err != nil {
				logx.Log.Warn().Err(err).Str("url", w.url).Int("dropped", len(w.sendCh)+1).Msg("flush before close failed")
				return
			}
		default:
			return
		}
	}
}

func (w *wsConn) readLoop(ev Events) {
	defer ev.Closed()
	defer w.shutdown()
	for {
		typ, data, err := w.c.Read(w.ctx)
		if err != nil {
			w.open.Store(false)
			if w.closing.Load() {
				return
			}
			var ce websocket.CloseError
			if errors.As(err, &ce) && (ce.Code == websocket.StatusNormalClosure || ce.Code == websocket.StatusGoingAway) {
				logx.Log.Info().Str("url", w.url).Str("reason", ce.Reason).Msg("peer closed connection")
				return
			}
			logx.Log.Warn().Err(err).Str("url", w.url).Msg("websocket read error")
			ev.Failed(err)
			return
		}
		ft := FrameText
		if typ == websocket.MessageBinary {
			ft = FrameBinary
		}
		ev.Received(Frame{Type: ft, Data: data})
	}
}
