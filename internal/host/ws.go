package host

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/Techcyte/context-sync/core/logx"
)

// WSHandler accepts client channels. An empty originPatterns list accepts any
// origin, since context-sync clients are usually browser apps served from
// elsewhere.
func WSHandler(m *Manager, originPatterns []string) http.HandlerFunc {
	opts := &websocket.AcceptOptions{OriginPatterns: originPatterns}
	if len(originPatterns) == 0 {
		opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, opts)
		if err != nil {
			logx.Log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("ws accept")
			return
		}
		defer func() { _ = c.CloseNow() }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		p := m.Connect(r.RemoteAddr)
		// Disconnect may promote another client; it must not depend on the
		// request context that is about to end.
		defer m.Disconnect(context.WithoutCancel(ctx), p)

		go func() {
			for {
				select {
				case b := <-p.Outbound():
					if err := c.Write(ctx, websocket.MessageText, b); err != nil {
						logx.Log.Debug().Err(err).Str("client_id", p.ID).Msg("ws write")
						cancel()
						return
					}
				case <-p.Done():
					_ = c.Close(websocket.StatusNormalClosure, p.CloseReason())
					return
				case <-ctx.Done():
					return
				}
			}
		}()

		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				var ce websocket.CloseError
				if errors.As(err, &ce) {
					lvl := logx.Log.Info()
					if ce.Code != websocket.StatusNormalClosure && ce.Code != websocket.StatusGoingAway {
						lvl = logx.Log.Warn()
					}
					lvl.Str("client_id", p.ID).Int("code", int(ce.Code)).Str("reason", ce.Reason).Msg("channel closed")
				} else {
					logx.Log.Debug().Err(err).Str("client_id", p.ID).Msg("channel ended")
				}
				return
			}
			if typ != websocket.MessageText {
				logx.Log.Debug().Str("client_id", p.ID).Msg("ignoring binary frame")
				continue
			}
			m.Handle(ctx, p, data)
		}
	}
}
