package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// stream upgrades the request and pushes every value the subscription sends
// as a JSON text frame until the client goes away.
func (h *APIHandler) stream(w http.ResponseWriter, r *http.Request, subscribe func(ctx context.Context, send func(v interface{})) (stop func())) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("path", r.URL.Path).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// send is only called from the subscription's goroutine.
	stop := subscribe(ctx, func(v interface{}) {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			h.log.Debug().Err(err).Msg("WebSocket write failed")
			cancel()
		}
	})
	defer stop()

	// Read loop only detects the client closing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
