package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"waitboard/internal/store"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Screens are served from the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsPingInterval = 15 * time.Second

// Watch handles GET /api/ws. It sends the current revision, then relays every
// store change until the screen disconnects.
func (h *Handler) Watch(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	st := h.session.Store
	changes := st.Subscribe()
	defer st.Unsubscribe(changes)

	initial := store.Change{Revision: st.Revision(), Kind: store.ChangeSnapshot}
	if err := conn.WriteJSON(initial); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go drain(conn, done)

	for {
		select {
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := conn.WriteJSON(change); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// drain discards client messages and closes done when the peer goes away.
func drain(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
