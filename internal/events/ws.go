package events

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"stacnav/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // sessions are cookie-bound; tighten when serving cross-origin
	},
}

// WSHandler upgrades the request and streams the caller's session events.
// It must run behind session.Middleware.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := session.MustGet(c)
		if s == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		log := hub.log.WithField("session_id", s.ID)

		// welcome goes out before the writer goroutine owns the conn
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(EntityEvent{Type: TypeWelcome, SessionID: s.ID, At: time.Now().UTC()}); err != nil {
			_ = ws.Close()
			return
		}

		client := hub.Add(s.ID, ws)
		log.Info("ws client connected")

		// incoming messages are ignored; reading detects the close
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.Remove(client)
		log.Info("ws client disconnected")
	}
}
