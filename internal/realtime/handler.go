package realtime

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/oggyb/swipecook/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Clients are native apps and CLIs; identity comes from the token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades an authenticated request into a live connection.
// The token is read from the Authorization header or the token query
// parameter.
func HandleWebSocket(hub *Hub, identifier *auth.Identifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := identifier.FromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("websocket upgrade failed", "user", userID, "err", err)
			return
		}

		// The request context ends when this handler returns.
		ctx, cancel := context.WithCancel(context.Background())
		client := newClient(hub, userID, conn)

		if err := hub.Register(ctx, client); err != nil {
			cancel()
			code := "register_failed"
			if errors.Is(err, ErrTooManyConnections) {
				code = "too_many_devices"
			}
			client.reject(code, err.Error())
			return
		}

		go client.writePump()
		go func() {
			defer cancel()
			client.readPump(ctx)
		}()
	}
}
