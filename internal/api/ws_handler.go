/**
 * @description
 * This file contains the Gin HTTP handler for upgrading a standard HTTP connection
 * to a WebSocket connection. It serves as the entry point for all real-time clients.
 *
 * Key features:
 * - WebSocket Upgrade: Uses the `gorilla/websocket` library's `Upgrader` to handle
 *   the WebSocket handshake protocol.
 * - Origin Check: Browser origins must appear in ALLOWED_ORIGINS.
 * - Hub Registration: The new client is attached to the central `Hub` and subscribes
 *   to `market:<id>` and `prices:<feed>` channels over the socket.
 */

package api

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/predikt/backend/internal/websocket"
)

func (s *Server) upgrader() gorillaWS.Upgrader {
	return gorillaWS.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(s.config.AllowedOrigins, origin)
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// serveWs handles websocket requests from the peer.
func (s *Server) serveWs(c *gin.Context) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("failed to upgrade connection to websocket", "error", err, "remote_addr", c.ClientIP())
		return
	}

	client := websocket.NewClient(s.hub, conn, s.logger)
	if !s.hub.Attach(client) {
		s.logger.Warn("hub stopped, rejecting websocket client", "remote_addr", conn.RemoteAddr())
		conn.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}
