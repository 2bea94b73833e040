package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// wsHandler upgrades HTTP connections to WebSocket and delegates to ConnectionManager.
func (s *Server) wsHandler(c *gin.Context) {
	if s.connManager == nil {
		abortWithError(c, http.StatusServiceUnavailable, "WebSocket not available")
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		slog.Warn("WebSocket upgrade failed", "origin", c.GetHeader("Origin"), "error", err)
		return
	}

	// HandleConnection blocks until the WebSocket closes.
	s.connManager.HandleConnection(c.Request.Context(), conn)
}
