package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/design-team/pkg/database"
	"github.com/codeready-toolchain/design-team/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health.
// Only the database is checked; the LLM provider is external and an outage
// there should not get the server restarted.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:  healthStatusHealthy,
		Version: version.Full(),
	}
	if s.connManager != nil {
		resp.Connections = s.connManager.ActiveConnections()
	}

	dbHealth, err := database.Health(reqCtx, s.dbClient)
	resp.Database = dbHealth
	if err != nil {
		resp.Status = healthStatusUnhealthy
		resp.Error = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
