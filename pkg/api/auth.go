package api

import "github.com/gin-gonic/gin"

// extractUser extracts the acting user from proxy headers.
// Priority: X-Forwarded-User (oauth2-proxy) > X-Forwarded-Email (oauth2-proxy) >
// X-Remote-User (kube-rbac-proxy) > configured default user
func (s *Server) extractUser(c *gin.Context) string {
	if user := c.GetHeader("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.GetHeader("X-Forwarded-Email"); email != "" {
		return email
	}
	if user := c.GetHeader("X-Remote-User"); user != "" {
		return user
	}
	return s.cfg.Chat.DefaultUser
}
