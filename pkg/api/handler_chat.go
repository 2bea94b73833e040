package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/design-team/pkg/models"
)

// SSE event names used by POST /chats/:id/messages.
const (
	sseEventStep  = "step"
	sseEventDone  = "done"
	sseEventError = "error"
)

// startChatHandler handles POST /api/v1/chats.
func (s *Server) startChatHandler(c *gin.Context) {
	var req models.StartChatRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	resp, err := s.chatService.StartChat(c.Request.Context(), s.extractUser(c), req.ThreadID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// sendMessageHandler handles POST /api/v1/chats/:id/messages.
// Steps stream back as server-sent events while the team works; the
// stream ends with a "done" event.
func (s *Server) sendMessageHandler(c *gin.Context) {
	threadID := c.Param("id")

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "content is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		abortWithError(c, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > maxMessageLength {
		abortWithError(c, http.StatusBadRequest, "content exceeds maximum length of 100,000 characters")
		return
	}

	streaming := false
	startStream := func() {
		if streaming {
			return
		}
		streaming = true
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}

	err := s.chatService.SendMessage(c.Request.Context(), s.extractUser(c), threadID, req.Content, func(step models.Step) {
		startStream()
		c.SSEvent(sseEventStep, step)
		c.Writer.Flush()
	})
	if err != nil && !streaming {
		abortWithServiceError(c, err)
		return
	}

	startStream()
	if err != nil {
		_, msg := mapServiceError(err)
		c.SSEvent(sseEventError, ErrorResponse{Error: msg})
	}
	c.SSEvent(sseEventDone, gin.H{"thread_id": threadID})
	c.Writer.Flush()
}

// stopChatHandler handles POST /api/v1/chats/:id/stop.
func (s *Server) stopChatHandler(c *gin.Context) {
	threadID := c.Param("id")
	stopped := s.chatService.StopChat(threadID)
	c.JSON(http.StatusOK, StopChatResponse{ThreadID: threadID, Stopped: stopped})
}

// endChatHandler handles POST /api/v1/chats/:id/end.
func (s *Server) endChatHandler(c *gin.Context) {
	deleted, err := s.chatService.EndChat(c.Request.Context(), s.extractUser(c), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, DeleteResponse{Deleted: deleted})
}

// resumeChatHandler handles POST /api/v1/chats/:id/resume.
func (s *Server) resumeChatHandler(c *gin.Context) {
	threadID := c.Param("id")
	if err := s.chatService.ResumeChat(c.Request.Context(), s.extractUser(c), threadID); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ResumeChatResponse{ThreadID: threadID})
}
