package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/design-team/pkg/models"
	"github.com/codeready-toolchain/design-team/pkg/services"
)

// listThreadsHandler handles GET /api/v1/threads.
func (s *Server) listThreadsHandler(c *gin.Context) {
	page := models.Pagination{First: services.DefaultPageSize, Cursor: c.Query("cursor")}
	if v := c.Query("first"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxPageSize {
			abortWithError(c, http.StatusBadRequest, "invalid first: must be between 1 and "+strconv.Itoa(maxPageSize))
			return
		}
		page.First = n
	}
	filter := models.ThreadFilter{
		Search: c.Query("search"),
		UserID: c.Query("user_id"),
	}

	result, err := s.threadService.ListThreads(c.Request.Context(), page, filter)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// getThreadHandler handles GET /api/v1/threads/:id.
func (s *Server) getThreadHandler(c *gin.Context) {
	thread, err := s.threadService.GetThread(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

// getThreadAuthorHandler handles GET /api/v1/threads/:id/author.
func (s *Server) getThreadAuthorHandler(c *gin.Context) {
	threadID := c.Param("id")
	author, err := s.threadService.GetThreadAuthor(c.Request.Context(), threadID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ThreadAuthorResponse{ThreadID: threadID, Author: author})
}

// deleteThreadHandler handles DELETE /api/v1/threads/:id.
// Deleting a thread that is already gone succeeds.
func (s *Server) deleteThreadHandler(c *gin.Context) {
	threadID := c.Param("id")
	err := s.threadService.DeleteThread(c.Request.Context(), threadID)
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusOK, DeleteResponse{Deleted: true})
		return
	}
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	if s.eventPublisher != nil {
		if pubErr := s.eventPublisher.PublishThreadDeleted(threadID); pubErr != nil {
			slog.Warn("Failed to publish thread.deleted event", "thread_id", threadID, "error", pubErr)
		}
	}
	c.JSON(http.StatusOK, DeleteResponse{Deleted: true})
}

// updateThreadHandler handles PATCH /api/v1/threads/:id. Accepted, not stored.
func (s *Server) updateThreadHandler(c *gin.Context) {
	var req services.ThreadUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.threadService.UpdateThread(c.Request.Context(), c.Param("id"), req); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// getElementHandler handles GET /api/v1/threads/:id/elements/:element_id.
func (s *Server) getElementHandler(c *gin.Context) {
	el, err := s.threadService.GetElement(c.Request.Context(), c.Param("id"), c.Param("element_id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if el == nil {
		abortWithError(c, http.StatusNotFound, "resource not found")
		return
	}
	c.JSON(http.StatusOK, el)
}

// createElementHandler handles POST /api/v1/threads/:id/elements.
func (s *Server) createElementHandler(c *gin.Context) {
	var el models.Element
	if err := c.ShouldBindJSON(&el); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	el.ThreadID = c.Param("id")
	if err := s.threadService.CreateElement(c.Request.Context(), el); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteElementHandler handles DELETE /api/v1/threads/:id/elements/:element_id.
func (s *Server) deleteElementHandler(c *gin.Context) {
	if err := s.threadService.DeleteElement(c.Request.Context(), c.Param("id"), c.Param("element_id")); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// createStepHandler handles POST /api/v1/steps.
func (s *Server) createStepHandler(c *gin.Context) {
	var step models.Step
	if err := c.ShouldBindJSON(&step); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.threadService.CreateStep(c.Request.Context(), step); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// updateStepHandler handles PATCH /api/v1/steps/:id.
func (s *Server) updateStepHandler(c *gin.Context) {
	var step models.Step
	if err := c.ShouldBindJSON(&step); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	step.ID = c.Param("id")
	if err := s.threadService.UpdateStep(c.Request.Context(), step); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteStepHandler handles DELETE /api/v1/steps/:id.
func (s *Server) deleteStepHandler(c *gin.Context) {
	if err := s.threadService.DeleteStep(c.Request.Context(), c.Param("id")); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// getUserHandler handles GET /api/v1/users/:identifier.
func (s *Server) getUserHandler(c *gin.Context) {
	user, err := s.threadService.GetUser(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if user == nil {
		abortWithError(c, http.StatusNotFound, "resource not found")
		return
	}
	c.JSON(http.StatusOK, user)
}

// createUserHandler handles POST /api/v1/users.
func (s *Server) createUserHandler(c *gin.Context) {
	var req models.User
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Identifier == "" {
		abortWithError(c, http.StatusBadRequest, "identifier is required")
		return
	}
	user, err := s.threadService.CreateUser(c.Request.Context(), req)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// upsertFeedbackHandler handles PUT /api/v1/feedback.
func (s *Server) upsertFeedbackHandler(c *gin.Context) {
	var req models.Feedback
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.threadService.UpsertFeedback(c.Request.Context(), req)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, FeedbackResponse{ID: id})
}

// deleteFeedbackHandler handles DELETE /api/v1/feedback/:id.
func (s *Server) deleteFeedbackHandler(c *gin.Context) {
	deleted, err := s.threadService.DeleteFeedback(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, DeleteResponse{Deleted: deleted})
}
