package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/design-team/pkg/services"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// mapServiceError maps service-layer errors to an HTTP status and message.
func mapServiceError(err error) (int, string) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return http.StatusBadRequest, validErr.Error()
	}
	if errors.Is(err, services.ErrNotFound) {
		return http.StatusNotFound, "resource not found"
	}
	if errors.Is(err, services.ErrRunInProgress) {
		return http.StatusConflict, "the design team is already working on this thread"
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return http.StatusConflict, "resource already exists"
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return http.StatusInternalServerError, "internal server error"
}

// abortWithServiceError writes the mapped error and stops the chain.
func abortWithServiceError(c *gin.Context, err error) {
	status, msg := mapServiceError(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}

// abortWithError writes an error with an explicit status.
func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}
