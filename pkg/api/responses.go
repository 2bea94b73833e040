package api

import "github.com/codeready-toolchain/design-team/pkg/database"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	Database    *database.HealthStatus `json:"database,omitempty"`
	Connections int                    `json:"websocket_connections"`
	Error       string                 `json:"error,omitempty"`
}

// ThreadAuthorResponse is returned by GET /api/v1/threads/:id/author.
type ThreadAuthorResponse struct {
	ThreadID string `json:"thread_id"`
	Author   string `json:"author"`
}

// DeleteResponse is returned by delete-style endpoints.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// FeedbackResponse is returned by PUT /api/v1/feedback.
type FeedbackResponse struct {
	ID string `json:"id"`
}

// StopChatResponse is returned by POST /api/v1/chats/:id/stop.
type StopChatResponse struct {
	ThreadID string `json:"thread_id"`
	Stopped  bool   `json:"stopped"`
}

// ResumeChatResponse is returned by POST /api/v1/chats/:id/resume.
type ResumeChatResponse struct {
	ThreadID string `json:"thread_id"`
}
