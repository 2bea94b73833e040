package models

// StartChatRequest opens (or reopens) a chat thread.
type StartChatRequest struct {
	ThreadID string `json:"thread_id,omitempty"`
}

// StartChatResponse is returned when a chat thread is opened.
type StartChatResponse struct {
	ThreadID string `json:"thread_id"`
	Welcome  Step   `json:"welcome"`
}

// SendMessageRequest carries one user turn.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}
