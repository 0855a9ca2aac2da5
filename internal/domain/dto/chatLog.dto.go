package dto

// ChatLogRequest is the body of POST /api/chat/log and /api/chat/log/append.
type ChatLogRequest struct {
	Email     string        `json:"email"`
	SessionID string        `json:"sessionId"`
	Messages  []ChatMessage `json:"messages"`
}

type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	MessageID string `json:"messageId,omitempty"`
}

type ChatLogResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
