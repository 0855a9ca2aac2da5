package entities

import "strings"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	StatusActive = "active"

	// PlaceholderEmail is sent by the widget until the visitor shares an address.
	PlaceholderEmail = "pending@temp.local"
)

// Conversation is the single stored document per chat session.
type Conversation struct {
	ID            string          `json:"_id,omitempty" bson:"_id,omitempty"`
	SessionID     string          `json:"sessionId" bson:"sessionId"`
	Email         string          `json:"email" bson:"email"`
	Status        string          `json:"status" bson:"status"`
	StartedAt     string          `json:"startedAt" bson:"startedAt"`
	LastMessageAt string          `json:"lastMessageAt" bson:"lastMessageAt"`
	Messages      []StoredMessage `json:"messages" bson:"messages"`
}

// StoredMessage is one turn of a conversation. Key is unique within the document.
type StoredMessage struct {
	Key       string `json:"_key" bson:"_key"`
	Role      string `json:"role" bson:"role"`
	Content   string `json:"content" bson:"content"`
	Timestamp string `json:"timestamp" bson:"timestamp"`
}

// ConversationPatch lists the fields rewritten on an existing conversation.
// A nil Email leaves the stored address untouched.
type ConversationPatch struct {
	Messages      []StoredMessage
	LastMessageAt string
	Status        string
	Email         *string
}

// IsPlaceholderEmail reports whether email is one of the stand-ins used before the
// visitor is identified.
func IsPlaceholderEmail(email string) bool {
	return email == PlaceholderEmail || strings.HasSuffix(email, "@pending.local")
}
