package repository

import (
	"context"
	"errors"

	"portfolio-chat/internal/domain/entities"
)

const CONVERSATION_COLLECTION = "conversations"

var (
	ErrNotFound         = errors.New("conversation not found")
	ErrDuplicateSession = errors.New("conversation already exists for session")
)

// ConversationRepository stores one document per session id.
type ConversationRepository interface {
	// FindBySessionID returns ErrNotFound when no document matches.
	FindBySessionID(ctx context.Context, sessionID string) (entities.Conversation, error)
	// Create returns ErrDuplicateSession when a document for the session already exists.
	Create(ctx context.Context, conversation entities.Conversation) (entities.Conversation, error)
	// Patch sets the given fields on the document with the given id.
	Patch(ctx context.Context, id string, patch entities.ConversationPatch) error
}
