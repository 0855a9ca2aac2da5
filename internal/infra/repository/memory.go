package repository

import (
	"context"
	"fmt"
	"sync"

	"portfolio-chat/internal/domain/entities"
	"portfolio-chat/internal/domain/interfaces/repository"
)

// MemoryRepository keeps conversations in process memory. It enforces the same
// unique sessionId rule as the Mongo index.
type MemoryRepository struct {
	mu        sync.Mutex
	seq       int
	byID      map[string]entities.Conversation
	bySession map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[string]entities.Conversation),
		bySession: make(map[string]string),
	}
}

func (r *MemoryRepository) FindBySessionID(_ context.Context, sessionID string) (entities.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bySession[sessionID]
	if !ok {
		return entities.Conversation{}, repository.ErrNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) Create(_ context.Context, conversation entities.Conversation) (entities.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySession[conversation.SessionID]; exists {
		return entities.Conversation{}, repository.ErrDuplicateSession
	}
	if conversation.ID == "" {
		r.seq++
		conversation.ID = fmt.Sprintf("conversation-%d", r.seq)
	}

	r.byID[conversation.ID] = clone(conversation)
	r.bySession[conversation.SessionID] = conversation.ID
	return conversation, nil
}

func (r *MemoryRepository) Patch(_ context.Context, id string, patch entities.ConversationPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}

	conversation.Messages = append([]entities.StoredMessage(nil), patch.Messages...)
	conversation.LastMessageAt = patch.LastMessageAt
	conversation.Status = patch.Status
	if patch.Email != nil {
		conversation.Email = *patch.Email
	}
	r.byID[id] = conversation
	return nil
}

// Count returns the number of stored conversations.
func (r *MemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func clone(c entities.Conversation) entities.Conversation {
	c.Messages = append([]entities.StoredMessage(nil), c.Messages...)
	return c
}
