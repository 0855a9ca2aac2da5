package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"portfolio-chat/internal/domain/dto"
	"portfolio-chat/internal/domain/entities"
	"portfolio-chat/internal/domain/interfaces/repository"
	"portfolio-chat/internal/infra/logger"
	"portfolio-chat/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

var ErrMissingFields = errors.New("Missing required fields")

// keyFunc names a message that has no usable messageId. sig identifies the message content
// and n counts earlier messages with the same sig in the batch.
type keyFunc func(sig string, n int, now time.Time) string

// mergeFunc decides the stored message list from the current one and the incoming one.
type mergeFunc func(stored, incoming []entities.StoredMessage) []entities.StoredMessage

// ConversationService is the service responsible for conversation upserts.
type ConversationService struct {
	Repository repository.ConversationRepository
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// NewConversationService creates a new instance of the service.
func NewConversationService(repo repository.ConversationRepository, logger *logger.Logger, m *metrics.Metrics) *ConversationService {
	return &ConversationService{
		Repository: repo,
		Logger:     logger,
		Metrics:    m,
		Now:        time.Now,
	}
}

// LogTranscript upserts the session's conversation, replacing its message list with the
// request's. Repeated calls for the same session converge to the last sent transcript.
func (cs *ConversationService) LogTranscript(ctx context.Context, request dto.ChatLogRequest) error {
	return cs.upsert(ctx, request, replaceMessages, randomKey)
}

// AppendTranscript upserts the session's conversation, appending only the messages whose
// key is not already stored. Messages without a messageId are keyed by their content, so
// resending the same messages is a no-op on the list.
func (cs *ConversationService) AppendTranscript(ctx context.Context, request dto.ChatLogRequest) error {
	return cs.upsert(ctx, request, appendMessages, contentKey)
}

// FindConversation retrieves a conversation by session id.
func (cs *ConversationService) FindConversation(ctx context.Context, sessionID string) (entities.Conversation, error) {
	conversation, err := cs.Repository.FindBySessionID(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		cs.Logger.Error(fmt.Sprintf("Failed to find conversation for session '%s': %v", sessionID, err))
	}
	return conversation, err
}

func (cs *ConversationService) upsert(ctx context.Context, request dto.ChatLogRequest, merge mergeFunc, key keyFunc) error {
	if err := validate(request); err != nil {
		cs.Logger.Warn("Chat log validation failed", logrus.Fields{
			"email_present":   request.Email != "",
			"session_present": request.SessionID != "",
			"message_count":   len(request.Messages),
		})
		return err
	}

	now := cs.Now().UTC().Format(time.RFC3339Nano)
	lastMessageAt := request.Messages[len(request.Messages)-1].Timestamp
	if lastMessageAt == "" {
		lastMessageAt = now
	}
	incoming := toStoredMessages(request.Messages, cs.Now(), key)

	fields := logrus.Fields{"session_id": request.SessionID, "email": request.Email, "message_count": len(request.Messages)}

	existing, err := cs.Repository.FindBySessionID(ctx, request.SessionID)
	switch {
	case err == nil:
		cs.Logger.Info("Found existing conversation", fields, logrus.Fields{"conversation_id": existing.ID})
		return cs.update(ctx, existing, request.Email, merge(existing.Messages, incoming), lastMessageAt, metrics.OpUpdate)
	case !errors.Is(err, repository.ErrNotFound):
		cs.Logger.Error(fmt.Sprintf("Failed to look up conversation: %v", err), fields)
		return err
	}

	created, err := cs.Repository.Create(ctx, entities.Conversation{
		SessionID:     request.SessionID,
		Email:         request.Email,
		Status:        entities.StatusActive,
		StartedAt:     now,
		LastMessageAt: lastMessageAt,
		Messages:      incoming,
	})
	if errors.Is(err, repository.ErrDuplicateSession) {
		// Another request created the document between our lookup and insert.
		winner, findErr := cs.Repository.FindBySessionID(ctx, request.SessionID)
		if findErr != nil {
			cs.Logger.Error(fmt.Sprintf("Failed to reload conversation after duplicate create: %v", findErr), fields)
			return findErr
		}
		cs.Logger.Warn("Conversation created concurrently, retrying as update", fields, logrus.Fields{"conversation_id": winner.ID})
		return cs.update(ctx, winner, request.Email, merge(winner.Messages, incoming), lastMessageAt, metrics.OpDuplicateRetry)
	}
	if err != nil {
		cs.Logger.Error(fmt.Sprintf("Failed to create conversation: %v", err), fields)
		return err
	}

	cs.Metrics.ObserveWrite(metrics.OpCreate, len(created.Messages))
	cs.Logger.Info("Created conversation", fields, logrus.Fields{"conversation_id": created.ID})
	return nil
}

func (cs *ConversationService) update(ctx context.Context, existing entities.Conversation, email string, messages []entities.StoredMessage, lastMessageAt, op string) error {
	patch := entities.ConversationPatch{
		Messages:      messages,
		LastMessageAt: lastMessageAt,
		Status:        entities.StatusActive,
	}
	// The stored address is only ever upgraded from a placeholder, never rewritten.
	if entities.IsPlaceholderEmail(existing.Email) && !entities.IsPlaceholderEmail(email) {
		patch.Email = &email
	}

	if err := cs.Repository.Patch(ctx, existing.ID, patch); err != nil {
		cs.Logger.Error(fmt.Sprintf("Failed to update conversation '%s': %v", existing.ID, err))
		return err
	}

	cs.Metrics.ObserveWrite(op, len(messages))
	cs.Logger.Info("Updated conversation", logrus.Fields{
		"conversation_id":  existing.ID,
		"session_id":       existing.SessionID,
		"previous_count":   len(existing.Messages),
		"message_count":    len(messages),
		"email_identified": patch.Email != nil,
	})
	return nil
}

func validate(request dto.ChatLogRequest) error {
	if strings.TrimSpace(request.Email) == "" || strings.TrimSpace(request.SessionID) == "" || len(request.Messages) == 0 {
		return ErrMissingFields
	}
	return nil
}

// toStoredMessages keys each message by its messageId, or by fallback when the id is
// absent or already used earlier in the same batch.
func toStoredMessages(messages []dto.ChatMessage, now time.Time, fallback keyFunc) []entities.StoredMessage {
	stored := make([]entities.StoredMessage, 0, len(messages))
	used := make(map[string]struct{}, len(messages))
	occurrences := make(map[string]int)

	for _, m := range messages {
		key := m.MessageID
		if _, dup := used[key]; key == "" || dup {
			sig := strings.Join([]string{m.MessageID, m.Role, m.Content, m.Timestamp}, "\x00")
			key = fallback(sig, occurrences[sig], now)
			occurrences[sig]++
		}
		used[key] = struct{}{}

		stored = append(stored, entities.StoredMessage{
			Key:       key,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return stored
}

// randomKey returns a fresh msg_<ulid>.
func randomKey(_ string, _ int, now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader)
	return "msg_" + strings.ToLower(id.String())
}

// contentKey returns msg_ followed by a name-based UUID of the message, stable across resends.
func contentKey(sig string, n int, _ time.Time) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s\x00%d", sig, n)))
	return "msg_" + strings.ReplaceAll(id.String(), "-", "")
}

func replaceMessages(_, incoming []entities.StoredMessage) []entities.StoredMessage {
	return incoming
}

func appendMessages(stored, incoming []entities.StoredMessage) []entities.StoredMessage {
	merged := append([]entities.StoredMessage(nil), stored...)
	seen := make(map[string]struct{}, len(stored))
	for _, m := range stored {
		seen[m.Key] = struct{}{}
	}
	for _, m := range incoming {
		if _, ok := seen[m.Key]; ok {
			continue
		}
		seen[m.Key] = struct{}{}
		merged = append(merged, m)
	}
	return merged
}
