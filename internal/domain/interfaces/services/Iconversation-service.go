package Iservices

import (
	"context"

	"portfolio-chat/internal/domain/dto"
	"portfolio-chat/internal/domain/entities"
)

// IConversationService defines the conversation log operations used by the HTTP handlers.
type IConversationService interface {
	LogTranscript(ctx context.Context, request dto.ChatLogRequest) error
	AppendTranscript(ctx context.Context, request dto.ChatLogRequest) error
	FindConversation(ctx context.Context, sessionID string) (entities.Conversation, error)
}
