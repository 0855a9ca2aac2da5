package repository

import (
	"context"
	"errors"
	"fmt"

	"portfolio-chat/internal/domain/entities"
	"portfolio-chat/internal/domain/interfaces/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(repository.CONVERSATION_COLLECTION)}
}

// EnsureIndexes creates the unique sessionId index that backs the one-document-per-session rule.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sessionId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("sessionId_unique"),
	})
	if err != nil {
		return fmt.Errorf("failed to create sessionId index: %w", err)
	}
	return nil
}

func (r *MongoRepository) FindBySessionID(ctx context.Context, sessionID string) (entities.Conversation, error) {
	var conversation entities.Conversation
	err := r.collection.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&conversation)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return entities.Conversation{}, repository.ErrNotFound
	}
	if err != nil {
		return entities.Conversation{}, fmt.Errorf("failed to find conversation: %w", err)
	}
	return conversation, nil
}

func (r *MongoRepository) Create(ctx context.Context, conversation entities.Conversation) (entities.Conversation, error) {
	if conversation.ID == "" {
		conversation.ID = primitive.NewObjectID().Hex()
	}

	_, err := r.collection.InsertOne(ctx, conversation)
	if mongo.IsDuplicateKeyError(err) {
		return entities.Conversation{}, repository.ErrDuplicateSession
	}
	if err != nil {
		return entities.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

func (r *MongoRepository) Patch(ctx context.Context, id string, patch entities.ConversationPatch) error {
	set := bson.M{
		"messages":      patch.Messages,
		"lastMessageAt": patch.LastMessageAt,
		"status":        patch.Status,
	}
	if patch.Email != nil {
		set["email"] = *patch.Email
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to patch conversation %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
