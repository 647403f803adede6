package services

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"agent-event-gateway/internal/log"
)

// conversationsCollection maps external repository object keys (decimal PR
// numbers, issue node IDs) to internal agent conversation IDs. Documents are
// written by the PR-creation flow; this gateway only reads them.
const conversationsCollection = "pr_conversations"

// ConversationStore looks up the agent conversation associated with an
// external repository object. An absent association returns an empty ID and
// a nil error; it is not an error condition.
type ConversationStore interface {
	GetConversation(ctx context.Context, key string) (string, error)
}

// FirestoreConversationStore is the Firestore-backed ConversationStore.
type FirestoreConversationStore struct {
	client *firestore.Client
}

var _ ConversationStore = (*FirestoreConversationStore)(nil)

// NewFirestoreConversationStore creates a store backed by the given client.
func NewFirestoreConversationStore(client *firestore.Client) *FirestoreConversationStore {
	return &FirestoreConversationStore{client: client}
}

type conversationDoc struct {
	ConversationID string `firestore:"conversation_id"`
}

// GetConversation returns the conversation ID associated with key, or ""
// when no association exists.
func (s *FirestoreConversationStore) GetConversation(ctx context.Context, key string) (string, error) {
	doc, err := s.client.Collection(conversationsCollection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", nil
		}
		log.Error(ctx, "Failed to look up conversation association",
			"error", err,
			"key", key,
			"operation", "get_conversation",
		)
		return "", fmt.Errorf("failed to get conversation for key %s: %w", key, err)
	}

	var rec conversationDoc
	if err := doc.DataTo(&rec); err != nil {
		log.Error(ctx, "Failed to unmarshal conversation association",
			"error", err,
			"key", key,
			"operation", "unmarshal_conversation",
		)
		return "", fmt.Errorf("failed to unmarshal conversation for key %s: %w", key, err)
	}
	return rec.ConversationID, nil
}
