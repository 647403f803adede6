package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"agent-event-gateway/internal/log"
	"agent-event-gateway/internal/models"
)

var (
	ErrConversationIDRequired = errors.New("conversation ID is required")
	ErrEmptyParts             = errors.New("at least one content part is required")
)

// AgentNotifier delivers ordered content parts into an agent conversation.
type AgentNotifier interface {
	SendMessage(ctx context.Context, conversationID string, parts []models.ContentPart) error
}

// HTTPAgentNotifier delivers messages to the agent runtime over its HTTP API.
type HTTPAgentNotifier struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ AgentNotifier = (*HTTPAgentNotifier)(nil)

// NewHTTPAgentNotifier creates a notifier for the runtime at baseURL. A nil
// httpClient falls back to http.DefaultClient.
func NewHTTPAgentNotifier(baseURL, apiKey string, httpClient *http.Client) *HTTPAgentNotifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPAgentNotifier{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// SendMessage posts the parts to the conversation's message endpoint.
func (n *HTTPAgentNotifier) SendMessage(ctx context.Context, conversationID string, parts []models.ContentPart) error {
	if conversationID == "" {
		return ErrConversationIDRequired
	}
	if len(parts) == 0 {
		return ErrEmptyParts
	}

	body, err := json.Marshal(struct {
		Parts []models.ContentPart `json:"parts"`
	}{Parts: parts})
	if err != nil {
		return fmt.Errorf("failed to marshal message parts: %w", err)
	}

	endpoint := fmt.Sprintf("%s/conversations/%s/messages", n.baseURL, url.PathEscape(conversationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build agent runtime request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Error(ctx, "Failed to deliver message to agent runtime",
			"error", err,
			"conversation_id", conversationID,
			"operation", "send_message",
		)
		return fmt.Errorf("failed to deliver message to conversation %s: %w", conversationID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		log.Error(ctx, "Agent runtime rejected message",
			"status", resp.StatusCode,
			"conversation_id", conversationID,
			"operation", "send_message",
		)
		return fmt.Errorf("agent runtime rejected message for conversation %s with status %d", conversationID, resp.StatusCode)
	}

	log.Info(ctx, "Delivered message to agent runtime",
		"conversation_id", conversationID,
		"part_count", len(parts),
	)
	return nil
}
