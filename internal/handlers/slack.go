package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"agent-event-gateway/internal/log"
	"agent-event-gateway/internal/models"
	"agent-event-gateway/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// SlackEventsHandler handles Slack Events API callbacks: direct chat
// messages are normalized, enriched with resolved entities and attachments,
// and delivered into the matching agent conversation.
type SlackEventsHandler struct {
	extractor     *services.MetadataExtractor
	notifier      services.AgentNotifier
	signingSecret string
	botUserID     string
}

// NewSlackEventsHandler creates a SlackEventsHandler.
func NewSlackEventsHandler(
	extractor *services.MetadataExtractor,
	notifier services.AgentNotifier,
	signingSecret string,
	botUserID string,
) *SlackEventsHandler {
	return &SlackEventsHandler{
		extractor:     extractor,
		notifier:      notifier,
		signingSecret: signingSecret,
		botUserID:     botUserID,
	}
}

// HandleEvent is the POST /webhooks/slack endpoint.
func (sh *SlackEventsHandler) HandleEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	if err := sh.verifySignature(c.Request.Header, body); err != nil {
		log.Warn(c.Request.Context(), "Slack signature verification failed", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	eventsAPIEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse event"})
		return
	}

	if eventsAPIEvent.Type == slackevents.URLVerification {
		var r *slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &r); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse challenge"})
			return
		}
		c.String(http.StatusOK, r.Challenge)
		return
	}

	if eventsAPIEvent.Type == slackevents.CallbackEvent {
		if err := sh.handleCallback(c.Request.Context(), body); err != nil {
			log.Error(c.Request.Context(), "Failed to process message event", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleCallback decodes the inner event and, for direct chat messages,
// runs the extraction pipeline and delivers the parts to the agent runtime.
func (sh *SlackEventsHandler) handleCallback(ctx context.Context, body []byte) error {
	var callback struct {
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(body, &callback); err != nil {
		return fmt.Errorf("failed to decode event callback: %w", err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(callback.Event, &probe); err != nil || probe.Type != "message" {
		return nil
	}

	var msg models.ChatMessage
	if err := json.Unmarshal(callback.Event, &msg); err != nil {
		return fmt.Errorf("failed to decode message event: %w", err)
	}

	// Skip the bot's own messages, edits, and empty messages.
	if msg.BotID != "" || msg.SubType == "message_changed" || (msg.Text == "" && len(msg.Files) == 0) {
		return nil
	}

	ctx = log.WithFields(ctx, log.Fields{
		"slack_channel": msg.Channel,
		"slack_ts":      msg.Timestamp,
	})

	metadata := sh.extractor.Extract(ctx, []models.ChatMessage{msg})
	parts := services.BuildChatParts(metadata[0], msg, sh.botUserID)
	return sh.notifier.SendMessage(ctx, msg.ConversationKey(), parts)
}

func (sh *SlackEventsHandler) verifySignature(header http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(header, sh.signingSecret)
	if err != nil {
		return fmt.Errorf("failed to create secrets verifier: %w", err)
	}
	if _, err := sv.Write(body); err != nil {
		return fmt.Errorf("failed to write body to verifier: %w", err)
	}
	if err := sv.Ensure(); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}
