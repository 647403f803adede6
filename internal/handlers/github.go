// Package handlers contains the inbound webhook endpoints: the GitHub
// event router and handlers, and the Slack Events API endpoint.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"agent-event-gateway/internal/log"
	"agent-event-gateway/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v73/github"
)

// GitHubWebhookHandler verifies inbound GitHub webhook deliveries and routes
// them to the matching event handler.
type GitHubWebhookHandler struct {
	store         services.ConversationStore
	notifier      services.AgentNotifier
	webhookSecret string
	botLogin      string
}

// NewGitHubWebhookHandler creates a handler. botLogin is the bot's GitHub
// login, matched with and without the "[bot]" suffix when deciding whether
// an event was caused by the bot itself.
func NewGitHubWebhookHandler(
	store services.ConversationStore,
	notifier services.AgentNotifier,
	webhookSecret string,
	botLogin string,
) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{
		store:         store,
		notifier:      notifier,
		webhookSecret: webhookSecret,
		botLogin:      botLogin,
	}
}

// HandleWebhook is the POST /webhooks/github endpoint. Responses: 200 "OK"
// for processed events and deliberate no-ops, 401 for missing headers or a
// failed signature check, 500 for handler failures (the sender re-delivers
// on non-2xx).
func (h *GitHubWebhookHandler) HandleWebhook(c *gin.Context) {
	eventType := c.GetHeader("X-GitHub-Event")
	deliveryID := c.GetHeader("X-GitHub-Delivery")
	signature := c.GetHeader("X-Hub-Signature-256")

	ctx := log.WithFields(c.Request.Context(), log.Fields{
		"github_event":    eventType,
		"github_delivery": deliveryID,
	})

	if eventType == "" || deliveryID == "" || signature == "" {
		log.Warn(ctx, "Missing required webhook headers")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing required headers"})
		return
	}

	payload, err := github.ValidatePayload(c.Request, []byte(h.webhookSecret))
	if err != nil {
		log.Warn(ctx, "Webhook signature verification failed", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid payload or signature"})
		return
	}

	// Headers like "check_run.completed" identify the base event before
	// the dot.
	baseEvent, _, _ := strings.Cut(eventType, ".")

	event, err := github.ParseWebHook(baseEvent, payload)
	if err != nil {
		// Unknown future event types are accepted, not failed; the sender
		// must not retry deliveries this gateway does not handle.
		log.Info(ctx, "Ignoring unrecognized event", "error", err)
		c.String(http.StatusOK, "OK")
		return
	}

	if err := h.dispatch(ctx, event); err != nil {
		log.Error(ctx, "Webhook handler failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.String(http.StatusOK, "OK")
}

// dispatch routes a parsed event to its handler. Event/action combinations
// without a handler fall through to the no-op arm.
func (h *GitHubWebhookHandler) dispatch(ctx context.Context, event any) error {
	switch ev := event.(type) {
	case *github.PullRequestEvent:
		return h.handlePullRequest(ctx, ev)
	case *github.PullRequestReviewEvent:
		return h.handlePullRequestReview(ctx, ev)
	case *github.PullRequestReviewCommentEvent:
		return h.handleReviewComment(ctx, ev)
	case *github.IssueCommentEvent:
		return h.handleIssueComment(ctx, ev)
	case *github.CheckRunEvent:
		return h.handleCheckRun(ctx, ev)
	default:
		return nil
	}
}
