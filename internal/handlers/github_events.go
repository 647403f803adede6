package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"agent-event-gateway/internal/log"
	"agent-event-gateway/internal/models"

	"github.com/google/go-github/v73/github"
)

// GitHub event actions and check-run conclusions this gateway reacts to.
const (
	actionClosed    = "closed"
	actionCompleted = "completed"
)

// trustedAssociations is the set of author_association values allowed to
// trigger agent notifications from comments. Anything else (CONTRIBUTOR,
// NONE, FIRST_TIME_CONTRIBUTOR, ...) is skipped as untrusted.
var trustedAssociations = map[string]struct{}{
	"COLLABORATOR": {},
	"MEMBER":       {},
	"OWNER":        {},
}

// failedConclusions are the check-run conclusions worth telling the agent
// about; success and skipped runs are no-ops.
var failedConclusions = map[string]struct{}{
	"failure":   {},
	"timed_out": {},
	"cancelled": {},
}

// prConversationKey is the association-store key for a pull request.
func prConversationKey(number int) string {
	return strconv.Itoa(number)
}

// isOwnBot reports whether login identifies the configured bot, with or
// without the "[bot]" suffix on either side. Reacting to the bot's own
// activity would loop forever.
func (h *GitHubWebhookHandler) isOwnBot(login string) bool {
	return strings.TrimSuffix(login, "[bot]") == strings.TrimSuffix(h.botLogin, "[bot]")
}

func (h *GitHubWebhookHandler) handlePullRequest(ctx context.Context, ev *github.PullRequestEvent) error {
	pr := ev.GetPullRequest()
	if ev.GetAction() != actionClosed || !pr.GetMerged() {
		return nil
	}

	conversationID, err := h.store.GetConversation(ctx, prConversationKey(pr.GetNumber()))
	if err != nil {
		return err
	}
	if conversationID == "" {
		// Most pull requests are not agent-associated.
		return nil
	}

	log.Info(ctx, "Notifying conversation of merged pull request",
		"pr_number", pr.GetNumber(),
		"conversation_id", conversationID,
	)
	text := fmt.Sprintf("Pull request #%d %q was merged by %s.\n%s",
		pr.GetNumber(), pr.GetTitle(), ev.GetSender().GetLogin(), pr.GetHTMLURL())
	return h.notifier.SendMessage(ctx, conversationID, []models.ContentPart{models.TextPart(text)})
}

func (h *GitHubWebhookHandler) handlePullRequestReview(ctx context.Context, ev *github.PullRequestReviewEvent) error {
	review := ev.GetReview()
	if h.isOwnBot(review.GetUser().GetLogin()) {
		return nil
	}

	conversationID, err := h.store.GetConversation(ctx, prConversationKey(ev.GetPullRequest().GetNumber()))
	if err != nil {
		return err
	}
	if conversationID == "" {
		return nil
	}

	body := review.GetBody()
	if body == "" {
		body = "No body provided"
	}
	text := fmt.Sprintf("%s reviewed pull request #%d with state %q:\n\n%s",
		review.GetUser().GetLogin(), ev.GetPullRequest().GetNumber(), review.GetState(), body)
	return h.notifier.SendMessage(ctx, conversationID, []models.ContentPart{models.TextPart(text)})
}

func (h *GitHubWebhookHandler) handleReviewComment(ctx context.Context, ev *github.PullRequestReviewCommentEvent) error {
	comment := ev.GetComment()
	if _, ok := trustedAssociations[comment.GetAuthorAssociation()]; !ok {
		return nil
	}
	if h.isOwnBot(comment.GetUser().GetLogin()) {
		return nil
	}

	conversationID, err := h.store.GetConversation(ctx, prConversationKey(ev.GetPullRequest().GetNumber()))
	if err != nil {
		return err
	}
	if conversationID == "" {
		return nil
	}

	body := comment.GetBody()
	if body == "" {
		body = "No body provided"
	}
	text := fmt.Sprintf("%s commented on a review thread in pull request #%d:\n\n%s",
		comment.GetUser().GetLogin(), ev.GetPullRequest().GetNumber(), body)
	return h.notifier.SendMessage(ctx, conversationID, []models.ContentPart{models.TextPart(text)})
}

func (h *GitHubWebhookHandler) handleIssueComment(ctx context.Context, ev *github.IssueCommentEvent) error {
	comment := ev.GetComment()
	if _, ok := trustedAssociations[comment.GetAuthorAssociation()]; !ok {
		return nil
	}
	if h.isOwnBot(comment.GetUser().GetLogin()) {
		return nil
	}

	// Issue comments on PR conversations are keyed by the issue's GraphQL
	// node ID, the identifier the association was created against when the
	// PR was treated as an issue.
	conversationID, err := h.store.GetConversation(ctx, ev.GetIssue().GetNodeID())
	if err != nil {
		return err
	}
	if conversationID == "" {
		return nil
	}

	body := comment.GetBody()
	if body == "" {
		body = "No body provided"
	}
	text := fmt.Sprintf("%s commented on #%d %q:\n\n%s",
		comment.GetUser().GetLogin(), ev.GetIssue().GetNumber(), ev.GetIssue().GetTitle(), body)
	return h.notifier.SendMessage(ctx, conversationID, []models.ContentPart{models.TextPart(text)})
}

func (h *GitHubWebhookHandler) handleCheckRun(ctx context.Context, ev *github.CheckRunEvent) error {
	if ev.GetAction() != actionCompleted {
		return nil
	}
	run := ev.GetCheckRun()
	if _, ok := failedConclusions[run.GetConclusion()]; !ok {
		return nil
	}

	// One check run can fan out to every associated pull request whose head
	// still matches the run; stale runs superseded by a newer push are
	// skipped per pull request.
	for _, pr := range run.PullRequests {
		if pr.GetHead().GetSHA() != run.GetHeadSHA() {
			continue
		}
		conversationID, err := h.store.GetConversation(ctx, prConversationKey(pr.GetNumber()))
		if err != nil {
			return err
		}
		if conversationID == "" {
			continue
		}

		log.Info(ctx, "Notifying conversation of failed check run",
			"check_run", run.GetName(),
			"conclusion", run.GetConclusion(),
			"pr_number", pr.GetNumber(),
			"conversation_id", conversationID,
		)
		text := fmt.Sprintf("Check run %q concluded %s on pull request #%d (commit %s).\n%s",
			run.GetName(), run.GetConclusion(), pr.GetNumber(), run.GetHeadSHA(), run.GetHTMLURL())
		if err := h.notifier.SendMessage(ctx, conversationID, []models.ContentPart{models.TextPart(text)}); err != nil {
			return err
		}
	}
	return nil
}
