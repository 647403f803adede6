package services

import (
	"fmt"
	"strings"

	"agent-event-gateway/internal/models"

	"github.com/slack-go/slack"
)

// BuildChatParts converts one message's metadata and raw fields into the
// ordered content parts handed to the agent runtime: instruction text, the
// raw message body, the mention legend, embedded file parts, then per-file
// error notices. This ordering is a contract the agent prompt depends on.
func BuildChatParts(meta models.MessageMetadata, msg models.ChatMessage, botUserID string) []models.ContentPart {
	parts := []models.ContentPart{models.TextPart(chatInstruction(meta, msg, botUserID))}

	if msg.Text != "" {
		parts = append(parts, models.TextPart(msg.Text))
	}

	if legend := mentionLegend(meta.Mentions, botUserID); legend != "" {
		parts = append(parts, models.TextPart("Mention legend:\n"+legend))
	}

	for _, fr := range meta.Files {
		if fr.Status == models.FileDownloaded {
			parts = append(parts, models.FilePart(fr.Data, fr.File.Mimetype))
		}
	}
	for _, fr := range meta.Files {
		if fr.Status != models.FileDownloaded {
			parts = append(parts, models.TextPart(fileNotice(fr)))
		}
	}

	return parts
}

func chatInstruction(meta models.MessageMetadata, msg models.ChatMessage, botUserID string) string {
	sender := "an unknown user"
	if meta.User != nil {
		sender = userDisplayName(meta.User)
	}
	channel := msg.Channel
	if meta.Channel != nil && meta.Channel.Name != "" {
		channel = "#" + meta.Channel.Name
	}

	header := fmt.Sprintf("New message from %s in %s at %s.",
		sender, channel, meta.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))

	if mustReplyInThread(meta, msg, botUserID) {
		return header + " You must reply in the message thread."
	}
	return header + " You may reply in the thread or channel."
}

// mustReplyInThread reports whether the bot was mentioned outside a direct
// or group direct message. The flag only changes the instruction wording.
func mustReplyInThread(meta models.MessageMetadata, msg models.ChatMessage, botUserID string) bool {
	if msg.ChannelType == "im" || msg.ChannelType == "mpim" {
		return false
	}
	if meta.Channel != nil && (meta.Channel.IsIM || meta.Channel.IsMpIM) {
		return false
	}
	for _, m := range meta.Mentions {
		if m.Kind == models.MentionKindUser && m.ID == botUserID {
			return true
		}
	}
	return false
}

// mentionLegend renders one line per resolved mention in original order.
// The bot itself, other bots and humans get distinct phrasings so the agent
// can recognize references to itself.
func mentionLegend(mentions []models.Mention, botUserID string) string {
	var lines []string
	for _, m := range mentions {
		switch m.Kind {
		case models.MentionKindUser:
			switch {
			case m.ID == botUserID:
				lines = append(lines, fmt.Sprintf("<@%s> is you, the assistant.", m.ID))
			case m.User.IsBot:
				lines = append(lines, fmt.Sprintf("<@%s> is a bot named %s.", m.ID, userDisplayName(m.User)))
			default:
				lines = append(lines, fmt.Sprintf("<@%s> is a human user named %s.", m.ID, userDisplayName(m.User)))
			}
		case models.MentionKindChannel:
			lines = append(lines, fmt.Sprintf("<#%s> is the channel #%s.", m.ID, m.Channel.Name))
		case models.MentionKindTeam:
			lines = append(lines, fmt.Sprintf("Team %s is %s.", m.ID, m.Team.Name))
		}
	}
	return strings.Join(lines, "\n")
}

// fileNotice explains why an attachment was not embedded. Files are never
// silently dropped; every non-downloaded outcome becomes a visible notice.
func fileNotice(fr models.FileResult) string {
	name := fr.File.Name
	switch fr.Status {
	case models.FileNoURL:
		return fmt.Sprintf("Attachment %q could not be included: it has no download URL.", name)
	case models.FileTooLarge:
		return fmt.Sprintf("Attachment %q could not be included: its size of %d bytes exceeds the limit.", name, fr.File.Size)
	case models.FileNotSupported:
		return fmt.Sprintf("Attachment %q could not be included: its type %q is not supported.", name, fr.File.Mimetype)
	default:
		return fmt.Sprintf("Attachment %q could not be included: %s.", name, fr.Reason)
	}
}

func userDisplayName(user *slack.User) string {
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	if user.RealName != "" {
		return user.RealName
	}
	return user.Name
}
