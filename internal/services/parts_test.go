package services

import (
	"testing"
	"time"

	"agent-event-gateway/internal/models"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotUserID = "UBOT"

func partsFixtureMeta() models.MessageMetadata {
	sender := testUser("U1", "alice")
	sender.Profile.DisplayName = "Alice"
	return models.MessageMetadata{
		User:      sender,
		Channel:   testChannel("C1", "general"),
		CreatedAt: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func TestBuildChatParts_Ordering(t *testing.T) {
	meta := partsFixtureMeta()
	meta.Mentions = []models.Mention{
		{Kind: models.MentionKindUser, ID: testBotUserID, User: testUser(testBotUserID, "agent")},
	}
	meta.Files = []models.FileResult{
		{File: slack.File{Name: "big.png", Mimetype: "image/png", Size: 99999999}, Status: models.FileTooLarge},
		{File: slack.File{Name: "shot.png", Mimetype: "image/png", Size: 3}, Status: models.FileDownloaded, Data: []byte{1, 2, 3}},
	}
	msg := models.ChatMessage{
		Channel:     "C1",
		ChannelType: "channel",
		Text:        "hello <@UBOT>",
		Timestamp:   "1741944413.000100",
	}

	parts := BuildChatParts(meta, msg, testBotUserID)
	require.Len(t, parts, 5)

	// Instruction, body, legend, file parts, then notices.
	assert.Equal(t, models.PartTypeText, parts[0].Type)
	assert.Contains(t, parts[0].Text, "New message from Alice in #general")
	assert.Equal(t, "hello <@UBOT>", parts[1].Text)
	assert.Contains(t, parts[2].Text, "Mention legend:")
	assert.Equal(t, models.PartTypeFile, parts[3].Type)
	assert.Equal(t, "image/png", parts[3].MediaType)
	assert.Equal(t, "data:image/png;base64,AQID", parts[3].URL)
	assert.Contains(t, parts[4].Text, `Attachment "big.png" could not be included`)
}

func TestBuildChatParts_ThreadInstruction(t *testing.T) {
	botMention := models.Mention{
		Kind: models.MentionKindUser, ID: testBotUserID, User: testUser(testBotUserID, "agent"),
	}

	tests := []struct {
		name        string
		channelType string
		isIM        bool
		mentions    []models.Mention
		mustThread  bool
	}{
		{
			name:        "bot mention in a channel requires a thread reply",
			channelType: "channel",
			mentions:    []models.Mention{botMention},
			mustThread:  true,
		},
		{
			name:        "no bot mention leaves the choice open",
			channelType: "channel",
			mentions:    nil,
			mustThread:  false,
		},
		{
			name:        "direct message never requires a thread",
			channelType: "im",
			isIM:        true,
			mentions:    []models.Mention{botMention},
			mustThread:  false,
		},
		{
			name:        "group direct message never requires a thread",
			channelType: "mpim",
			mentions:    []models.Mention{botMention},
			mustThread:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := partsFixtureMeta()
			meta.Mentions = tt.mentions
			meta.Channel.IsIM = tt.isIM
			msg := models.ChatMessage{Channel: "C1", ChannelType: tt.channelType, Text: "hi"}

			parts := BuildChatParts(meta, msg, testBotUserID)
			require.NotEmpty(t, parts)
			if tt.mustThread {
				assert.Contains(t, parts[0].Text, "You must reply in the message thread.")
			} else {
				assert.Contains(t, parts[0].Text, "You may reply in the thread or channel.")
			}
		})
	}
}

func TestBuildChatParts_MentionLegend(t *testing.T) {
	bot := testUser("U9", "helper-bot")
	bot.IsBot = true

	meta := partsFixtureMeta()
	meta.Mentions = []models.Mention{
		{Kind: models.MentionKindUser, ID: testBotUserID, User: testUser(testBotUserID, "agent")},
		{Kind: models.MentionKindUser, ID: "U9", User: bot},
		{Kind: models.MentionKindUser, ID: "U2", User: testUser("U2", "bob")},
		{Kind: models.MentionKindChannel, ID: "C9", Channel: testChannel("C9", "random")},
		{Kind: models.MentionKindTeam, ID: "T1", Team: &slack.TeamInfo{ID: "T1", Name: "Acme"}},
	}
	msg := models.ChatMessage{Channel: "C1", ChannelType: "im", Text: "hi all"}

	parts := BuildChatParts(meta, msg, testBotUserID)
	require.Len(t, parts, 3)

	legend := parts[2].Text
	assert.Contains(t, legend, "<@UBOT> is you, the assistant.")
	assert.Contains(t, legend, "<@U9> is a bot named helper-bot.")
	assert.Contains(t, legend, "<@U2> is a human user named bob.")
	assert.Contains(t, legend, "<#C9> is the channel #random.")
	assert.Contains(t, legend, "Team T1 is Acme.")
}

func TestBuildChatParts_NoLegendWithoutMentions(t *testing.T) {
	msg := models.ChatMessage{Channel: "C1", ChannelType: "im", Text: "plain message"}

	parts := BuildChatParts(partsFixtureMeta(), msg, testBotUserID)
	require.Len(t, parts, 2)
	assert.Equal(t, "plain message", parts[1].Text)
}

func TestBuildChatParts_UnresolvedSenderAndChannel(t *testing.T) {
	meta := models.MessageMetadata{CreatedAt: time.Unix(1741944413, 0)}
	msg := models.ChatMessage{Channel: "C404", ChannelType: "channel", Text: "hi"}

	parts := BuildChatParts(meta, msg, testBotUserID)
	require.NotEmpty(t, parts)
	assert.Contains(t, parts[0].Text, "New message from an unknown user in C404")
}

func TestFileNotice(t *testing.T) {
	tests := []struct {
		name     string
		result   models.FileResult
		expected string
	}{
		{
			name:     "missing URL",
			result:   models.FileResult{File: slack.File{Name: "a.png"}, Status: models.FileNoURL},
			expected: `Attachment "a.png" could not be included: it has no download URL.`,
		},
		{
			name:     "too large",
			result:   models.FileResult{File: slack.File{Name: "b.png", Size: 20971520}, Status: models.FileTooLarge},
			expected: `Attachment "b.png" could not be included: its size of 20971520 bytes exceeds the limit.`,
		},
		{
			name:     "unsupported type",
			result:   models.FileResult{File: slack.File{Name: "c.mp4", Mimetype: "video/mp4"}, Status: models.FileNotSupported},
			expected: `Attachment "c.mp4" could not be included: its type "video/mp4" is not supported.`,
		},
		{
			name:     "download error",
			result:   models.FileResult{File: slack.File{Name: "d.txt"}, Status: models.FileError, Reason: "download failed with status 404"},
			expected: `Attachment "d.txt" could not be included: download failed with status 404.`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, fileNotice(tt.result))
		})
	}
}

func TestUserDisplayName(t *testing.T) {
	withDisplay := testUser("U1", "alice")
	withDisplay.Profile.DisplayName = "Alice W."
	assert.Equal(t, "Alice W.", userDisplayName(withDisplay))

	withReal := &slack.User{ID: "U2", Name: "bob", RealName: "Bob Jones"}
	assert.Equal(t, "Bob Jones", userDisplayName(withReal))

	nameOnly := &slack.User{ID: "U3", Name: "carol"}
	assert.Equal(t, "carol", userDisplayName(nameOnly))
}
