package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"agent-event-gateway/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSigningSecret = "test-signing-secret"
	testBotUserID     = "UBOT"
)

// fakeSlackDirectory backs the entity resolver in handler tests. Unknown IDs
// fail to resolve.
type fakeSlackDirectory struct {
	users    map[string]*slack.User
	channels map[string]*slack.Channel
}

func (d *fakeSlackDirectory) GetUserInfoContext(_ context.Context, user string) (*slack.User, error) {
	if u, ok := d.users[user]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user_not_found: %s", user)
}

func (d *fakeSlackDirectory) GetConversationInfoContext(_ context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error) {
	if c, ok := d.channels[input.ChannelID]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("channel_not_found: %s", input.ChannelID)
}

func (d *fakeSlackDirectory) GetOtherTeamInfoContext(_ context.Context, team string) (*slack.TeamInfo, error) {
	return nil, fmt.Errorf("team_not_found: %s", team)
}

func newSlackTestHandler() (*SlackEventsHandler, *fakeNotifier) {
	dir := &fakeSlackDirectory{
		users: map[string]*slack.User{
			"U1":          {ID: "U1", Name: "alice", RealName: "Alice"},
			testBotUserID: {ID: testBotUserID, Name: "agent", IsBot: true},
		},
		channels: map[string]*slack.Channel{
			"C1": {GroupConversation: slack.GroupConversation{
				Conversation: slack.Conversation{ID: "C1"},
				Name:         "general",
			}},
		},
	}
	extractor := services.NewMetadataExtractor(
		services.NewEntityResolver(dir),
		services.NewFileFetcher(nil, "token", nil, 0),
	)
	notifier := &fakeNotifier{}
	return NewSlackEventsHandler(extractor, notifier, testSigningSecret, testBotUserID), notifier
}

func performSlackEvent(t *testing.T, handler *SlackEventsHandler, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	req, err := http.NewRequest(http.MethodPost, "/webhooks/slack", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	if mutate != nil {
		mutate(req)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	handler.HandleEvent(c)
	return w
}

func messageCallback(event string) string {
	return `{"token":"tok","team_id":"T1","api_app_id":"A1","type":"event_callback","event_id":"Ev1","event":` + event + `}`
}

func TestHandleEvent_URLVerification(t *testing.T) {
	handler, notifier := newSlackTestHandler()

	body := `{"token":"tok","challenge":"challenge-abc123","type":"url_verification"}`
	w := performSlackEvent(t, handler, body, nil)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "challenge-abc123", w.Body.String())
	assert.Empty(t, notifier.messages())
}

func TestHandleEvent_RejectsBadSignature(t *testing.T) {
	handler, notifier := newSlackTestHandler()

	body := messageCallback(`{"type":"message","user":"U1","channel":"C1","channel_type":"im","text":"hi","ts":"1741944413.000100"}`)

	tests := []struct {
		name   string
		mutate func(*http.Request)
	}{
		{
			name:   "wrong signature",
			mutate: func(r *http.Request) { r.Header.Set("X-Slack-Signature", "v0=deadbeef") },
		},
		{
			name:   "missing signature header",
			mutate: func(r *http.Request) { r.Header.Del("X-Slack-Signature") },
		},
		{
			name:   "stale timestamp",
			mutate: func(r *http.Request) { r.Header.Set("X-Slack-Request-Timestamp", "1000000000") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performSlackEvent(t, handler, body, tt.mutate)

			assert.Equal(t, 401, w.Code)
			assert.Empty(t, notifier.messages())
		})
	}
}

func TestHandleEvent_DirectMessageDelivered(t *testing.T) {
	handler, notifier := newSlackTestHandler()

	body := messageCallback(`{"type":"message","user":"U1","channel":"C1","channel_type":"im","text":"hello there","ts":"1741944413.000100"}`)
	w := performSlackEvent(t, handler, body, nil)

	assert.Equal(t, 200, w.Code)
	require.Len(t, notifier.messages(), 1)

	msg := notifier.messages()[0]
	assert.Equal(t, "C1:1741944413.000100", msg.ConversationID)
	require.GreaterOrEqual(t, len(msg.Parts), 2)
	assert.Contains(t, msg.Parts[0].Text, "New message from Alice in #general")
	assert.Contains(t, msg.Parts[0].Text, "You may reply in the thread or channel.")
	assert.Equal(t, "hello there", msg.Parts[1].Text)
}

func TestHandleEvent_ThreadReplyUsesRootTimestamp(t *testing.T) {
	handler, notifier := newSlackTestHandler()

	body := messageCallback(`{"type":"message","user":"U1","channel":"C1","channel_type":"im","text":"follow-up","ts":"1741944500.000200","thread_ts":"1741944413.000100"}`)
	w := performSlackEvent(t, handler, body, nil)

	assert.Equal(t, 200, w.Code)
	require.Len(t, notifier.messages(), 1)
	assert.Equal(t, "C1:1741944413.000100", notifier.messages()[0].ConversationID)
}

func TestHandleEvent_ChannelMentionRequiresThreadReply(t *testing.T) {
	handler, notifier := newSlackTestHandler()

	event := `{
		"type": "message",
		"user": "U1",
		"channel": "C1",
		"channel_type": "channel",
		"text": "<@UBOT> can you take a look?",
		"ts": "1741944413.000100",
		"blocks": [{
			"type": "rich_text",
			"block_id": "b1",
			"elements": [{
				"type": "rich_text_section",
				"elements": [
					{"type": "user", "user_id": "UBOT"},
					{"type": "text", "text": " can you take a look?"}
				]
			}]
		}]
	}`
	w := performSlackEvent(t, handler, messageCallback(event), nil)

	assert.Equal(t, 200, w.Code)
	require.Len(t, notifier.messages(), 1)

	msg := notifier.messages()[0]
	assert.Contains(t, msg.Parts[0].Text, "You must reply in the message thread.")

	var legend string
	for _, part := range msg.Parts {
		if strings.HasPrefix(part.Text, "Mention legend:") {
			legend = part.Text
		}
	}
	assert.Contains(t, legend, "<@UBOT> is you, the assistant.")
}

func TestHandleEvent_SkippedMessages(t *testing.T) {
	tests := []struct {
		name  string
		event string
	}{
		{
			name:  "bot's own message",
			event: `{"type":"message","bot_id":"B1","channel":"C1","channel_type":"im","text":"I am the bot","ts":"1741944413.000100"}`,
		},
		{
			name:  "message edit",
			event: `{"type":"message","subtype":"message_changed","user":"U1","channel":"C1","channel_type":"im","ts":"1741944413.000100"}`,
		},
		{
			name:  "empty message without files",
			event: `{"type":"message","user":"U1","channel":"C1","channel_type":"im","text":"","ts":"1741944413.000100"}`,
		},
		{
			name:  "non-message inner event",
			event: `{"type":"reaction_added","user":"U1","reaction":"thumbsup","item":{"type":"message","channel":"C1","ts":"1741944413.000100"},"event_ts":"1741944414.000100"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, notifier := newSlackTestHandler()

			w := performSlackEvent(t, handler, messageCallback(tt.event), nil)

			assert.Equal(t, 200, w.Code)
			assert.Empty(t, notifier.messages())
		})
	}
}

func TestHandleEvent_NotifierFailureReturns500(t *testing.T) {
	handler, notifier := newSlackTestHandler()
	notifier.err = assert.AnError

	body := messageCallback(`{"type":"message","user":"U1","channel":"C1","channel_type":"im","text":"hi","ts":"1741944413.000100"}`)
	w := performSlackEvent(t, handler, body, nil)

	assert.Equal(t, 500, w.Code)
}
