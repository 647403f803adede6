// Package models defines the internal event, metadata and content-part types
// shared by the webhook handlers and services.
package models

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/slack-go/slack"
)

// Content part types understood by the agent runtime.
const (
	PartTypeText = "text"
	PartTypeFile = "file"
)

// ContentPart is one unit of an agent conversation message. Parts are
// ordered: instructional text precedes the raw message body, which precedes
// the mention legend, which precedes file parts, which precede per-file
// error notices. The agent prompt depends on this ordering.
type ContentPart struct {
	Type string `json:"type"`

	// Text is set when Type is "text".
	Text string `json:"text,omitempty"`

	// URL and MediaType are set when Type is "file". URL is a data: URI
	// for inline-embedded content.
	URL       string `json:"url,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// FilePart builds an inline-embedded file content part from raw bytes.
func FilePart(data []byte, mediaType string) ContentPart {
	return ContentPart{
		Type:      PartTypeFile,
		URL:       fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data)),
		MediaType: mediaType,
	}
}

// MentionKind discriminates the entity kinds a rich-text mention can reference.
type MentionKind string

const (
	MentionKindUser    MentionKind = "user"
	MentionKindChannel MentionKind = "channel"
	MentionKindTeam    MentionKind = "team"
)

// Mention is a resolved reference found in a message's rich-text blocks.
// Exactly one of User, Channel or Team is set, matching Kind. Mentions whose
// entity failed to resolve are not represented at all; they are dropped
// during extraction.
type Mention struct {
	Kind    MentionKind
	ID      string
	User    *slack.User
	Channel *slack.Channel
	Team    *slack.TeamInfo
}

// File fetch outcome states. Every attached file produces exactly one
// FileResult regardless of success or failure.
const (
	FileDownloaded   = "downloaded"
	FileTooLarge     = "too_large"
	FileNotSupported = "not_supported"
	FileNoURL        = "no_url"
	FileError        = "error"
)

// FileResult records the outcome of fetching one attached file.
type FileResult struct {
	File   slack.File
	Status string

	// Data holds the raw bytes when Status is FileDownloaded.
	Data []byte

	// Reason holds the underlying error message when Status is FileError.
	Reason string
}

// MessageMetadata is the per-message record assembled from batched entity
// resolution and file fetching. It is rebuilt for every message and never
// persisted; it only lives long enough to build content parts.
type MessageMetadata struct {
	Mentions  []Mention
	Files     []FileResult
	User      *slack.User
	Channel   *slack.Channel
	CreatedAt time.Time
}

// ChatMessage is the normalized inbound chat message consumed by the
// metadata extractor. Field tags follow the Slack event wire format so the
// inner event JSON unmarshals directly into it.
type ChatMessage struct {
	User            string       `json:"user"`
	Channel         string       `json:"channel"`
	ChannelType     string       `json:"channel_type"`
	Text            string       `json:"text"`
	Timestamp       string       `json:"ts"`
	ThreadTimestamp string       `json:"thread_ts"`
	SubType         string       `json:"subtype"`
	BotID           string       `json:"bot_id"`
	Blocks          slack.Blocks `json:"blocks"`
	Files           []slack.File `json:"files"`
}

// ConversationKey returns the agent conversation identifier for a direct
// chat message: the channel plus the thread root timestamp (the message's
// own timestamp when it starts a new thread).
func (m *ChatMessage) ConversationKey() string {
	ts := m.ThreadTimestamp
	if ts == "" {
		ts = m.Timestamp
	}
	return m.Channel + ":" + ts
}
