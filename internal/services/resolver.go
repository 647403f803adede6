// Package services provides the event-normalization services: batched entity
// resolution, file fetching, metadata extraction, part building, the
// conversation association store and agent delivery.
package services

import (
	"context"
	"sync"

	"agent-event-gateway/internal/log"
	"agent-event-gateway/internal/models"

	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"
)

// SlackDirectory is the subset of the Slack Web API used for entity lookups.
// *slack.Client satisfies it.
type SlackDirectory interface {
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	GetOtherTeamInfoContext(ctx context.Context, team string) (*slack.TeamInfo, error)
}

var _ SlackDirectory = (*slack.Client)(nil)

// ResolvedMessage is the per-message output of batched entity resolution:
// the ordered mention list plus the resolved sender and channel. Entities
// that failed to resolve are simply absent.
type ResolvedMessage struct {
	Mentions []models.Mention
	User     *slack.User
	Channel  *slack.Channel
}

// EntityResolver resolves mention, sender and channel references for a batch
// of messages with deduplicated, concurrent directory lookups.
type EntityResolver struct {
	directory SlackDirectory
}

// NewEntityResolver creates an EntityResolver backed by the given directory.
func NewEntityResolver(directory SlackDirectory) *EntityResolver {
	return &EntityResolver{directory: directory}
}

// ResolveMessages resolves every entity referenced by the batch. Each unique
// ID is looked up at most once; lookups run concurrently and an individual
// failure marks that entity absent without affecting siblings. The returned
// slice preserves input order, and each message's mention list preserves the
// order mentions appear in its rich-text blocks.
func (r *EntityResolver) ResolveMessages(ctx context.Context, msgs []models.ChatMessage) []ResolvedMessage {
	userIDs := make(map[string]struct{})
	channelIDs := make(map[string]struct{})
	teamIDs := make(map[string]struct{})

	for _, msg := range msgs {
		if msg.User != "" {
			userIDs[msg.User] = struct{}{}
		}
		if msg.Channel != "" {
			channelIDs[msg.Channel] = struct{}{}
		}
		walkMentions(msg.Blocks, func(kind models.MentionKind, id string) {
			switch kind {
			case models.MentionKindUser:
				userIDs[id] = struct{}{}
			case models.MentionKindChannel:
				channelIDs[id] = struct{}{}
			case models.MentionKindTeam:
				teamIDs[id] = struct{}{}
			}
		})
	}

	entities := r.lookupAll(ctx, userIDs, channelIDs, teamIDs)

	out := make([]ResolvedMessage, len(msgs))
	for i, msg := range msgs {
		seen := make(map[string]struct{})
		var mentions []models.Mention
		walkMentions(msg.Blocks, func(kind models.MentionKind, id string) {
			if _, dup := seen[id]; dup {
				return
			}
			seen[id] = struct{}{}
			switch kind {
			case models.MentionKindUser:
				if user := entities.users[id]; user != nil {
					mentions = append(mentions, models.Mention{Kind: kind, ID: id, User: user})
				}
			case models.MentionKindChannel:
				if channel := entities.channels[id]; channel != nil {
					mentions = append(mentions, models.Mention{Kind: kind, ID: id, Channel: channel})
				}
			case models.MentionKindTeam:
				if team := entities.teams[id]; team != nil {
					mentions = append(mentions, models.Mention{Kind: kind, ID: id, Team: team})
				}
			}
		})
		out[i] = ResolvedMessage{
			Mentions: mentions,
			User:     entities.users[msg.User],
			Channel:  entities.channels[msg.Channel],
		}
	}
	return out
}

// directoryEntities holds the per-batch resolution cache. It is scoped to a
// single ResolveMessages call and never shared across batches.
type directoryEntities struct {
	mu       sync.Mutex
	users    map[string]*slack.User
	channels map[string]*slack.Channel
	teams    map[string]*slack.TeamInfo
}

func (r *EntityResolver) lookupAll(
	ctx context.Context, userIDs, channelIDs, teamIDs map[string]struct{},
) *directoryEntities {
	entities := &directoryEntities{
		users:    make(map[string]*slack.User, len(userIDs)),
		channels: make(map[string]*slack.Channel, len(channelIDs)),
		teams:    make(map[string]*slack.TeamInfo, len(teamIDs)),
	}

	// Workers record failures as absence and never return an error, so one
	// bad lookup cannot cancel its siblings.
	g, gctx := errgroup.WithContext(ctx)

	for id := range userIDs {
		id := id
		g.Go(func() error {
			user, err := r.directory.GetUserInfoContext(gctx, id)
			if err != nil {
				log.Debug(gctx, "User lookup failed, treating as absent", "user_id", id, "error", err)
				return nil
			}
			entities.mu.Lock()
			entities.users[id] = user
			entities.mu.Unlock()
			return nil
		})
	}

	for id := range channelIDs {
		id := id
		g.Go(func() error {
			channel, err := r.directory.GetConversationInfoContext(gctx, &slack.GetConversationInfoInput{
				ChannelID: id,
			})
			if err != nil {
				log.Debug(gctx, "Channel lookup failed, treating as absent", "channel_id", id, "error", err)
				return nil
			}
			entities.mu.Lock()
			entities.channels[id] = channel
			entities.mu.Unlock()
			return nil
		})
	}

	for id := range teamIDs {
		id := id
		g.Go(func() error {
			team, err := r.directory.GetOtherTeamInfoContext(gctx, id)
			if err != nil {
				log.Debug(gctx, "Team lookup failed, treating as absent", "team_id", id, "error", err)
				return nil
			}
			entities.mu.Lock()
			entities.teams[id] = team
			entities.mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return entities
}

// walkMentions visits every user, channel and team mention embedded in the
// rich-text blocks in block traversal order.
func walkMentions(blocks slack.Blocks, visit func(kind models.MentionKind, id string)) {
	for _, block := range blocks.BlockSet {
		richText, ok := block.(*slack.RichTextBlock)
		if !ok {
			continue
		}
		for _, element := range richText.Elements {
			walkRichTextElement(element, visit)
		}
	}
}

func walkRichTextElement(element slack.RichTextElement, visit func(kind models.MentionKind, id string)) {
	switch el := element.(type) {
	case *slack.RichTextSection:
		for _, sectionElement := range el.Elements {
			visitSectionElement(sectionElement, visit)
		}
	case *slack.RichTextList:
		for _, nested := range el.Elements {
			walkRichTextElement(nested, visit)
		}
	}
}

func visitSectionElement(element slack.RichTextSectionElement, visit func(kind models.MentionKind, id string)) {
	switch el := element.(type) {
	case *slack.RichTextSectionUserElement:
		visit(models.MentionKindUser, el.UserID)
	case *slack.RichTextSectionChannelElement:
		visit(models.MentionKindChannel, el.ChannelID)
	case *slack.RichTextSectionTeamElement:
		visit(models.MentionKindTeam, el.TeamID)
	}
}
