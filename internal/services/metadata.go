package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"agent-event-gateway/internal/models"

	"golang.org/x/sync/errgroup"
)

// MetadataExtractor composes the entity resolver and file fetcher into
// complete per-message metadata records.
type MetadataExtractor struct {
	resolver *EntityResolver
	files    *FileFetcher
}

// NewMetadataExtractor creates a MetadataExtractor.
func NewMetadataExtractor(resolver *EntityResolver, files *FileFetcher) *MetadataExtractor {
	return &MetadataExtractor{resolver: resolver, files: files}
}

// Extract builds one MessageMetadata per input message, preserving input
// order. Entity resolution and file fetching run concurrently across the
// whole batch; neither can fail the extraction, so Extract always returns a
// result for every message.
func (e *MetadataExtractor) Extract(ctx context.Context, msgs []models.ChatMessage) []models.MessageMetadata {
	resolved := make([]ResolvedMessage, len(msgs))
	fileResults := make([][]models.FileResult, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		copy(resolved, e.resolver.ResolveMessages(gctx, msgs))
		return nil
	})
	for i := range msgs {
		i := i
		g.Go(func() error {
			fileResults[i] = e.files.FetchAll(gctx, msgs[i].Files)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.MessageMetadata, len(msgs))
	for i, msg := range msgs {
		out[i] = models.MessageMetadata{
			Mentions:  resolved[i].Mentions,
			Files:     fileResults[i],
			User:      resolved[i].User,
			Channel:   resolved[i].Channel,
			CreatedAt: ParseSlackTimestamp(msg.Timestamp),
		}
	}
	return out
}

// ParseSlackTimestamp converts a Slack "seconds.fraction" timestamp into a
// time.Time. A missing or unparsable timestamp falls back to the current
// time rather than failing the extraction.
func ParseSlackTimestamp(ts string) time.Time {
	parts := strings.SplitN(ts, ".", 2)
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || sec <= 0 {
		return time.Now()
	}

	var nsec int64
	if len(parts) == 2 && parts[1] != "" {
		frac := parts[1]
		if len(frac) > 9 {
			frac = frac[:9]
		}
		n, err := strconv.ParseInt(frac, 10, 64)
		if err != nil || n < 0 {
			return time.Now()
		}
		for i := len(frac); i < 9; i++ {
			n *= 10
		}
		nsec = n
	}

	return time.Unix(sec, nsec)
}
