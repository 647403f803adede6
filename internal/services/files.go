package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"

	"agent-event-gateway/internal/models"

	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"
)

const defaultMaxFileBytes = 10 * 1024 * 1024

// FileFetcher downloads message attachments that pass the size and MIME-type
// policy. Every file yields exactly one FileResult; failures are captured per
// file and never propagated.
type FileFetcher struct {
	httpClient *http.Client
	token      string
	allowed    map[string]struct{}
	maxBytes   int64
}

// NewFileFetcher creates a FileFetcher. A nil httpClient falls back to
// http.DefaultClient and a non-positive maxBytes falls back to 10 MiB.
func NewFileFetcher(httpClient *http.Client, token string, allowedTypes []string, maxBytes int64) *FileFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxFileBytes
	}
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = struct{}{}
	}
	return &FileFetcher{
		httpClient: httpClient,
		token:      token,
		allowed:    allowed,
		maxBytes:   maxBytes,
	}
}

// FetchAll fetches the given files concurrently, preserving input order in
// the result slice.
func (f *FileFetcher) FetchAll(ctx context.Context, files []slack.File) []models.FileResult {
	if len(files) == 0 {
		return nil
	}
	results := make([]models.FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i := range files {
		i := i
		g.Go(func() error {
			results[i] = f.fetch(gctx, files[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (f *FileFetcher) fetch(ctx context.Context, file slack.File) models.FileResult {
	result := models.FileResult{File: file}

	switch {
	case file.URLPrivateDownload == "":
		result.Status = models.FileNoURL
	case file.Size <= 0 || int64(file.Size) > f.maxBytes:
		result.Status = models.FileTooLarge
	default:
		if _, ok := f.allowed[file.Mimetype]; !ok {
			result.Status = models.FileNotSupported
			break
		}
		data, err := f.download(ctx, file)
		if err != nil {
			result.Status = models.FileError
			result.Reason = err.Error()
			break
		}
		result.Status = models.FileDownloaded
		result.Data = data
	}

	return result
}

func (f *FileFetcher) download(ctx context.Context, file slack.File) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URLPrivateDownload, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	// Slack redirects unauthorized downloads to an HTML error page with a
	// 200 status; the content-type check catches that before the body is
	// treated as file content.
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != file.Mimetype {
		return nil, fmt.Errorf("unexpected content type %q (expected %q)", resp.Header.Get("Content-Type"), file.Mimetype)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read download body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("download body exceeds %d bytes", f.maxBytes)
	}
	return data, nil
}
