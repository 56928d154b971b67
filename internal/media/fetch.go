package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxImageBytes bounds a single fetched image.
const DefaultMaxImageBytes int64 = 20 * 1024 * 1024

// Fetcher downloads images over HTTP with a size bound.
type Fetcher struct {
	http     *http.Client
	maxBytes int64
}

// NewFetcher creates a Fetcher. A nil client gets one with timeout.
func NewFetcher(client *http.Client, maxBytes int64, timeout time.Duration) *Fetcher {
	if client == nil {
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &Fetcher{http: client, maxBytes: maxBytes}
}

// FetchImage GETs url with the extra headers and returns the body and its mime type.
// Payloads that do not sniff as images are rejected: private file URLs answer an
// HTML login page when the token is missing or wrong.
func (f *Fetcher) FetchImage(ctx context.Context, url string, header http.Header) ([]byte, string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, "", fmt.Errorf("image url is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: http %d", ErrFetchStatus, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", fmt.Errorf("%w: over %d bytes", ErrAssetTooLarge, f.maxBytes)
	}
	mime := ImageMime(resp.Header.Get("Content-Type"), data)
	if mime == "" {
		return nil, "", ErrNotImage
	}
	return data, mime, nil
}

// ImageMime returns the image mime type of data, preferring the declared header.
// It returns "" when neither looks like an image.
func ImageMime(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return ""
}
