package history

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/memohai/jester/internal/channel"
)

var linkPattern = regexp.MustCompile(`https?://[^\s<>|]+`)

// Links returns the distinct http(s) links in text, in order of appearance.
// Platform link markup such as <https://x.io|label> yields only the URL, and
// trailing sentence punctuation is dropped.
func Links(text string) []string {
	found := linkPattern.FindAllString(text, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(found))
	out := make([]string, 0, len(found))
	for _, u := range found {
		u = strings.TrimRight(u, ".,;:!?)'\"")
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Materialize converts a raw platform message into a history entry, resolving
// uploaded file thumbnails, image blocks and link previews concurrently. A source
// that fails is omitted without affecting the others.
func (s *Store) Materialize(ctx context.Context, raw channel.RawMessage) channel.Message {
	msg := raw.TextOnly()

	var fileURLs []string
	for _, f := range raw.Files {
		if u := f.ThumbnailURL(); u != "" {
			fileURLs = append(fileURLs, u)
		}
	}
	var blockURLs []string
	for _, b := range raw.Blocks {
		if b.Type == "image" && strings.TrimSpace(b.ImageURL) != "" {
			blockURLs = append(blockURLs, b.ImageURL)
		}
	}
	var links []string
	if s.previews != nil {
		links = Links(raw.Text)
	}

	files := make([]*channel.Image, len(fileURLs))
	previews := make([]*channel.Image, len(links))

	var g errgroup.Group
	if s.files != nil {
		for i, u := range fileURLs {
			g.Go(func() error {
				data, mime, err := s.files.FetchFile(ctx, u)
				if err != nil {
					s.logger.Warn("file thumbnail skipped", slog.String("ts", raw.TS), slog.String("url", u), slog.Any("error", err))
					return nil
				}
				files[i] = &channel.Image{Source: channel.ImageSourceFile, URL: u, Data: data, MIMEType: mime}
				return nil
			})
		}
	}
	for i, u := range links {
		g.Go(func() error {
			shot := s.previews.Get(ctx, u)
			if len(shot) == 0 {
				return nil
			}
			previews[i] = &channel.Image{Source: channel.ImageSourceLink, URL: u, Data: shot, MIMEType: "image/png"}
			return nil
		})
	}
	_ = g.Wait()

	for _, img := range files {
		if img != nil {
			msg.Images = append(msg.Images, *img)
		}
	}
	for _, u := range blockURLs {
		msg.Images = append(msg.Images, channel.Image{Source: channel.ImageSourceBlock, URL: u})
	}
	for _, img := range previews {
		if img != nil {
			msg.Images = append(msg.Images, *img)
		}
	}
	return msg
}
