package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/memohai/jester/internal/channel"
)

// fakeReader serves a chronological message list newest-first in pages.
type fakeReader struct {
	mu       sync.Mutex
	messages []channel.RawMessage
	reads    atomic.Int64
	queries  []channel.HistoryQuery
	gate     chan struct{}
	err      error
}

func newFakeReader(n int) *fakeReader {
	r := &fakeReader{}
	for i := 1; i <= n; i++ {
		r.messages = append(r.messages, channel.RawMessage{
			User: "U1",
			TS:   fmt.Sprintf("%d.000100", 1700000000+i),
			Text: fmt.Sprintf("message %d", i),
		})
	}
	return r
}

func (r *fakeReader) History(ctx context.Context, q channel.HistoryQuery) (channel.HistoryPage, error) {
	r.reads.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	if r.err != nil {
		return channel.HistoryPage{}, r.err
	}
	if q.Latest != "" {
		for i := len(r.messages) - 1; i >= 0; i-- {
			m := r.messages[i]
			if m.TS < q.Latest || (q.Inclusive && m.TS == q.Latest) {
				return channel.HistoryPage{Messages: []channel.RawMessage{m}}, nil
			}
		}
		return channel.HistoryPage{}, nil
	}
	offset := 0
	if q.Cursor != "" {
		v, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return channel.HistoryPage{}, errors.New("bad cursor")
		}
		offset = v
	}
	end := len(r.messages) - offset
	start := end - q.Limit
	if start < 0 {
		start = 0
	}
	var page channel.HistoryPage
	for i := end - 1; i >= start; i-- {
		page.Messages = append(page.Messages, r.messages[i])
	}
	if start > 0 {
		page.NextCursor = strconv.Itoa(offset + q.Limit)
	}
	return page, nil
}

type fakeFiles struct {
	fail map[string]bool
	hits atomic.Int64
}

func (f *fakeFiles) FetchFile(ctx context.Context, url string) ([]byte, string, error) {
	f.hits.Add(1)
	if f.fail[url] {
		return nil, "", errors.New("403")
	}
	return []byte("img:" + url), "image/jpeg", nil
}

type fakePreviews struct {
	shots map[string][]byte
	calls atomic.Int64
}

func (p *fakePreviews) Get(ctx context.Context, url string) []byte {
	p.calls.Add(1)
	return p.shots[url]
}
