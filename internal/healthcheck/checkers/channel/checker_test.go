package channelchecker

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/memohai/jester/internal/channel"
	"github.com/memohai/jester/internal/healthcheck"
)

type fakeConnectionObserver struct {
	connected bool
	identity  channel.Identity
}

func (f *fakeConnectionObserver) Connected() bool            { return f.connected }
func (f *fakeConnectionObserver) Identity() channel.Identity { return f.identity }

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckerListChecks(t *testing.T) {
	t.Parallel()

	observer := &fakeConnectionObserver{connected: true, identity: channel.Identity{UserID: "U042", TeamID: "T1"}}
	checker := NewChecker(newTestLogger(), observer)

	items := checker.ListChecks(context.Background())
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Status != healthcheck.StatusOK {
		t.Fatalf("unexpected status: %s", items[0].Status)
	}
	if items[0].Metadata["user_id"] != "U042" {
		t.Fatalf("unexpected metadata: %v", items[0].Metadata)
	}

	observer.connected = false
	items = checker.ListChecks(context.Background())
	if items[0].Status != healthcheck.StatusError {
		t.Fatalf("expected error status when disconnected, got %s", items[0].Status)
	}
}

func TestCheckerWithoutObserver(t *testing.T) {
	t.Parallel()

	items := NewChecker(newTestLogger(), nil).ListChecks(context.Background())
	if len(items) != 1 || items[0].Status != healthcheck.StatusWarn {
		t.Fatalf("expected one warn item, got %+v", items)
	}
}

func TestCheckerCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := NewChecker(newTestLogger(), &fakeConnectionObserver{connected: true}).ListChecks(ctx)
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}
