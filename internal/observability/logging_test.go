package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithQueueKey(t *testing.T) {
	ctx := WithQueueKey(context.Background(), "PushEvent#12")

	lc := GetContext(ctx)
	if lc.QueueKey != "PushEvent#12" {
		t.Errorf("expected PushEvent#12, got %s", lc.QueueKey)
	}
}

func TestWithBuild(t *testing.T) {
	ctx := WithBuild(context.Background(), "module", 42)

	lc := GetContext(ctx)
	if lc.BuildKind != "module" || lc.BuildID != 42 {
		t.Errorf("expected module/42, got %s/%d", lc.BuildKind, lc.BuildID)
	}
}

func TestContextLayering(t *testing.T) {
	ctx := WithInstanceID(context.Background(), "node-a")
	ctx = WithQueueKey(ctx, "ModuleBuildEvent#3")
	inner := WithHandler(ctx, "module-launcher")

	if GetContext(ctx).Handler != "" {
		t.Error("outer context must not see the handler of a derived context")
	}
	lc := GetContext(inner)
	if lc.InstanceID != "node-a" || lc.QueueKey != "ModuleBuildEvent#3" || lc.Handler != "module-launcher" {
		t.Errorf("unexpected log context %+v", lc)
	}
}

func TestAttrsEmpty(t *testing.T) {
	if attrs := Attrs(context.Background()); len(attrs) != 0 {
		t.Errorf("expected no attrs, got %v", attrs)
	}
}

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil))).With("component", "test")

	ctx := WithBuild(WithHandler(context.Background(), "slack-dm"), "repository", 7)
	logger.InfoContext(ctx, "visited")

	out := buf.String()
	for _, want := range []string{"component=test", "handler=slack-dm", "build_kind=repository", "build_id=7", "msg=visited"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}

	buf.Reset()
	logger.Info("plain")
	if strings.Contains(buf.String(), "handler=") {
		t.Errorf("record without context must not carry context attrs: %q", buf.String())
	}
}
