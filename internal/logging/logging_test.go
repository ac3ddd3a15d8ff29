package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/example/litedb/internal/persistence"
	"github.com/example/litedb/internal/persistence/mapping"
)

func TestComponentPrefersContextLogger(t *testing.T) {
	var fromCtx, fromBase bytes.Buffer
	ctxLogger := slog.New(slog.NewJSONHandler(&fromCtx, nil))
	base := slog.New(slog.NewJSONHandler(&fromBase, nil))

	ctx := ContextWithLogger(context.Background(), ctxLogger)
	Component(ctx, base, "migration", "run", "version", 3).Info("hello")

	if fromBase.Len() != 0 {
		t.Fatalf("base logger should not be used, got %q", fromBase.String())
	}

	var entry map[string]any
	if err := json.Unmarshal(fromCtx.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["component"] != "migration" || entry["operation"] != "run" || entry["version"] != float64(3) {
		t.Fatalf("unexpected attributes: %v", entry)
	}
}

func TestComponentFallsBackToBase(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	Component(context.Background(), base, "configstore", "").Info("reloaded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if _, ok := entry["operation"]; ok {
		t.Fatalf("empty operation should be omitted: %v", entry)
	}
}

func TestContextWithLoggerIgnoresNil(t *testing.T) {
	ctx := context.Background()
	if got := ContextWithLogger(ctx, nil); got != ctx {
		t.Fatalf("expected original context")
	}
	if FromContext(ctx) != nil {
		t.Fatalf("expected no logger in bare context")
	}
}

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"":           nil,
		"not_found":  fmt.Errorf("get: %w", persistence.ErrNotFound),
		"duplicate":  persistence.ErrDuplicate,
		"constraint": persistence.ErrConstraint,
		"locked":     persistence.ErrLocked,
		"coercion":   &mapping.CoercionError{Err: errors.New("bad")},
		"canceled":   context.Canceled,
		"unexpected": errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Errorf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
