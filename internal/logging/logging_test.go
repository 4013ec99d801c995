package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger without a context logger")
	}

	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatal("expected stored logger")
	}
}

func TestStartSpanNestsUnderTrace(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "debug"))

	parentCtx, parent := StartSpan(ctx, "feed.load_more")
	traceID := TraceIDFromContext(parentCtx)
	parentID := SpanIDFromContext(parentCtx)
	if traceID == "" || parentID == "" {
		t.Fatal("expected trace and span ids on the context")
	}

	childCtx, child := StartSpan(parentCtx, "remote.list_posts")
	if TraceIDFromContext(childCtx) != traceID {
		t.Fatal("expected child span to share the trace id")
	}
	if SpanIDFromContext(childCtx) == parentID {
		t.Fatal("expected child span to get its own id")
	}
	child.Fail(errors.New("boom"))
	child.End()
	parent.End()

	var records []map[string]any
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("decode log record: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("expected two span records, got %d", len(records))
	}

	failed, completed := records[0], records[1]
	if failed["msg"] != "span failed" || failed["level"] != "WARN" || failed["error"] != "boom" {
		t.Fatalf("unexpected failed span record: %v", failed)
	}
	if failed["parent_span_id"] != parentID || failed["trace_id"] != traceID {
		t.Fatalf("expected child record linked to parent: %v", failed)
	}
	if completed["msg"] != "span completed" || completed["span_name"] != "feed.load_more" {
		t.Fatalf("unexpected completed span record: %v", completed)
	}
}

func TestNilSpanIsSafe(t *testing.T) {
	var span *Span
	span.Fail(errors.New("ignored"))
	span.End()
}
