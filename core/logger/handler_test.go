package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func capture(t *testing.T, format lineFormat, emit func(*slog.Logger)) string {
	t.Helper()
	buf := &bytes.Buffer{}
	w := newLineWriter([]io.Writer{buf}, 16)
	log := slog.New(newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		out:    w,
		format: format,
	}))
	emit(log)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	line := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", "app"), slog.LevelInfo, "test.event",
			slog.String("status", "ok"),
			slog.String("cause", "unit"),
		)
	})

	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-json")

	line := capture(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", "service.orders"), slog.LevelError, "order.fail",
			slog.String("status", "fail"),
			slog.Any("err", errors.New("boom")),
			slog.String("order_id", "o-1"),
		)
	})

	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"service.orders"`, `"event":"order.fail"`, `"status":"fail"`, `"rid":"rid-json"`, `"order_id":"o-1"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	ctx := WithRID(context.Background(), BuildRID(123, 456, 789))

	kv := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "rid.test")
	})
	if !strings.Contains(kv, "rid=3f.co.lx") {
		t.Fatalf("expected compact rid, got %s", kv)
	}
	if strings.Contains(kv, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", kv)
	}

	js := capture(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "rid.test")
	})
	if !strings.Contains(js, `"rid":"3f.co.lx"`) || !strings.Contains(js, `"rid_full":"123:456:789"`) {
		t.Fatalf("expected compact rid and rid_full in JSON, got %s", js)
	}
	if !strings.Contains(js, `"ts_unix_nano"`) {
		t.Fatalf("expected ts_unix_nano in JSON output, got %s", js)
	}
}

func TestCompactRIDLeavesForeignValues(t *testing.T) {
	for _, rid := range []string{"rid-123", "1:2", "a:b:c"} {
		if got := CompactRID(rid); got != rid {
			t.Fatalf("CompactRID(%q) = %q", rid, got)
		}
	}
}

func TestStructuredHandlerBotAndOrderFields(t *testing.T) {
	ctx := WithBot(context.Background(), "admin")
	ctx = WithUpdateMeta(ctx, 5, 100, 100)

	line := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", "bot.admin"), slog.LevelInfo, "order.completed",
			slog.String("status", "OK"),
			slog.String("order_id", "o-1"),
			slog.String("outcome", "already_resolved"),
			slog.String("to_status", "completed"),
		)
	})

	botIdx := strings.Index(line, "bot=admin")
	userIdx := strings.Index(line, "user_id=100")
	orderIdx := strings.Index(line, "order_id=o-1")
	if botIdx == -1 || userIdx == -1 || orderIdx == -1 {
		t.Fatalf("expected bot, user_id and order_id in %s", line)
	}
	if botIdx >= userIdx || userIdx >= orderIdx {
		t.Fatalf("unexpected key order in %s", line)
	}
	for _, want := range []string{"status=ok", "outcome=already_resolved", "to_status=completed"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
}

func TestStructuredHandlerDropsUnknownOutcome(t *testing.T) {
	line := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(context.Background(), log, slog.LevelInfo, "x",
			slog.String("outcome", "exploded"),
			slog.String("status", "weird"),
		)
	})
	if strings.Contains(line, "outcome=") {
		t.Fatalf("unknown outcome should be dropped, got %s", line)
	}
	if !strings.Contains(line, "status=weird") {
		t.Fatalf("status keeps values outside the vocabulary, got %s", line)
	}
}

func TestStructuredHandlerDurationsAndGroups(t *testing.T) {
	line := capture(t, formatKV, func(log *slog.Logger) {
		log.WithGroup("sender").Info("send",
			slog.Duration("duration", 1499*time.Microsecond),
			slog.Duration("backoff", 2*time.Second),
			slog.String("empty", ""),
		)
	})
	for _, want := range []string{"event=send", "sender.duration_ms=1", "sender.backoff_ms=2000"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
	if strings.Contains(line, "empty") {
		t.Fatalf("empty strings should be pruned, got %s", line)
	}
}

func TestKVQuotesValuesWithSpaces(t *testing.T) {
	line := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(context.Background(), log, slog.LevelInfo, "x", slog.String("cause", "two words"))
	})
	if !strings.Contains(line, `cause="two words"`) {
		t.Fatalf("expected quoted value, got %s", line)
	}
}

func TestLineWriterRejectsWritesAfterClose(t *testing.T) {
	w := newLineWriter([]io.Writer{io.Discard}, 1)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Write([]byte("late\n")); !errors.Is(err, errWriterClosed) {
		t.Fatalf("expected errWriterClosed, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestLineWriterKeepsFirstError(t *testing.T) {
	w := newLineWriter([]io.Writer{failingWriter{}}, 1)
	_ = w.Write([]byte("a\n"))
	if err := w.Flush(); err == nil {
		t.Fatal("expected flush error")
	}
	if err := w.Write([]byte("b\n")); err == nil {
		t.Fatal("expected sticky error on write")
	}
	_ = w.Close()
}

func TestSamplerRatio(t *testing.T) {
	var s sampler
	s.set(2, 5)
	allowed := 0
	for i := 0; i < 50; i++ {
		if s.allow() {
			allowed++
		}
	}
	if allowed != 20 {
		t.Fatalf("allowed = %d, want 20", allowed)
	}

	s.set(0, 0)
	if !s.allow() {
		t.Fatal("zero ratio admits everything")
	}
}

func TestParseRatio(t *testing.T) {
	cases := map[string][2]int{
		"1/10": {1, 10},
		"20":   {1, 20},
		"0":    {0, 0},
		"x/y":  {0, 0},
		"":     {0, 0},
	}
	for raw, want := range cases {
		n, d := parseRatio(raw)
		if n != want[0] || d != want[1] {
			t.Fatalf("parseRatio(%q) = %d/%d, want %d/%d", raw, n, d, want[0], want[1])
		}
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("a\x00b\u200bc\td", 10); got != "abc\td" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("héllo", 2); got != "hé" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
}
