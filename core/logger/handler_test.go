package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, format logFormat) (*slog.Logger, func() string) {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	return slog.New(handler), func() string {
		if err := aw.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		return strings.TrimSpace(buf.String())
	}
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	log, output := newTestLogger(t, formatKV)
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithChannel(ctx, "whatsapp")

	LogEvent(ctx, log.With("component", "flow"), slog.LevelInfo, "turn.handled",
		slog.String("status", "OK"),
		slog.String("state", "MENU"),
	)

	line := output()
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=flow", "event=turn.handled", "status=ok", "rid=rid-123", "channel=whatsapp", "state=MENU"}
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
	log, output := newTestLogger(t, formatJSON)
	ctx := WithRID(context.Background(), "rid-json")

	LogEvent(ctx, log.With("component", "wallet"), slog.LevelError, "debit.failed",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
	)

	line := output()
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"wallet"`, `"event":"debit.failed"`, `"status":"fail"`, `"rid":"rid-json"`, `"ts_unix_nano"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerMasksPhones(t *testing.T) {
	log, output := newTestLogger(t, formatKV)
	ctx := WithIdentity(context.Background(), "2348012345678")

	LogEvent(ctx, log, slog.LevelInfo, "airtime.sent", slog.String("recipient", "08031112222"))

	line := output()
	if strings.Contains(line, "2348012345678") || strings.Contains(line, "08031112222") {
		t.Fatalf("phone numbers leaked: %s", line)
	}
	if !strings.Contains(line, "identity=*********5678") {
		t.Fatalf("expected masked identity, got %s", line)
	}
	if !strings.Contains(line, "recipient=*******2222") {
		t.Fatalf("expected masked recipient, got %s", line)
	}
}

func TestStructuredHandlerDurationAndEmpty(t *testing.T) {
	log, output := newTestLogger(t, formatKV)

	log.Info("", slog.Duration("duration", 1499*time.Microsecond), slog.String("cause", ""))

	line := output()
	if !strings.Contains(line, "duration_ms=1") {
		t.Fatalf("expected duration_ms, got %s", line)
	}
	if strings.Contains(line, "cause=") {
		t.Fatalf("empty attrs must be pruned, got %s", line)
	}
	if !strings.Contains(line, "event=unknown") || !strings.Contains(line, "component=app") {
		t.Fatalf("expected default event and component, got %s", line)
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	var allowed int
	for i := 0; i < 9; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("allowed = %d, want 3", allowed)
	}

	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("disabled sampler must allow everything")
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := map[string][2]int{
		"1/50": {1, 50},
		"10":   {1, 10},
		"0":    {0, 0},
		"x/y":  {0, 0},
	}
	for in, want := range cases {
		num, den := parseRatioSpec(in)
		if num != want[0] || den != want[1] {
			t.Fatalf("parseRatioSpec(%q) = %d/%d, want %d/%d", in, num, den, want[0], want[1])
		}
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("1234"); got != "1234" {
		t.Fatalf("short phone changed: %s", got)
	}
	if got := MaskPhone("12345678"); got != "****5678" {
		t.Fatalf("MaskPhone = %s", got)
	}
}

func TestStructuredHandlerAddsHandlerFromContext(t *testing.T) {
	log, output := newTestLogger(t, formatKV)
	ctx := WithHandler(context.Background(), "receive")

	LogEvent(ctx, log, slog.LevelInfo, "turn.handled")

	if line := output(); !strings.Contains(line, "handler=receive") {
		t.Fatalf("expected handler from context, got %s", line)
	}
}

func TestSanitizeLimit(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"jane\x00doe", 32, "janedoe"},
		{"jané_doe", 4, "jané"},
		{"anything", 0, ""},
		{"line\nbreak", 32, "line\nbreak"},
	}
	for _, tc := range cases {
		if got := SanitizeLimit(tc.in, tc.max); got != tc.want {
			t.Fatalf("SanitizeLimit(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestComponentScopesLogger(t *testing.T) {
	if Component("  ") != L {
		t.Fatalf("blank component must return the root logger")
	}
	if Component("jobs") == L {
		t.Fatalf("named component must derive a new logger")
	}
}
