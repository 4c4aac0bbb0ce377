package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLine(t *testing.T, format logFormat, emit func(log *slog.Logger)) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	emit(slog.New(handler))
	require.NoError(t, aw.Flush())
	require.NoError(t, aw.Close())
	return strings.TrimSpace(buf.String())
}

func TestHandlerKVKeyOrder(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	line := captureLine(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", CompRegistration), slog.LevelInfo, "membership.pending",
			slog.Int64("section_id", 3),
			slog.String("status", "ok"),
		)
	})

	tokens := strings.Split(line, " ")
	require.GreaterOrEqual(t, len(tokens), 6, line)
	for i, prefix := range []string{"ts=", "level=INFO", "component=service.registration", "event=membership.pending", "status=ok", "rid=rid-123"} {
		assert.Truef(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, want prefix %s", i, tokens[i], prefix)
	}
	assert.Contains(t, line, "user_id=7")
	assert.Contains(t, line, "section_id=3")
}

func TestHandlerJSONKeyOrder(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-json")

	line := captureLine(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", CompNotify), slog.LevelError, "dispatch.failed",
			slog.String("status", "fail"),
			slog.String("err", "boom"),
		)
	})

	require.True(t, strings.HasPrefix(line, "{"), line)
	pos := -1
	for _, pref := range []string{`{"ts":`, `"level":"ERROR"`, `"component":"service.notify"`, `"event":"dispatch.failed"`, `"status":"fail"`, `"rid":"rid-json"`} {
		idx := strings.Index(line, pref)
		require.Greaterf(t, idx, pos, "%s out of order in %s", pref, line)
		pos = idx
	}
}

func TestHandlerNormalizesDurations(t *testing.T) {
	line := captureLine(t, formatKV, func(log *slog.Logger) {
		log.Info("", slog.Duration("duration", 1500*time.Millisecond), slog.Duration("pacing", 50*time.Millisecond))
	})
	assert.Contains(t, line, "duration_ms=1500")
	assert.Contains(t, line, "pacing_ms=50")
}

func TestHandlerCompactRID(t *testing.T) {
	raw := "123:456:789"
	ctx := WithRID(context.Background(), raw)

	kv := captureLine(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "rid.test")
	})
	assert.Contains(t, kv, "rid="+CompactRID(raw))
	assert.NotContains(t, kv, "rid_full=")

	js := captureLine(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "rid.test")
	})
	assert.Contains(t, js, `"rid":"`+CompactRID(raw)+`"`)
	assert.Contains(t, js, `"rid_full":"`+raw+`"`)
	assert.Contains(t, js, `"ts_unix_nano"`)
}

func TestHelpersAreNoopsWithoutInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Info(context.Background(), CompConversation, "session.begin", slog.String("state", "level"))
		Error(context.Background(), CompNotify, "dispatch.failed")
	})
}
