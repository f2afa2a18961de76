package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewText_WritesLevelsAndAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := NewText(&buf, "debug")
	ctx := context.Background()

	log.Debug(ctx, "dbg", "chat_id", "c1")
	log.Info(ctx, "inf", "history", 3)
	log.Warn(ctx, "wrn", "attempt", 2)
	log.Error(ctx, "err", "message_id", "m1")

	out := buf.String()
	for _, s := range []string{
		"level=DEBUG", "msg=dbg", "chat_id=c1",
		"level=INFO", "msg=inf", "history=3",
		"level=WARN", "msg=wrn", "attempt=2",
		"level=ERROR", "msg=err", "message_id=m1",
	} {
		assert.Contains(t, out, s)
	}
}

func TestWith_AddsComponentToEveryLine(t *testing.T) {
	var buf bytes.Buffer
	log := NewText(&buf, "info").With("component", "msgsync")

	log.Info(context.Background(), "opened", "chat_id", "c1")

	assert.Contains(t, buf.String(), "component=msgsync")
	assert.Contains(t, buf.String(), "chat_id=c1")
}

func TestNewText_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewText(&buf, "warn")

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewJSON_EmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	NewJSON(&buf, "info").Info(context.Background(), "relay started", "addr", ":50051")

	require.Contains(t, buf.String(), `"msg":"relay started"`)
	assert.Contains(t, buf.String(), `"addr":":50051"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNop_DoesNotPanic(t *testing.T) {
	log := Nop().With("k", "v")
	require.NotPanics(t, func() {
		log.Info(context.TODO(), "x")
		log.Error(context.TODO(), "y")
	})
}
