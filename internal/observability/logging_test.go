package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCtxHandler_AddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&ctxHandler{slog.NewJSONHandler(&buf, nil)})

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSessionID(ctx, "sid-1")
	ctx = WithUserID(ctx, 42)

	logger.InfoContext(ctx, "hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "sid-1", record["session_id"])
	assert.Equal(t, float64(42), record["user_id"])
	assert.Equal(t, "hello", record["msg"])
}

func TestCtxHandler_PlainContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&ctxHandler{slog.NewJSONHandler(&buf, nil)})

	logger.InfoContext(context.Background(), "hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	_, hasRequestID := record["request_id"]
	assert.False(t, hasRequestID)
	_, hasUserID := record["user_id"]
	assert.False(t, hasUserID)
}
