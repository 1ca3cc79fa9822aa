package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromLogAttrWire(t *testing.T) {
	tests := []struct {
		name string
		wire LogAttrWire
		want slog.Value
	}{
		{
			name: "string",
			wire: LogAttrWire{Key: "k", Type: "string", Value: "value"},
			want: slog.StringValue("value"),
		},
		{
			name: "int64",
			wire: LogAttrWire{Key: "k", Type: "int64", Value: "123"},
			want: slog.Int64Value(123),
		},
		{
			name: "bool",
			wire: LogAttrWire{Key: "k", Type: "bool", Value: "true"},
			want: slog.BoolValue(true),
		},
		{
			name: "float64",
			wire: LogAttrWire{Key: "k", Type: "float64", Value: "1.230000"},
			want: slog.Float64Value(1.23),
		},
		{
			name: "time",
			wire: LogAttrWire{Key: "k", Type: "time", Value: "2024-01-01T00:00:00Z"},
			want: slog.TimeValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			name: "duration",
			wire: LogAttrWire{Key: "k", Type: "duration", Value: "1h0m0s"},
			want: slog.DurationValue(time.Hour),
		},
		{
			name: "bad int falls back to string",
			wire: LogAttrWire{Key: "k", Type: "int64", Value: "many"},
			want: slog.StringValue("many"),
		},
		{
			name: "error",
			wire: LogAttrWire{Key: "k", Type: "error", Value: "boom"},
			want: slog.StringValue("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fromLogAttrWire(tt.wire)
			assert.Equal(t, "k", got.Key)
			assert.True(t, tt.want.Equal(got.Value), "got %v, want %v", got.Value, tt.want)
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	payload, err := json.Marshal(LogMessageWire{
		Level:   "WARN",
		Message: "disk nearly full",
		Attrs:   []LogAttrWire{{Key: "free", Type: "int64", Value: "12"}},
	})
	require.NoError(t, err)

	msg, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, "disk nearly full", msg.Message)
	assert.Len(t, msg.Attrs, 1)

	_, err = DecodeMessage([]byte("{"))
	assert.Error(t, err)
}

func TestRelay(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	Relay(context.Background(), logger, LogMessageWire{
		Level:   "ERROR",
		Message: "request failed",
		Attrs:   []LogAttrWire{{Key: "status", Type: "int64", Value: "503"}},
	}, slog.String("module", "orders"))

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `msg="request failed"`)
	assert.Contains(t, out, "module=orders")
	assert.Contains(t, out, "status=503")
}

func TestRelay_BelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	Relay(context.Background(), logger, LogMessageWire{Level: "DEBUG", Message: "noise"})
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARN "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, WithLevel(slog.LevelWarn), WithFormat("logfmt")))

	logger.Info("hidden")
	logger.Warn("shown", "port", 8080)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "port=8080")
}
