package log

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// LogMessageWire is the JSON wire format of a log record sent by a module.
type LogMessageWire struct {
	Timestamp time.Time     `json:"timestamp"`
	Attrs     []LogAttrWire `json:"attrs,omitempty"`
	Level     string        `json:"level"`
	Message   string        `json:"message"`
}

// LogAttrWire is a single attribute of a LogMessageWire.
type LogAttrWire struct {
	Key   string `json:"key"`
	Type  string `json:"type"`  // "string", "int64", "uint64", "bool", "float64", "time", "duration", "error", "json", "any"
	Value string `json:"value"` // String representation of the value
}

// DecodeMessage parses a LogMessageWire payload.
func DecodeMessage(payload []byte) (LogMessageWire, error) {
	var msg LogMessageWire
	if err := json.Unmarshal(payload, &msg); err != nil {
		return LogMessageWire{}, fmt.Errorf("decode log message: %w", err)
	}
	return msg, nil
}

// Relay re-emits a module's log record on logger. attrs identify the
// module and are prepended to the record's own attributes.
func Relay(ctx context.Context, logger *slog.Logger, msg LogMessageWire, attrs ...slog.Attr) {
	level := ParseLevel(msg.Level)
	if !logger.Enabled(ctx, level) {
		return
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	record := slog.NewRecord(ts, level, msg.Message, 0)
	record.AddAttrs(attrs...)
	for _, a := range msg.Attrs {
		record.AddAttrs(fromLogAttrWire(a))
	}
	_ = logger.Handler().Handle(ctx, record)
}

// fromLogAttrWire converts a wire attribute back into a typed slog.Attr.
// Values that fail to parse are kept as strings.
func fromLogAttrWire(a LogAttrWire) slog.Attr {
	switch a.Type {
	case "int64":
		if v, err := strconv.ParseInt(a.Value, 10, 64); err == nil {
			return slog.Int64(a.Key, v)
		}
	case "uint64":
		if v, err := strconv.ParseUint(a.Value, 10, 64); err == nil {
			return slog.Uint64(a.Key, v)
		}
	case "bool":
		if v, err := strconv.ParseBool(a.Value); err == nil {
			return slog.Bool(a.Key, v)
		}
	case "float64":
		if v, err := strconv.ParseFloat(a.Value, 64); err == nil {
			return slog.Float64(a.Key, v)
		}
	case "time":
		if v, err := time.Parse(time.RFC3339Nano, a.Value); err == nil {
			return slog.Time(a.Key, v)
		}
	case "duration":
		if v, err := time.ParseDuration(a.Value); err == nil {
			return slog.Duration(a.Key, v)
		}
	case "json":
		var v any
		if err := json.Unmarshal([]byte(a.Value), &v); err == nil {
			return slog.Any(a.Key, v)
		}
	}
	return slog.String(a.Key, a.Value)
}
