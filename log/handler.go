// Package log configures the launcher's structured logging (slog) and
// relays log records emitted by modules through the log_message host
// function.
package log

import (
	"io"
	"log/slog"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// HandlerOption configures NewHandler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	level     slog.Level
	format    string
	addSource bool
}

func defaultHandlerConfig() handlerConfig {
	return handlerConfig{level: slog.LevelInfo, format: "text"}
}

// WithLevel sets the minimum level reported.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithFormat selects "text", "json" or "logfmt" output.
func WithFormat(format string) HandlerOption {
	return func(c *handlerConfig) {
		c.format = strings.ToLower(format)
	}
}

// WithSource enables reporting of the caller location.
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// NewHandler returns a slog.Handler writing to w, backed by charmbracelet/log.
func NewHandler(w io.Writer, opts ...HandlerOption) slog.Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	formatter := charmlog.TextFormatter
	switch cfg.format {
	case "json":
		formatter = charmlog.JSONFormatter
	case "logfmt":
		formatter = charmlog.LogfmtFormatter
	}

	return charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(cfg.level),
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		ReportCaller:    cfg.addSource,
		Formatter:       formatter,
		Prefix:          "reglet-launcher",
	})
}

// ParseLevel maps a level name to a slog.Level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}
