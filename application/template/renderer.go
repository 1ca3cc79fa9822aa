// Package template renders manifest startup arguments with launch values.
package template

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/reglet-dev/reglet-launcher/domain/entities"
	"github.com/reglet-dev/reglet-launcher/domain/ports"
)

// Launch value keys available to templates.
const (
	KeyName      = "Name"
	KeyPort      = "Port"
	KeyNamespace = "Namespace"
)

type templateConfig struct {
	strict bool // Fail on missing keys
}

func defaultTemplateConfig() templateConfig {
	return templateConfig{strict: true}
}

// TemplateOption configures a GoTemplateEngine.
type TemplateOption func(*templateConfig)

// WithStrict enables/disables strict mode for missing keys.
// When enabled (default), rendering fails if a referenced key is missing.
func WithStrict(enabled bool) TemplateOption {
	return func(c *templateConfig) {
		c.strict = enabled
	}
}

// GoTemplateEngine implements TemplateEngine using text/template.
type GoTemplateEngine struct {
	config templateConfig
}

// NewGoTemplateEngine creates a new GoTemplateEngine.
func NewGoTemplateEngine(opts ...TemplateOption) ports.TemplateEngine {
	cfg := defaultTemplateConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &GoTemplateEngine{config: cfg}
}

// Render executes raw as a template over values.
func (e *GoTemplateEngine) Render(raw []byte, values map[string]any) ([]byte, error) {
	tmpl := template.New("arg")
	if e.config.strict {
		tmpl = tmpl.Option("missingkey=error")
	}

	tmpl, err := tmpl.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, values); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// LaunchValues returns the template values of a launch.
func LaunchValues(name string, d entities.LaunchDescriptor) map[string]any {
	return map[string]any{
		KeyName:      name,
		KeyPort:      d.Port,
		KeyNamespace: d.Namespace(),
	}
}

// RenderArgs renders every argument with values, in order.
func RenderArgs(engine ports.TemplateEngine, args []string, values map[string]any) ([]string, error) {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		rendered, err := engine.Render([]byte(arg), values)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, string(rendered))
	}
	return out, nil
}
