package template_test

import (
	"testing"

	"github.com/reglet-dev/reglet-launcher/application/template"
	"github.com/reglet-dev/reglet-launcher/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoTemplateEngine_Render(t *testing.T) {
	engine := template.NewGoTemplateEngine()

	t.Run("Successful Resolution", func(t *testing.T) {
		out, err := engine.Render([]byte(`--listen=:{{.Port}}`), map[string]any{"Port": 8082})
		require.NoError(t, err)
		assert.Equal(t, "--listen=:8082", string(out))
	})

	t.Run("Missing Key Fails", func(t *testing.T) {
		_, err := engine.Render([]byte(`{{.Missing}}`), map[string]any{"Port": 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "map has no entry for key")
	})

	t.Run("Invalid Template Syntax", func(t *testing.T) {
		_, err := engine.Render([]byte(`{{.Port`), map[string]any{"Port": 1})
		require.Error(t, err)
	})
}

func TestGoTemplateEngine_Lenient(t *testing.T) {
	engine := template.NewGoTemplateEngine(template.WithStrict(false))

	out, err := engine.Render([]byte(`[{{.Missing}}]`), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "[<no value>]", string(out))
}

func TestRenderArgs(t *testing.T) {
	d := entities.LaunchDescriptor{Module: "orders", ArchivePath: "/opt/modules/orders.zip", Port: 8081}
	values := template.LaunchValues("orders", d)

	args, err := template.RenderArgs(template.NewGoTemplateEngine(), []string{
		"--db=/data/{{.Namespace}}.db",
		"--name={{.Name}}",
		"plain",
	}, values)
	require.NoError(t, err)
	assert.Equal(t, []string{"--db=/data/module-8081.db", "--name=orders", "plain"}, args)
}

func TestRenderArgs_Error(t *testing.T) {
	_, err := template.RenderArgs(template.NewGoTemplateEngine(), []string{"ok", "{{.Nope}}"}, map[string]any{})
	assert.ErrorContains(t, err, "argument 1")
}
