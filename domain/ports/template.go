package ports

// TemplateEngine renders templates with launch values.
type TemplateEngine interface {
	// Render processes raw template bytes with the provided values.
	// Returns resolved bytes with all template placeholders replaced.
	Render(raw []byte, values map[string]any) ([]byte, error)
}
