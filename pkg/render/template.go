// Package render provides text template rendering with Sprig functions for command output and
// module documentation.
package render

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// TemplateEngine provides template rendering with Sprig functions
type TemplateEngine struct {
	funcMap template.FuncMap
}

// NewTemplateEngine creates a new template engine with Sprig functions
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{
		funcMap: sprig.TxtFuncMap(),
	}
}

// Render renders a template with the given data
func (t *TemplateEngine) Render(name, content string, data any) (string, error) {
	tmpl, err := template.New(name).Funcs(t.funcMap).Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
