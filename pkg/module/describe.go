package module

import (
	"github.com/ethpandaops/seriesgraph/pkg/expr"
	"github.com/ethpandaops/seriesgraph/pkg/render"
)

const describeTemplate = `# {{ .Name }}
{{ with .Doc }}
{{ . | trim }}
{{ end }}
## Parameters
{{ range .Params }}
- ` + "`{{ .Name }}`" + ` ({{ .Kind }}){{ with .Doc }}: {{ . }}{{ end }}
{{- end }}

## Exports
{{ range .Exports }}
- ` + "`{{ .Name }}`" + `{{ with .Doc }}: {{ . }}{{ end }}
  ` + "`{{ .Expression }}`" + `
{{- end }}
`

type describeExport struct {
	Name       string
	Doc        string
	Expression string
}

// Describe renders markdown documentation for m.
func Describe(m *Module) (string, error) {
	exports := make([]describeExport, 0, len(m.exports))
	for _, name := range m.ExportNames() {
		exports = append(exports, describeExport{
			Name:       name,
			Doc:        m.exportDocs[name],
			Expression: expr.Format(m.exports[name]),
		})
	}

	return render.NewTemplateEngine().Render(m.name, describeTemplate, map[string]any{
		"Name":    m.name,
		"Doc":     m.doc,
		"Params":  m.params,
		"Exports": exports,
	})
}
