package export

import (
	"bytes"
	"html/template"
	"time"
)

var documentTemplate = template.Must(template.New("document").Parse(documentLayout))

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title       string
	Description string
	Locale      string
	ContentHTML template.HTML
	UpdatedAt   time.Time
}

// RenderDocumentHTML renders the document template with provided data
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentLayout = `<!DOCTYPE html>
<html{{if .Locale}} lang="{{.Locale}}"{{end}}>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    img, video { max-width: 100%; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if .Description}}<p class="description">{{.Description}}</p>{{end}}
  {{if not .UpdatedAt.IsZero}}<div class="meta">{{.UpdatedAt.Format "Jan 2, 2006"}}</div>{{end}}
  <div>{{.ContentHTML}}</div>
</body>
</html>`
