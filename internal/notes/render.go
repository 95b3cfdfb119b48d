package notes

import (
	"bytes"
	"context"
	"html/template"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// noteTemplate is the template for a rendered note document.
var noteTemplate = template.Must(template.New("note").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            line-height: 1.6;
            max-width: 800px;
            margin: 0 auto;
            padding: 2rem 1rem;
        }
        code { background-color: #f5f5f5; padding: 0.2em 0.4em; border-radius: 3px; }
        pre { background-color: #f5f5f5; padding: 1rem; overflow-x: auto; }
        .tags span { display: inline-block; margin-right: 0.5em; padding: 0 0.5em; border: 1px solid #ddd; border-radius: 3px; }
    </style>
</head>
<body>
    <article>
        <h1>{{.Title}}</h1>
        {{if .Tags}}<p class="tags">{{range .Tags}}<span>{{.}}</span>{{end}}</p>{{end}}
        {{.Content}}
    </article>
</body>
</html>`))

type templateData struct {
	Title   string
	Tags    []string
	Content template.HTML
}

// sanitizer is safe for concurrent use once built.
var sanitizer = bluemonday.UGCPolicy()

// RenderMarkdown converts markdown to sanitized HTML.
func RenderMarkdown(src string) []byte {
	// Configure the markdown parser with common extensions
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(src))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	rendered := markdown.Render(doc, renderer)

	// Raw HTML in notes passes through the parser; strip anything unsafe.
	return sanitizer.SanitizeBytes(rendered)
}

// RenderNoteHTML renders a complete HTML document for note.
// Title and tags are escaped by html/template.
func RenderNoteHTML(note *Note) []byte {
	var buf bytes.Buffer
	err := noteTemplate.Execute(&buf, templateData{
		Title:   note.Title,
		Tags:    note.Tags,
		Content: template.HTML(RenderMarkdown(note.Content)),
	})
	if err != nil {
		// Fall back to a simple error page if template execution fails
		return []byte("<!DOCTYPE html><html><head><title>Error</title></head><body><h1>Error rendering page</h1></body></html>")
	}
	return buf.Bytes()
}

// RenderHTML renders note id as an HTML document.
func (s *Service) RenderHTML(ctx context.Context, id int64) ([]byte, error) {
	note, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return RenderNoteHTML(note), nil
}
