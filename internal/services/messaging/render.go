package messaging

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer turns markdown message bodies into HTML. goldmark escapes raw HTML
// unless the unsafe renderer option is set, which it is not.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{md: goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))}
}

// Render returns the HTML form of body, or "" if conversion fails.
func (r *Renderer) Render(body string) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(body), &buf); err != nil {
		return ""
	}
	return buf.String()
}
