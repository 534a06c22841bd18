package strings

import (
	"strings"
	"text/template"
)

// TextTemplate wraps text/template with an owned strings.Builder so callers
// render a prompt by Execute-then-Render instead of juggling a
// template.Template and an io.Writer themselves.
type TextTemplate struct {
	tp *template.Template
	sb *strings.Builder
}

func NewTextTemplate() *TextTemplate {
	return &TextTemplate{
		tp: template.New("template"),
		sb: new(strings.Builder),
	}
}

// Render returns whatever Execute has written so far.
func (t *TextTemplate) Render() string {
	return t.sb.String()
}

// ExecuteMap is Execute for the common case of a map[string]any attr bag.
func (t *TextTemplate) ExecuteMap(content string, attr map[string]any) error {
	return t.Execute(content, attr)
}

// Execute parses content as a template and renders it against attr into the
// builder. A later call appends rather than replacing prior output.
func (t *TextTemplate) Execute(content string, attr any) error {
	parsed, err := t.tp.Parse(content)
	if err != nil {
		return err
	}
	t.tp = parsed
	return t.tp.Execute(t.sb, attr)
}
