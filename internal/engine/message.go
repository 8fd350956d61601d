package engine

import (
	"fmt"
	"strings"
	"text/template"
)

// DefaultMessageTemplate is the invite message used when none is configured.
const DefaultMessageTemplate = "You are invited to join our group: {{.Link}}"

// MessageFunc renders the invite message for a link.
type MessageFunc func(link string) string

type messageData struct {
	Link string
}

// TemplateMessage parses tmpl as a text/template with a single field, Link.
// The template is executed once here so that errors surface at startup.
func TemplateMessage(tmpl string) (MessageFunc, error) {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultMessageTemplate
	}
	t, err := template.New("message").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse message template: %w", err)
	}

	sample := messageData{Link: "https://example.invalid/invite"}
	var sb strings.Builder
	if err := t.Execute(&sb, sample); err != nil {
		return nil, fmt.Errorf("execute message template: %w", err)
	}
	if !strings.Contains(sb.String(), sample.Link) {
		return nil, fmt.Errorf("message template must include {{.Link}}")
	}

	return func(link string) string {
		var sb strings.Builder
		// Execution was checked above; the data shape never changes.
		_ = t.Execute(&sb, messageData{Link: link})
		return sb.String()
	}, nil
}
