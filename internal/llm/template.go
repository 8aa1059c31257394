package llm

import (
	"bytes"
	"fmt"
	"text/template"
)

// Schema is implemented by every reply type. Validate runs after the reply has
// been decoded and reports constraints that JSON typing alone cannot express.
type Schema interface {
	Validate() error
}

// Template is a named prompt: system and user text with placeholders, plus the
// top-level reply keys that must be present. Placeholders use text/template
// syntax, so repeated sections are {{range .Emails}}...{{end}}.
type Template struct {
	Name     string
	Required []string

	system *template.Template
	user   *template.Template
}

// NewTemplate parses system and user text. Referencing a missing map key is an
// error at render time.
func NewTemplate(name, system, user string, required ...string) (*Template, error) {
	sys, err := template.New(name + ".system").Option("missingkey=error").Parse(system)
	if err != nil {
		return nil, fmt.Errorf("parse %s system prompt: %w", name, err)
	}
	usr, err := template.New(name + ".user").Option("missingkey=error").Parse(user)
	if err != nil {
		return nil, fmt.Errorf("parse %s user prompt: %w", name, err)
	}
	return &Template{Name: name, Required: required, system: sys, user: usr}, nil
}

// MustTemplate is NewTemplate for package-level prompt definitions.
func MustTemplate(name, system, user string, required ...string) *Template {
	t, err := NewTemplate(name, system, user, required...)
	if err != nil {
		panic(err)
	}
	return t
}

// Render fills both prompts from params (a struct or a map).
func (t *Template) Render(params any) (system, user string, err error) {
	var buf bytes.Buffer
	if err := t.system.Execute(&buf, params); err != nil {
		return "", "", fmt.Errorf("render %s system prompt: %w", t.Name, err)
	}
	system = buf.String()

	buf.Reset()
	if err := t.user.Execute(&buf, params); err != nil {
		return "", "", fmt.Errorf("render %s user prompt: %w", t.Name, err)
	}
	return system, buf.String(), nil
}
