package prompts

import (
	"fmt"
	"strings"
	"text/template"
)

// Source renders named prompt templates with parameters.
type Source struct {
	tmpl *template.Template
}

func New() (*Source, error) {
	t := template.New("prompts")
	for name, body := range templates {
		if _, err := t.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", name, err)
		}
	}
	return &Source{tmpl: t}, nil
}

func (s *Source) Get(name string, params map[string]any) (string, error) {
	var b strings.Builder
	if err := s.tmpl.ExecuteTemplate(&b, name, params); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
