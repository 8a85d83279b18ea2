package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Lending {{.EventLabel}}]
{{.Summary}}
{{- if .Tier }}
Tier: {{.Tier}}{{ end }}
{{- if .RequesterID }}
Requester: {{.RequesterID}}{{ end }}
{{- if .DeviceID }}
Device: {{.DeviceID}}{{ end }}
{{- if .ReservationID }}
Reservation: {{.ReservationID}}{{ end }}
Time: {{.OccurredAt}}
Seq: {{.Sequence}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Event         string
	EventLabel    string
	Summary       string
	Tier          string
	RequesterID   string
	DeviceID      string
	ReservationID string
	Status        string
	OccurredAt    string
	Sequence      uint64
	CorrelationID string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("lending-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("notify template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
