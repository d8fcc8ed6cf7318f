// Package portal holds helpers shared by the portal drivers.
package portal

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/jpalmerr/parkwatch"
)

// DateFields is the data a [DateTemplate] is executed with.
type DateFields struct {
	Year  int
	Month string // two digits, 01-12
	Day   int
	// FirstWeekday is the weekday of the first of the month, 0 for Sunday.
	// Calendars that pad the grid with blank cells need it to find the day.
	FirstWeekday int
	// ISO is the date as YYYY-MM-DD.
	ISO string
}

// DateTemplate renders selectors and URLs that depend on the target date,
// such as "#calendar_{{.Year}}-{{.Month}} > div:nth-child({{.Day}})".
//
// Templates may use add to offset a cell index:
// "div:nth-child({{add .Day .FirstWeekday}})".
type DateTemplate struct {
	raw  string
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}

// NewDateTemplate parses text. name is used in error messages.
func NewDateTemplate(name, text string) (*DateTemplate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: template is empty", name)
	}
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &DateTemplate{raw: text, tmpl: tmpl}, nil
}

// Render executes the template for date.
func (t *DateTemplate) Render(date parkwatch.TargetDate) (string, error) {
	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, Fields(date)); err != nil {
		return "", fmt.Errorf("render %s: %w", t.tmpl.Name(), err)
	}
	return sb.String(), nil
}

// String returns the unparsed template text.
func (t *DateTemplate) String() string {
	return t.raw
}

// Fields computes the template data for date.
func Fields(date parkwatch.TargetDate) DateFields {
	first := time.Date(date.Year, date.Month, 1, 0, 0, 0, 0, time.UTC)
	return DateFields{
		Year:         date.Year,
		Month:        fmt.Sprintf("%02d", int(date.Month)),
		Day:          date.Day,
		FirstWeekday: int(first.Weekday()),
		ISO:          date.String(),
	}
}
