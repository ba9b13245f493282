package digest

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var titleCaser = cases.Title(language.English, cases.NoLower)

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		return t.UTC().Format("Mon, 02 Jan 2006 15:04 MST")
	},
	"plural": func(n int, singular, plural string) string {
		if n == 1 {
			return singular
		}
		return plural
	},
}

// Renderer produces digest and test email bodies from the embedded
// plain-text templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("digest").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// Digest renders the subject and body for a channel digest.
func (r *Renderer) Digest(dig *ChannelDigest) (subject, body string, err error) {
	title := dig.ChannelTitle
	if title == "" {
		title = dig.ChannelURL
		subject = fmt.Sprintf("New uploads from %s", title)
	} else {
		subject = fmt.Sprintf("New uploads from %s", titleCaser.String(title))
	}

	var buf strings.Builder
	data := struct {
		ChannelTitle string
		ChannelURL   string
		Videos       []Video
	}{
		ChannelTitle: title,
		ChannelURL:   dig.ChannelURL,
		Videos:       dig.Videos,
	}
	if err := r.templates.ExecuteTemplate(&buf, "digest.tmpl", data); err != nil {
		return "", "", fmt.Errorf("render digest: %w", err)
	}
	return subject, buf.String(), nil
}

// TestEmail renders the body for an admin test message.
func (r *Renderer) TestEmail(message string) (string, error) {
	var buf strings.Builder
	data := struct{ Message string }{Message: message}
	if err := r.templates.ExecuteTemplate(&buf, "test.tmpl", data); err != nil {
		return "", fmt.Errorf("render test email: %w", err)
	}
	return buf.String(), nil
}
