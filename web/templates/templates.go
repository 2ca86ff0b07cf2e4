// Package templates holds the embedded HTML pages of the dashboard.
package templates

import (
	"embed"
	"html/template"

	"github.com/herdwatch/herdwatch/web/templates/components"
)

//go:embed html/*.html
var htmlFS embed.FS

// FuncMap returns the helpers available in every page.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"relativeTime": components.FormatRelativeTime,
		"fileSize":     components.FormatFileSize,
		"timestamp":    components.FormatTimestamp,
		"percent":      components.FormatPercent,
		"count":        components.FormatCount,
	}
}

// Load parses all pages. Templates are named after their file, e.g. "dashboard.html".
func Load() (*template.Template, error) {
	return template.New("").Funcs(FuncMap()).ParseFS(htmlFS, "html/*.html")
}
