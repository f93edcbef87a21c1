// Package output renders command results as text or JSON.
package output

import (
	"fmt"
	"io"
	"text/tabwriter"

	json "github.com/goccy/go-json"
)

// Formats accepted by --output.
const (
	Text = "text"
	JSON = "json"
)

// Render writes payload as indented JSON or calls text for the text format.
func Render(w io.Writer, format string, payload any, text func(io.Writer) error) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(payload)
	case Text, "":
		return text(w)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// Table returns a tab-aligned writer; call Flush when done.
func Table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
