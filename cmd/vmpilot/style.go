package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/loykin/vmpilot/internal/provision"
)

var (
	colorError   = lipgloss.Color("196")
	colorSuccess = lipgloss.Color("76")
	colorMuted   = lipgloss.Color("242")
	colorAccent  = lipgloss.Color("39")

	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
)

// renderLine styles one script output line. stderr lines keep their
// "[ERROR] " prefix so logs and terminals read the same.
func renderLine(l provision.OutputLine) string {
	if l.Stream == provision.StreamStderr {
		return errorStyle.Render(l.Display())
	}
	return l.Display()
}

func renderError(err error) string   { return errorStyle.Render("Error: " + err.Error()) }
func renderSuccess(msg string) string { return successStyle.Render(msg) }
func renderNote(msg string) string    { return mutedStyle.Render(msg) }

// writeOutput prints v as json or yaml, or calls table for the default format.
func writeOutput(w io.Writer, format string, v any, table func(*tabwriter.Writer)) error {
	switch strings.ToLower(format) {
	case "json":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "", "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func header(cols ...string) string {
	for i, c := range cols {
		cols[i] = headerStyle.Render(c)
	}
	return strings.Join(cols, "\t")
}
