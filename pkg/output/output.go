// Package output renders command results as a table, JSON, or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"
)

// Format selects the output rendering.
type Format string

const (
	// FormatTable renders a human-readable table.
	FormatTable Format = "table"
	// FormatJSON renders pretty-printed JSON.
	FormatJSON Format = "json"
	// FormatYAML renders YAML.
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. Empty selects the table format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected table, json, or yaml)", s)
	}
}

// Printer renders results to a writer in one format.
type Printer struct {
	w      io.Writer
	format Format
}

// NewPrinter creates a printer.
func NewPrinter(w io.Writer, format Format) *Printer {
	if format == "" {
		format = FormatTable
	}
	return &Printer{w: w, format: format}
}

// Print renders data. The rows are used for the table format, data for the
// structured formats.
func (p *Printer) Print(data interface{}, rows pterm.TableData) error {
	switch p.format {
	case FormatJSON:
		return p.JSON(data)
	case FormatYAML:
		return p.YAML(data)
	default:
		return p.Table(rows)
	}
}

// Table renders rows with a header line.
func (p *Printer) Table(rows pterm.TableData) error {
	return pterm.DefaultTable.WithHasHeader().WithWriter(p.w).WithData(rows).Render()
}

// JSON renders data as indented JSON.
func (p *Printer) JSON(data interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// YAML renders data as YAML.
func (p *Printer) YAML(data interface{}) error {
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return nil
}
