package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVExporter exports tables to CSV
type CSVExporter struct {
	writer  *csv.Writer
	options CSVOptions
}

// CSVOptions configures CSV export behavior
type CSVOptions struct {
	Delimiter     rune
	UseCRLF       bool
	IncludeHeader bool
}

// DefaultCSVOptions returns default CSV export options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:     ',',
		IncludeHeader: true,
	}
}

// NewCSVExporter creates a new CSV exporter
func NewCSVExporter(w io.Writer, options CSVOptions) *CSVExporter {
	writer := csv.NewWriter(w)
	if options.Delimiter != 0 {
		writer.Comma = options.Delimiter
	}
	writer.UseCRLF = options.UseCRLF

	return &CSVExporter{writer: writer, options: options}
}

// Export writes the header and every row of t
func (e *CSVExporter) Export(t *Table) error {
	if e.options.IncludeHeader {
		if err := e.writer.Write(t.Header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	for _, row := range t.Rows {
		if err := e.writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	e.writer.Flush()
	return e.writer.Error()
}
