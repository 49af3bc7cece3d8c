// Package export writes tabular certificate data as spreadsheets.
package export

import (
	"fmt"
	"io"
)

// Format is an export file format
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
)

// Table is a named grid of string cells
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// ParseFormat accepts csv, xlsx and excel. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatExcel, nil
	}
	return "", fmt.Errorf("unsupported export format: %s", s)
}

// Write encodes t in format f
func Write(w io.Writer, f Format, t *Table) error {
	switch f {
	case FormatExcel:
		exporter := NewExcelExporter(DefaultExcelOptions())
		defer exporter.Close()
		return exporter.Export(w, t)
	case FormatCSV:
		return NewCSVExporter(w, DefaultCSVOptions()).Export(t)
	}
	return fmt.Errorf("unsupported export format: %s", f)
}
