package export

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter exports tables to xlsx workbooks
type ExcelExporter struct {
	file    *excelize.File
	options ExcelOptions
}

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	SheetName    string
	FreezeHeader bool
	AutoFilter   bool
	AutoWidth    bool
	HeaderStyle  *ExcelStyleConfig
}

// ExcelStyleConfig defines style for cells
type ExcelStyleConfig struct {
	FontBold  bool
	FontSize  int
	FontColor string
	FillColor string
	Border    bool
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SheetName:    "Certificates",
		FreezeHeader: true,
		AutoFilter:   true,
		AutoWidth:    true,
		HeaderStyle: &ExcelStyleConfig{
			FontBold:  true,
			FontSize:  11,
			FillColor: "4472C4",
			FontColor: "FFFFFF",
			Border:    true,
		},
	}
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(options ExcelOptions) *ExcelExporter {
	return &ExcelExporter{file: excelize.NewFile(), options: options}
}

// Export writes t into one sheet and the workbook to w
func (e *ExcelExporter) Export(w io.Writer, t *Table) error {
	sheet := e.options.SheetName
	if t.Name != "" {
		sheet = sheetName(t.Name)
	}
	if err := e.file.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyleID := 0
	if e.options.HeaderStyle != nil {
		id, err := e.createStyle(e.options.HeaderStyle)
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}
		headerStyleID = id
	}

	widths := make([]int, len(t.Header))
	for i, col := range t.Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellStr(sheet, cell, col); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if headerStyleID > 0 {
			e.file.SetCellStyle(sheet, cell, cell, headerStyleID)
		}
		widths[i] = utf8.RuneCountInString(col)
	}

	for r, row := range t.Rows {
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := e.file.SetCellStr(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}
			if c < len(widths) {
				if n := utf8.RuneCountInString(val); n > widths[c] {
					widths[c] = n
				}
			}
		}
	}

	if e.options.FreezeHeader {
		e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}

	if e.options.AutoFilter && len(t.Header) > 0 && len(t.Rows) > 0 {
		lastCol, _ := excelize.CoordinatesToCellName(len(t.Header), 1)
		e.file.AutoFilter(sheet, "A1:"+lastCol, nil)
	}

	if e.options.AutoWidth {
		for i, n := range widths {
			col, _ := excelize.ColumnNumberToName(i + 1)
			// Min width 10, max width 50
			width := float64(n) * 1.2
			if width < 10 {
				width = 10
			}
			if width > 50 {
				width = 50
			}
			e.file.SetColWidth(sheet, col, col, width)
		}
	}

	return e.file.Write(w)
}

// Close closes the Excel file
func (e *ExcelExporter) Close() error {
	return e.file.Close()
}

func (e *ExcelExporter) createStyle(config *ExcelStyleConfig) (int, error) {
	style := &excelize.Style{
		Font: &excelize.Font{
			Bold:  config.FontBold,
			Size:  float64(config.FontSize),
			Color: config.FontColor,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}
	if config.FillColor != "" {
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{config.FillColor}}
	}
	if config.Border {
		style.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}
	return e.file.NewStyle(style)
}

// sheetName trims a name to the 31 characters excel allows and drops the
// characters it rejects
func sheetName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			continue
		}
		out = append(out, r)
		if len(out) == 31 {
			break
		}
	}
	if len(out) == 0 {
		return "Sheet1"
	}
	return string(out)
}
