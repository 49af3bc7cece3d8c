package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"badgecerts/badgecerts-backend/internal/tokens"
	"badgecerts/badgecerts-backend/pkg/pdf"
)

var renderFlags struct {
	output      string
	values      string
	format      string
	orientation string
	unit        string
	dateLayout  string
}

var renderCmd = &cobra.Command{
	Use:   "render <background.svg>...",
	Short: "Render SVG backgrounds to a PDF",
	Long: `Render one or more SVG backgrounds into a single PDF, one page per file.

Tokens are replaced with the built-in sample values. A JSON file passed with
--values overrides individual sample values, using the same keys as the
"certificates.preview" section of config.json.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderFlags.output, "output", "o", "", "output file (default: first input with .pdf extension)")
	renderCmd.Flags().StringVar(&renderFlags.values, "values", "", "JSON file with sample values")
	renderCmd.Flags().StringVar(&renderFlags.format, "format", pdf.FormatA4, "page format ("+strings.Join(pdf.Formats(), ", ")+")")
	renderCmd.Flags().StringVar(&renderFlags.orientation, "orientation", pdf.OrientationPortrait, "page orientation (P or L)")
	renderCmd.Flags().StringVar(&renderFlags.unit, "unit", pdf.UnitMillimeter, "measurement unit (pt, mm, cm, in)")
	renderCmd.Flags().StringVar(&renderFlags.dateLayout, "date-layout", "02.01.2006", "Go layout for rendered dates")
}

func runRender(cmd *cobra.Command, args []string) error {
	values := tokens.DefaultPreviewValues()
	if renderFlags.values != "" {
		data, err := os.ReadFile(renderFlags.values)
		if err != nil {
			return fmt.Errorf("reading values: %w", err)
		}
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("parsing values: %w", err)
		}
	}

	output := renderFlags.output
	if output == "" {
		output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".pdf"
	}

	setup := pdf.PageSetup{
		Format:      strings.ToUpper(renderFlags.format),
		Orientation: strings.ToUpper(renderFlags.orientation),
		Unit:        renderFlags.unit,
	}
	doc, err := pdf.NewGenerator(pdf.DefaultOptions()).NewDocument(setup, filepath.Base(output))
	if err != nil {
		return err
	}

	now := time.Now()
	pctx := tokens.PreviewContext(values, "1", tokens.NewHash(0, "preview", now), now, renderFlags.dateLayout)
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := doc.AddSVGPage([]byte(tokens.Render(string(data), pctx))); err != nil {
			if !errors.Is(err, pdf.ErrInvalidSVG) && !errors.Is(err, pdf.ErrPartialSVG) {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %v\n", path, err)
		}
	}

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := doc.Output(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d page(s) to %s\n", doc.PageCount(), output)
	return nil
}
