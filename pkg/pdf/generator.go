package pdf

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

var (
	// ErrInvalidSVG is returned when a page background cannot be parsed
	ErrInvalidSVG = errors.New("invalid svg document")
	// ErrPartialSVG is returned when a page was drawn but some elements of
	// its background were skipped
	ErrPartialSVG = errors.New("svg drawn partially")
)

// Page formats accepted by the generator
const (
	FormatA3      = "A3"
	FormatA4      = "A4"
	FormatB4      = "B4"
	FormatB5      = "B5"
	FormatLegal   = "LEGAL"
	FormatLetter  = "LETTER"
	FormatTabloid = "TABLOID"
)

// Page orientations
const (
	OrientationPortrait  = "P"
	OrientationLandscape = "L"
)

// Measurement units
const (
	UnitPoint      = "pt"
	UnitMillimeter = "mm"
	UnitCentimeter = "cm"
	UnitInch       = "in"
)

// portrait page sizes in millimeters
var formatSizesMM = map[string][2]float64{
	FormatA3:      {297, 420},
	FormatA4:      {210, 297},
	FormatB4:      {250, 353},
	FormatB5:      {176, 250},
	FormatLegal:   {215.9, 355.6},
	FormatLetter:  {215.9, 279.4},
	FormatTabloid: {279.4, 431.8},
}

// millimeters per unit
var unitMM = map[string]float64{
	UnitPoint:      25.4 / 72,
	UnitMillimeter: 1,
	UnitCentimeter: 10,
	UnitInch:       25.4,
}

// PageSetup describes the geometry of every page in a document
type PageSetup struct {
	Format      string `json:"format"`
	Orientation string `json:"orientation"`
	Unit        string `json:"unit"`
}

// Validate checks the setup against the supported values
func (s PageSetup) Validate() error {
	if _, ok := formatSizesMM[strings.ToUpper(s.Format)]; !ok {
		return fmt.Errorf("unsupported page format %q", s.Format)
	}
	if s.Orientation != OrientationPortrait && s.Orientation != OrientationLandscape {
		return fmt.Errorf("unsupported orientation %q", s.Orientation)
	}
	if _, ok := unitMM[s.Unit]; !ok {
		return fmt.Errorf("unsupported unit %q", s.Unit)
	}
	return nil
}

// Size returns the page width and height in the setup's unit, with the
// orientation applied
func (s PageSetup) Size() (float64, float64) {
	mm := formatSizesMM[strings.ToUpper(s.Format)]
	per := unitMM[s.Unit]
	w, h := mm[0]/per, mm[1]/per
	if s.Orientation == OrientationLandscape {
		return h, w
	}
	return w, h
}

// Formats returns the supported page formats
func Formats() []string {
	return []string{FormatA3, FormatA4, FormatB4, FormatB5, FormatLegal, FormatLetter, FormatTabloid}
}

// Generator creates PDF documents
type Generator interface {
	NewDocument(setup PageSetup, title string) (Document, error)
}

// Document accumulates pages and writes them out once
type Document interface {
	// AddSVGPage adds a page and draws the svg across it. When the svg cannot
	// be parsed the page stays blank and ErrInvalidSVG is returned. Elements
	// that could not be drawn are reported with ErrPartialSVG, the rest of
	// the page is still drawn.
	AddSVGPage(svg []byte) error
	AddBlankPage()
	PageCount() int
	Output(w io.Writer) error
}

// Options configures the gofpdf generator
type Options struct {
	Creator string `json:"creator"`
	// FontFamily is the css family used for text without one
	FontFamily string `json:"font_family"`
	// DisableCompression writes page streams as plain text
	DisableCompression bool `json:"disable_compression"`
}

// DefaultOptions returns default generator options
func DefaultOptions() Options {
	return Options{
		Creator:    "badgecerts",
		FontFamily: "sans-serif",
	}
}

type gofpdfGenerator struct {
	options Options
}

// NewGenerator creates a generator backed by gofpdf
func NewGenerator(options Options) Generator {
	options.FontFamily = resolveFamily(options.FontFamily, FamilySans)
	return &gofpdfGenerator{options: options}
}

func (g *gofpdfGenerator) NewDocument(setup PageSetup, title string) (Document, error) {
	if err := setup.Validate(); err != nil {
		return nil, err
	}
	setup.Format = strings.ToUpper(setup.Format)

	// the size is given portrait, gofpdf swaps it for landscape
	w, h := PageSetup{Format: setup.Format, Orientation: OrientationPortrait, Unit: setup.Unit}.Size()
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: setup.Orientation,
		UnitStr:        setup.Unit,
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(!g.options.DisableCompression)
	pdf.SetCreator(g.options.Creator, true)
	if title != "" {
		pdf.SetTitle(title, true)
	}

	return &document{
		pdf:        pdf,
		setup:      setup,
		fontFamily: g.options.FontFamily,
		fonts:      make(map[string]bool),
	}, nil
}

type document struct {
	pdf        *gofpdf.Fpdf
	setup      PageSetup
	fontFamily string
	fonts      map[string]bool
	images     int
}

func (d *document) AddBlankPage() {
	d.pdf.AddPage()
}

func (d *document) AddSVGPage(svg []byte) error {
	d.pdf.AddPage()

	root, err := parseSVG(svg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSVG, err)
	}

	pageW, pageH := d.pdf.GetPageSize()
	c := newCanvas(d, root, pageW, pageH)
	c.draw(root)
	if len(c.skipped) > 0 {
		return fmt.Errorf("%w: %s", ErrPartialSVG, strings.Join(c.skipped, "; "))
	}
	return nil
}

func (d *document) PageCount() int {
	return d.pdf.PageCount()
}

func (d *document) Output(w io.Writer) error {
	if d.pdf.PageCount() == 0 {
		// gofpdf refuses to close an empty document
		d.pdf.AddPage()
	}
	return d.pdf.Output(w)
}

// pointsPerUnit converts user units to typographic points for font sizes
func (d *document) pointsPerUnit() float64 {
	return unitMM[d.setup.Unit] * 72 / 25.4
}
