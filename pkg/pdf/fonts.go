package pdf

import (
	"strings"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
)

// Embedded font families. Both cover Latin, Greek and Cyrillic (WGL4).
const (
	FamilySans = "gosans"
	FamilyMono = "gomono"
)

// fontFaces holds the TrueType data per family and gofpdf style
var fontFaces = map[string]map[string][]byte{
	FamilySans: {
		"":   goregular.TTF,
		"B":  gobold.TTF,
		"I":  goitalic.TTF,
		"BI": gobolditalic.TTF,
	},
	FamilyMono: {
		"":   gomono.TTF,
		"B":  gomonobold.TTF,
		"I":  gomonoitalic.TTF,
		"BI": gomonobolditalic.TTF,
	},
}

// resolveFamily maps a css font-family list onto an embedded family.
// Serif faces are not embedded and render sans.
func resolveFamily(fontFamily, fallback string) string {
	lower := strings.ToLower(fontFamily)
	switch {
	case strings.TrimSpace(lower) == "":
		return fallback
	case strings.Contains(lower, "mono"), strings.Contains(lower, "courier"), strings.Contains(lower, "consol"):
		return FamilyMono
	}
	return FamilySans
}

// fontStyle converts css weight and style to a gofpdf style string
func fontStyle(weight, slant string) string {
	out := ""
	switch weight {
	case "bold", "bolder", "600", "700", "800", "900":
		out += "B"
	}
	if slant == "italic" || slant == "oblique" {
		out += "I"
	}
	return out
}

// useFont selects a font, embedding its face on first use
func (d *document) useFont(family, face string, sizePt float64) {
	key := family + face
	if !d.fonts[key] {
		d.pdf.AddUTF8FontFromBytes(family, face, fontFaces[family][face])
		d.fonts[key] = true
	}
	d.pdf.SetFont(family, face, sizePt)
}
