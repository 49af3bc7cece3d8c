package pdf

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// node is a parsed svg element. Text runs are kept as children with an
// empty name so that mixed content keeps its order.
type node struct {
	name     string
	attrs    map[string]string
	children []*node
	text     string
}

func (n *node) attr(key string) string {
	return n.attrs[key]
}

func parseSVG(data []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var root *node
	var stack []*node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				n.attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, &node{text: string(t)})
			}
		}
	}

	if root == nil || root.name != "svg" {
		return nil, fmt.Errorf("missing svg root element")
	}
	return root, nil
}

// transform maps svg user space to page space without rotation or skew
type transform struct {
	a, d, e, f float64
}

func (t transform) x(v float64) float64 { return t.a*v + t.e }
func (t transform) y(v float64) float64 { return t.d*v + t.f }

func (t transform) translate(tx, ty float64) transform {
	t.e += t.a * tx
	t.f += t.d * ty
	return t
}

func (t transform) scale(kx, ky float64) transform {
	t.a *= kx
	t.d *= ky
	return t
}

// apply composes an svg transform attribute. Rotation and skew are ignored.
func (t transform) apply(attr string) transform {
	for attr = strings.TrimSpace(attr); attr != ""; attr = strings.TrimSpace(attr) {
		open := strings.IndexByte(attr, '(')
		end := strings.IndexByte(attr, ')')
		if open < 0 || end < open {
			break
		}
		name := strings.TrimSpace(strings.TrimLeft(attr[:open], ", "))
		args := parseNumbers(attr[open+1 : end])
		attr = attr[end+1:]

		switch name {
		case "translate":
			if len(args) == 1 {
				t = t.translate(args[0], 0)
			} else if len(args) >= 2 {
				t = t.translate(args[0], args[1])
			}
		case "scale":
			if len(args) == 1 {
				t = t.scale(args[0], args[0])
			} else if len(args) >= 2 {
				t = t.scale(args[0], args[1])
			}
		case "matrix":
			if len(args) == 6 && args[1] == 0 && args[2] == 0 {
				t = t.translate(args[4], args[5]).scale(args[0], args[3])
			}
		}
	}
	return t
}

type rgb struct {
	r, g, b int
}

type paint struct {
	color rgb
	set   bool
}

type style struct {
	fill        paint
	stroke      paint
	strokeWidth float64
	opacity     float64
	fontSize    float64
	fontFamily  string
	fontWeight  string
	fontStyle   string
	anchor      string
	evenOdd     bool
	hidden      bool
}

func defaultStyle() style {
	return style{
		fill:        paint{color: rgb{0, 0, 0}, set: true},
		strokeWidth: 1,
		opacity:     1,
		fontSize:    16,
		anchor:      "start",
	}
}

// inherit applies presentation attributes and the inline style of n
func (s style) inherit(n *node) style {
	props := make(map[string]string)
	for _, key := range []string{"fill", "stroke", "stroke-width", "opacity", "fill-opacity",
		"font-size", "font-family", "font-weight", "font-style", "text-anchor", "fill-rule", "display", "visibility"} {
		if v, ok := n.attrs[key]; ok {
			props[key] = v
		}
	}
	for _, decl := range strings.Split(n.attr("style"), ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		props[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	for k, v := range props {
		switch k {
		case "fill":
			s.fill = parsePaint(v)
		case "stroke":
			s.stroke = parsePaint(v)
		case "stroke-width":
			if w, ok := parseLength(v); ok {
				s.strokeWidth = w
			}
		case "opacity", "fill-opacity":
			if o, err := strconv.ParseFloat(v, 64); err == nil {
				s.opacity *= math.Max(0, math.Min(1, o))
			}
		case "font-size":
			if fs, ok := parseLength(v); ok && fs > 0 {
				s.fontSize = fs
			}
		case "font-family":
			s.fontFamily = v
		case "font-weight":
			s.fontWeight = v
		case "font-style":
			s.fontStyle = v
		case "text-anchor":
			s.anchor = v
		case "fill-rule":
			s.evenOdd = v == "evenodd"
		case "display":
			s.hidden = s.hidden || v == "none"
		case "visibility":
			s.hidden = s.hidden || v == "hidden"
		}
	}
	return s
}

func (s style) drawMode() string {
	switch {
	case s.fill.set && s.stroke.set:
		return "FD"
	case s.fill.set:
		return "F"
	case s.stroke.set:
		return "D"
	}
	return ""
}

// canvas draws svg nodes onto the current page
type canvas struct {
	doc *document
	pdf *gofpdf.Fpdf
	t   transform
	// skipped describes elements that were not drawn or drawn partially
	skipped []string
}

func newCanvas(doc *document, root *node, pageW, pageH float64) *canvas {
	minX, minY, vbW, vbH := 0.0, 0.0, 0.0, 0.0
	if vb := parseNumbers(root.attr("viewBox")); len(vb) == 4 && vb[2] > 0 && vb[3] > 0 {
		minX, minY, vbW, vbH = vb[0], vb[1], vb[2], vb[3]
	} else {
		vbW, _ = parseLength(root.attr("width"))
		vbH, _ = parseLength(root.attr("height"))
	}
	if vbW <= 0 || vbH <= 0 {
		vbW, vbH = pageW, pageH
	}

	sx, sy := pageW/vbW, pageH/vbH
	return &canvas{
		doc: doc,
		pdf: doc.pdf,
		t:   transform{a: sx, d: sy, e: -minX * sx, f: -minY * sy},
	}
}

func (c *canvas) draw(root *node) {
	c.drawChildren(root, c.t, defaultStyle().inherit(root))
}

func (c *canvas) drawChildren(n *node, t transform, s style) {
	for _, child := range n.children {
		if child.name == "" {
			continue
		}
		c.drawNode(child, t, s)
	}
}

func (c *canvas) drawNode(n *node, t transform, parent style) {
	s := parent.inherit(n)
	if s.hidden {
		return
	}
	t = t.apply(n.attr("transform"))

	switch n.name {
	case "g", "a", "switch":
		c.drawChildren(n, t, s)
	case "svg":
		c.drawChildren(n, t.translate(c.num(n, "x"), c.num(n, "y")), s)
	case "rect":
		c.drawRect(n, t, s)
	case "circle":
		r := c.num(n, "r")
		c.drawEllipse(t, s, c.num(n, "cx"), c.num(n, "cy"), r, r)
	case "ellipse":
		c.drawEllipse(t, s, c.num(n, "cx"), c.num(n, "cy"), c.num(n, "rx"), c.num(n, "ry"))
	case "line":
		if !s.stroke.set {
			return
		}
		c.withPaint(t, s, func() {
			c.pdf.Line(t.x(c.num(n, "x1")), t.y(c.num(n, "y1")), t.x(c.num(n, "x2")), t.y(c.num(n, "y2")))
		})
	case "polyline", "polygon":
		c.drawPoly(n, t, s, n.name == "polygon")
	case "path":
		c.drawPath(n, t, s)
	case "text":
		c.drawText(n, t, s)
	case "image":
		c.drawImage(n, t, s)
	}
}

func (c *canvas) num(n *node, key string) float64 {
	v, _ := parseLength(n.attr(key))
	return v
}

// withPaint sets colors, line width and opacity around fn
func (c *canvas) withPaint(t transform, s style, fn func()) {
	if s.fill.set {
		c.pdf.SetFillColor(s.fill.color.r, s.fill.color.g, s.fill.color.b)
	}
	if s.stroke.set {
		c.pdf.SetDrawColor(s.stroke.color.r, s.stroke.color.g, s.stroke.color.b)
		c.pdf.SetLineWidth(s.strokeWidth * (math.Abs(t.a) + math.Abs(t.d)) / 2)
	}
	if s.opacity < 1 {
		c.pdf.SetAlpha(s.opacity, "Normal")
		defer c.pdf.SetAlpha(1, "Normal")
	}
	fn()
}

func (c *canvas) drawRect(n *node, t transform, s style) {
	mode := s.drawMode()
	w, h := c.num(n, "width"), c.num(n, "height")
	if mode == "" || w <= 0 || h <= 0 {
		return
	}
	x, y := t.x(c.num(n, "x")), t.y(c.num(n, "y"))
	c.withPaint(t, s, func() {
		if rx := c.num(n, "rx"); rx > 0 {
			c.pdf.RoundedRect(x, y, w*t.a, h*t.d, rx*t.a, "1234", mode)
			return
		}
		c.pdf.Rect(x, y, w*t.a, h*t.d, mode)
	})
}

func (c *canvas) drawEllipse(t transform, s style, cx, cy, rx, ry float64) {
	mode := s.drawMode()
	if mode == "" || rx <= 0 || ry <= 0 {
		return
	}
	c.withPaint(t, s, func() {
		c.pdf.Ellipse(t.x(cx), t.y(cy), rx*t.a, ry*t.d, 0, mode)
	})
}

func (c *canvas) drawPoly(n *node, t transform, s style, closed bool) {
	coords := parseNumbers(n.attr("points"))
	if len(coords) < 4 {
		return
	}
	points := make([]gofpdf.PointType, 0, len(coords)/2)
	for i := 0; i+1 < len(coords); i += 2 {
		points = append(points, gofpdf.PointType{X: t.x(coords[i]), Y: t.y(coords[i+1])})
	}

	if closed {
		mode := s.drawMode()
		if mode == "" {
			return
		}
		c.withPaint(t, s, func() { c.pdf.Polygon(points, mode) })
		return
	}
	if !s.stroke.set {
		return
	}
	c.withPaint(t, s, func() {
		for i := 1; i < len(points); i++ {
			c.pdf.Line(points[i-1].X, points[i-1].Y, points[i].X, points[i].Y)
		}
	})
}

// drawPath renders path data. Malformed data is drawn up to the segment in
// error and recorded in skipped.
func (c *canvas) drawPath(n *node, t transform, s style) {
	d := strings.TrimSpace(n.attr("d"))
	mode := s.drawMode()
	if d == "" || mode == "" {
		return
	}

	segs, err := parsePath(d)
	if err != nil {
		c.skipped = append(c.skipped, fmt.Sprintf("path %q: %v", shorten(d, 40), err))
	}
	// a lone moveto draws nothing
	if len(segs) < 2 {
		return
	}
	if s.evenOdd && s.fill.set {
		mode += "*"
	}

	c.withPaint(t, s, func() {
		for _, seg := range segs {
			switch seg.op {
			case segMove:
				c.pdf.MoveTo(t.x(seg.to.x), t.y(seg.to.y))
			case segLine:
				c.pdf.LineTo(t.x(seg.to.x), t.y(seg.to.y))
			case segCubic:
				c.pdf.CurveBezierCubicTo(t.x(seg.c1.x), t.y(seg.c1.y), t.x(seg.c2.x), t.y(seg.c2.y), t.x(seg.to.x), t.y(seg.to.y))
			case segClose:
				c.pdf.ClosePath()
			}
		}
		c.pdf.DrawPath(mode)
	})
}

func shorten(v string, limit int) string {
	if len(v) <= limit {
		return v
	}
	return v[:limit] + "..."
}

func (c *canvas) drawText(n *node, t transform, s style) {
	cursorX, cursorY := c.num(n, "x"), c.num(n, "y")
	cursorX += c.num(n, "dx")
	cursorY += c.num(n, "dy")
	c.drawRuns(n, t, s, &cursorX, &cursorY)
}

func (c *canvas) drawRuns(n *node, t transform, s style, cursorX, cursorY *float64) {
	for _, child := range n.children {
		switch child.name {
		case "":
			text := collapseSpace(child.text)
			if text == "" {
				continue
			}
			*cursorX += c.drawRun(text, t, s, *cursorX, *cursorY)
		case "tspan":
			cs := s.inherit(child)
			if cs.hidden {
				continue
			}
			if v, ok := parseLength(child.attr("x")); ok {
				*cursorX = v
			}
			if v, ok := parseLength(child.attr("y")); ok {
				*cursorY = v
			}
			*cursorX += c.num(child, "dx")
			*cursorY += c.num(child, "dy")
			c.drawRuns(child, t, cs, cursorX, cursorY)
		}
	}
}

// drawRun writes one run of text and returns its advance in svg units
func (c *canvas) drawRun(text string, t transform, s style, x, y float64) float64 {
	sizePt := s.fontSize * math.Abs(t.d) * c.doc.pointsPerUnit()
	if sizePt <= 0 {
		return 0
	}
	family, face := c.font(s)
	c.doc.useFont(family, face, sizePt)

	width := c.pdf.GetStringWidth(text)
	px := t.x(x)
	switch s.anchor {
	case "middle":
		px -= width / 2
	case "end":
		px -= width
	}

	color := rgb{0, 0, 0}
	if s.fill.set {
		color = s.fill.color
	}
	c.pdf.SetTextColor(color.r, color.g, color.b)
	if s.opacity < 1 {
		c.pdf.SetAlpha(s.opacity, "Normal")
		defer c.pdf.SetAlpha(1, "Normal")
	}
	c.pdf.Text(px, t.y(y), text)

	if t.a == 0 {
		return 0
	}
	return width / t.a
}

func (c *canvas) font(s style) (string, string) {
	return resolveFamily(s.fontFamily, c.doc.fontFamily), fontStyle(s.fontWeight, s.fontStyle)
}

func (c *canvas) drawImage(n *node, t transform, s style) {
	w, h := c.num(n, "width"), c.num(n, "height")
	if w <= 0 || h <= 0 {
		return
	}
	data, imageType, ok := decodeDataURI(n.attr("href"))
	if !ok {
		return
	}

	c.doc.images++
	name := fmt.Sprintf("svgimg%d", c.doc.images)
	opts := gofpdf.ImageOptions{ImageType: imageType}
	c.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if !c.pdf.Ok() {
		// a broken embedded image must not spoil the whole document
		c.pdf.ClearError()
		return
	}
	if s.opacity < 1 {
		c.pdf.SetAlpha(s.opacity, "Normal")
		defer c.pdf.SetAlpha(1, "Normal")
	}
	c.pdf.ImageOptions(name, t.x(c.num(n, "x")), t.y(c.num(n, "y")), w*t.a, h*t.d, false, opts, 0, "")
}

func decodeDataURI(href string) ([]byte, string, bool) {
	if !strings.HasPrefix(href, "data:") {
		return nil, "", false
	}
	meta, payload, ok := strings.Cut(href[len("data:"):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, "", false
	}

	var imageType string
	switch strings.TrimSuffix(meta, ";base64") {
	case "image/png":
		imageType = "PNG"
	case "image/jpeg", "image/jpg":
		imageType = "JPG"
	case "image/gif":
		imageType = "GIF"
	default:
		return nil, "", false
	}

	data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(payload), ""))
	if err != nil {
		return nil, "", false
	}
	return data, imageType, true
}

func collapseSpace(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	fields := strings.Fields(s)
	out := strings.Join(fields, " ")
	// keep a single separating space at run boundaries
	if s[0] == ' ' || s[0] == '\n' || s[0] == '\t' {
		out = " " + out
	}
	if last := s[len(s)-1]; last == ' ' || last == '\n' || last == '\t' {
		out += " "
	}
	return out
}

// parseLength reads a leading number and ignores its unit suffix
func parseLength(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	end := 0
	for end < len(v) {
		ch := v[end]
		if (ch >= '0' && ch <= '9') || ch == '.' || ch == '-' || ch == '+' || ch == 'e' || ch == 'E' {
			if (ch == 'e' || ch == 'E') && (end+1 >= len(v) || !strings.ContainsRune("0123456789-+", rune(v[end+1]))) {
				break
			}
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(v[:end], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseNumbers(v string) []float64 {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		if n, ok := parseLength(f); ok {
			out = append(out, n)
		}
	}
	return out
}

var namedColors = map[string]rgb{
	"black":   {0, 0, 0},
	"white":   {255, 255, 255},
	"red":     {255, 0, 0},
	"green":   {0, 128, 0},
	"blue":    {0, 0, 255},
	"yellow":  {255, 255, 0},
	"orange":  {255, 165, 0},
	"purple":  {128, 0, 128},
	"navy":    {0, 0, 128},
	"maroon":  {128, 0, 0},
	"teal":    {0, 128, 128},
	"silver":  {192, 192, 192},
	"gold":    {255, 215, 0},
	"gray":    {128, 128, 128},
	"grey":    {128, 128, 128},
	"darkred": {139, 0, 0},
}

// parsePaint understands hex, rgb() and a small set of named colors.
// Gradients and other references are treated as no paint.
func parsePaint(v string) paint {
	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case v == "" || v == "none" || v == "transparent":
		return paint{}
	case strings.HasPrefix(v, "#"):
		hex := v[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) != 6 {
			return paint{}
		}
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return paint{}
		}
		return paint{color: rgb{int(n >> 16 & 0xff), int(n >> 8 & 0xff), int(n & 0xff)}, set: true}
	case strings.HasPrefix(v, "rgb(") && strings.HasSuffix(v, ")"):
		parts := strings.Split(v[4:len(v)-1], ",")
		if len(parts) != 3 {
			return paint{}
		}
		var c [3]int
		for i, p := range parts {
			p = strings.TrimSpace(p)
			f, ok := parseLength(p)
			if !ok {
				return paint{}
			}
			if strings.HasSuffix(p, "%") {
				f = f * 255 / 100
			}
			c[i] = int(math.Max(0, math.Min(255, math.Round(f))))
		}
		return paint{color: rgb{c[0], c[1], c[2]}, set: true}
	}
	if c, ok := namedColors[v]; ok {
		return paint{color: c, set: true}
	}
	return paint{}
}
