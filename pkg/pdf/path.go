package pdf

import (
	"fmt"
	"math"
	"strconv"
)

type point struct {
	x, y float64
}

func (p point) add(q point) point         { return point{p.x + q.x, p.y + q.y} }
func (p point) sub(q point) point         { return point{p.x - q.x, p.y - q.y} }
func (p point) mul(k float64) point       { return point{p.x * k, p.y * k} }
func (p point) reflect(about point) point { return about.mul(2).sub(p) }

// Path segment operations. Every svg command is reduced to these.
const (
	segMove  = 'M'
	segLine  = 'L'
	segCubic = 'C'
	segClose = 'Z'
)

// pathSeg is one absolute segment in svg user space. Cubic segments use all
// three points, moves and lines only the last.
type pathSeg struct {
	op     byte
	c1, c2 point
	to     point
}

// parsePath reads svg path data. On malformed data it returns the segments
// parsed so far together with the error, so that the path can be drawn up to
// the segment in error.
func parsePath(d string) ([]pathSeg, error) {
	sc := &pathScanner{s: d}
	b := &pathBuilder{}

	for {
		sc.skipSeparators()
		if sc.done() {
			return b.segs, nil
		}
		cmd := sc.s[sc.pos]
		if !isPathCommand(cmd) {
			return b.segs, fmt.Errorf("expecting path command at position %d, got %q", sc.pos, cmd)
		}
		sc.pos++
		if len(b.segs) == 0 && cmd != 'M' && cmd != 'm' {
			return b.segs, fmt.Errorf("path data must start with a moveto, got %q", cmd)
		}
		if err := b.command(sc, cmd); err != nil {
			return b.segs, err
		}
	}
}

func isPathCommand(c byte) bool {
	switch c {
	case 'M', 'm', 'L', 'l', 'H', 'h', 'V', 'v', 'C', 'c', 'S', 's', 'Q', 'q', 'T', 't', 'A', 'a', 'Z', 'z':
		return true
	}
	return false
}

type pathBuilder struct {
	segs  []pathSeg
	cur   point
	start point
	// reflection sources for S and T
	cubicCtrl point
	quadCtrl  point
	last      byte
}

// command consumes one command letter and all of its argument groups
func (b *pathBuilder) command(sc *pathScanner, cmd byte) error {
	rel := cmd >= 'a'
	upper := cmd &^ 0x20

	if upper == 'Z' {
		b.segs = append(b.segs, pathSeg{op: segClose, to: b.start})
		b.cur = b.start
		b.last = 'Z'
		return nil
	}

	for first := true; first || sc.startsNumber(); first = false {
		var base point
		if rel {
			base = b.cur
		}

		switch upper {
		case 'M':
			p, err := sc.point()
			if err != nil {
				return err
			}
			p = p.add(base)
			if first {
				b.segs = append(b.segs, pathSeg{op: segMove, to: p})
				b.start = p
				b.cur = p
				b.last = 'M'
			} else {
				// further pairs after a moveto are implicit linetos
				b.line(p)
			}
		case 'L':
			p, err := sc.point()
			if err != nil {
				return err
			}
			b.line(p.add(base))
		case 'H':
			x, err := sc.number()
			if err != nil {
				return err
			}
			b.line(point{x + base.x, b.cur.y})
		case 'V':
			y, err := sc.number()
			if err != nil {
				return err
			}
			b.line(point{b.cur.x, y + base.y})
		case 'C':
			pts, err := sc.points(3)
			if err != nil {
				return err
			}
			b.cubic(pts[0].add(base), pts[1].add(base), pts[2].add(base))
		case 'S':
			pts, err := sc.points(2)
			if err != nil {
				return err
			}
			c1 := b.cur
			if b.last == 'C' {
				c1 = b.cubicCtrl.reflect(b.cur)
			}
			b.cubic(c1, pts[0].add(base), pts[1].add(base))
		case 'Q':
			pts, err := sc.points(2)
			if err != nil {
				return err
			}
			b.quad(pts[0].add(base), pts[1].add(base))
		case 'T':
			p, err := sc.point()
			if err != nil {
				return err
			}
			q := b.cur
			if b.last == 'Q' {
				q = b.quadCtrl.reflect(b.cur)
			}
			b.quad(q, p.add(base))
		case 'A':
			args := make([]float64, 3)
			for i := range args {
				v, err := sc.number()
				if err != nil {
					return err
				}
				args[i] = v
			}
			large, err := sc.flag()
			if err != nil {
				return err
			}
			sweep, err := sc.flag()
			if err != nil {
				return err
			}
			p, err := sc.point()
			if err != nil {
				return err
			}
			b.arc(args[0], args[1], args[2], large, sweep, p.add(base))
		}
	}
	return nil
}

func (b *pathBuilder) line(p point) {
	b.segs = append(b.segs, pathSeg{op: segLine, to: p})
	b.cur = p
	b.last = 'L'
}

func (b *pathBuilder) cubic(c1, c2, p point) {
	b.segs = append(b.segs, pathSeg{op: segCubic, c1: c1, c2: c2, to: p})
	b.cur = p
	b.cubicCtrl = c2
	b.last = 'C'
}

// quad appends a quadratic curve raised to cubic degree
func (b *pathBuilder) quad(q, p point) {
	p0 := b.cur
	c1 := p0.add(q.sub(p0).mul(2.0 / 3))
	c2 := p.add(q.sub(p).mul(2.0 / 3))
	b.segs = append(b.segs, pathSeg{op: segCubic, c1: c1, c2: c2, to: p})
	b.cur = p
	b.quadCtrl = q
	b.last = 'Q'
}

// arc appends an elliptical arc as cubic segments of at most 90 degrees,
// using the endpoint to center conversion of the svg implementation notes
func (b *pathBuilder) arc(rx, ry, rotation float64, large, sweep bool, p point) {
	p0 := b.cur
	if p0 == p {
		return
	}
	rx, ry = math.Abs(rx), math.Abs(ry)
	if rx == 0 || ry == 0 {
		b.line(p)
		return
	}

	phi := rotation * math.Pi / 180
	cos, sin := math.Cos(phi), math.Sin(phi)
	dx, dy := (p0.x-p.x)/2, (p0.y-p.y)/2
	x1 := cos*dx + sin*dy
	y1 := -sin*dx + cos*dy

	// radii too small to reach the end point are scaled up
	if lambda := x1*x1/(rx*rx) + y1*y1/(ry*ry); lambda > 1 {
		s := math.Sqrt(lambda)
		rx, ry = rx*s, ry*s
	}

	num := rx*rx*ry*ry - rx*rx*y1*y1 - ry*ry*x1*x1
	den := rx*rx*y1*y1 + ry*ry*x1*x1
	coef := 0.0
	if den != 0 {
		coef = math.Sqrt(math.Max(0, num/den))
	}
	if large == sweep {
		coef = -coef
	}
	cx1 := coef * rx * y1 / ry
	cy1 := -coef * ry * x1 / rx
	center := point{
		cos*cx1 - sin*cy1 + (p0.x+p.x)/2,
		sin*cx1 + cos*cy1 + (p0.y+p.y)/2,
	}

	theta := vectorAngle(1, 0, (x1-cx1)/rx, (y1-cy1)/ry)
	delta := vectorAngle((x1-cx1)/rx, (y1-cy1)/ry, (-x1-cx1)/rx, (-y1-cy1)/ry)
	if !sweep && delta > 0 {
		delta -= 2 * math.Pi
	} else if sweep && delta < 0 {
		delta += 2 * math.Pi
	}

	at := func(t float64) point {
		return point{
			center.x + rx*math.Cos(t)*cos - ry*math.Sin(t)*sin,
			center.y + rx*math.Cos(t)*sin + ry*math.Sin(t)*cos,
		}
	}
	tangent := func(t float64) point {
		return point{
			-rx*math.Sin(t)*cos - ry*math.Cos(t)*sin,
			-rx*math.Sin(t)*sin + ry*math.Cos(t)*cos,
		}
	}

	n := int(math.Ceil(math.Abs(delta)/(math.Pi/2) - 1e-9))
	if n < 1 {
		n = 1
	}
	step := delta / float64(n)
	k := 4.0 / 3 * math.Tan(step/4)
	for i := 0; i < n; i++ {
		t1 := theta + float64(i)*step
		t2 := t1 + step
		end := at(t2)
		if i == n-1 {
			end = p
		}
		b.cubic(at(t1).add(tangent(t1).mul(k)), at(t2).sub(tangent(t2).mul(k)), end)
	}
}

func vectorAngle(ux, uy, vx, vy float64) float64 {
	return math.Atan2(ux*vy-uy*vx, ux*vx+uy*vy)
}

// pathScanner tokenizes path data. Separators are whitespace and commas,
// numbers may follow each other without separator ("1-2.5.5").
type pathScanner struct {
	s   string
	pos int
}

func (sc *pathScanner) done() bool {
	return sc.pos >= len(sc.s)
}

func (sc *pathScanner) skipSeparators() {
	for !sc.done() {
		switch sc.s[sc.pos] {
		case ' ', '\t', '\n', '\r', '\f', ',':
			sc.pos++
		default:
			return
		}
	}
}

func (sc *pathScanner) startsNumber() bool {
	sc.skipSeparators()
	if sc.done() {
		return false
	}
	c := sc.s[sc.pos]
	return c == '-' || c == '+' || c == '.' || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (sc *pathScanner) number() (float64, error) {
	sc.skipSeparators()
	start := sc.pos
	if !sc.done() && (sc.s[sc.pos] == '-' || sc.s[sc.pos] == '+') {
		sc.pos++
	}
	digits := false
	for !sc.done() && isDigit(sc.s[sc.pos]) {
		sc.pos++
		digits = true
	}
	if !sc.done() && sc.s[sc.pos] == '.' {
		sc.pos++
		for !sc.done() && isDigit(sc.s[sc.pos]) {
			sc.pos++
			digits = true
		}
	}
	if !digits {
		sc.pos = start
		return 0, fmt.Errorf("expecting number at position %d", start)
	}
	if !sc.done() && (sc.s[sc.pos] == 'e' || sc.s[sc.pos] == 'E') {
		mark := sc.pos
		sc.pos++
		if !sc.done() && (sc.s[sc.pos] == '-' || sc.s[sc.pos] == '+') {
			sc.pos++
		}
		exp := false
		for !sc.done() && isDigit(sc.s[sc.pos]) {
			sc.pos++
			exp = true
		}
		if !exp {
			sc.pos = mark
		}
	}
	return strconv.ParseFloat(sc.s[start:sc.pos], 64)
}

// flag reads an arc flag, which may be packed against the next value
func (sc *pathScanner) flag() (bool, error) {
	sc.skipSeparators()
	if !sc.done() && (sc.s[sc.pos] == '0' || sc.s[sc.pos] == '1') {
		v := sc.s[sc.pos] == '1'
		sc.pos++
		return v, nil
	}
	return false, fmt.Errorf("expecting arc flag at position %d", sc.pos)
}

func (sc *pathScanner) point() (point, error) {
	x, err := sc.number()
	if err != nil {
		return point{}, err
	}
	y, err := sc.number()
	if err != nil {
		return point{}, err
	}
	return point{x, y}, nil
}

func (sc *pathScanner) points(n int) ([]point, error) {
	out := make([]point, n)
	for i := range out {
		p, err := sc.point()
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
