package utils

import (
	"image"
	"math"
	"slices"
)

// ConvexHull computes the convex hull of a set of points using the
// monotone chain algorithm. The hull has positive signed area (counter-clockwise
// with the y axis pointing up) and does not repeat its first point.
func ConvexHull(pts []Point) []Point {
	p := slices.Clone(pts)
	slices.SortFunc(p, func(a, b Point) int {
		if a.X != b.X {
			if a.X < b.X {
				return -1
			}
			return 1
		}
		switch {
		case a.Y < b.Y:
			return -1
		case a.Y > b.Y:
			return 1
		}
		return 0
	})
	p = slices.Compact(p)
	if len(p) <= 2 {
		return p
	}

	hull := make([]Point, 0, 2*len(p))
	for _, pt := range p {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	lower := len(hull) + 1
	for i := len(p) - 2; i >= 0; i-- {
		pt := p[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	return hull[:len(hull)-1]
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// SignedArea returns the shoelace area of a closed polygon.
func SignedArea(poly []Point) float64 {
	var a float64
	for i := range poly {
		j := (i + 1) % len(poly)
		a += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return a / 2
}

// PolygonArea returns the absolute area of a closed polygon.
func PolygonArea(poly []Point) float64 { return math.Abs(SignedArea(poly)) }

// RotatedRect is a rectangle of arbitrary orientation.
type RotatedRect struct {
	Corners [4]Point // consecutive corners
	Width   float64  // length of the Corners[0]-Corners[1] side
	Height  float64  // length of the Corners[1]-Corners[2] side
}

// MinSide returns the shorter side length.
func (r RotatedRect) MinSide() float64 { return math.Min(r.Width, r.Height) }

// Perimeter returns 2*(width+height).
func (r RotatedRect) Perimeter() float64 { return 2 * (r.Width + r.Height) }

// MinAreaRect computes the minimum-area enclosing rectangle with rotating
// calipers over the convex hull. Collinear input yields a zero-height rectangle
// and a single point a zero-size one, so min-side filters drop them.
func MinAreaRect(pts []Point) RotatedRect {
	hull := ConvexHull(pts)
	switch len(hull) {
	case 0:
		return RotatedRect{}
	case 1:
		p := hull[0]
		return RotatedRect{Corners: [4]Point{p, p, p, p}}
	case 2:
		a, b := hull[0], hull[1]
		return RotatedRect{Corners: [4]Point{a, b, b, a}, Width: Distance(a, b)}
	}

	best := RotatedRect{Width: math.Inf(1), Height: math.Inf(1)}
	bestArea := math.Inf(1)
	for i := range hull {
		a := hull[i]
		b := hull[(i+1)%len(hull)]
		l := Distance(a, b)
		if l == 0 {
			continue
		}
		ux, uy := (b.X-a.X)/l, (b.Y-a.Y)/l
		vx, vy := -uy, ux
		minS, maxS := math.Inf(1), math.Inf(-1)
		minT, maxT := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			s := p.X*ux + p.Y*uy
			t := p.X*vx + p.Y*vy
			minS, maxS = math.Min(minS, s), math.Max(maxS, s)
			minT, maxT = math.Min(minT, t), math.Max(maxT, t)
		}
		area := (maxS - minS) * (maxT - minT)
		if area >= bestArea {
			continue
		}
		bestArea = area
		at := func(s, t float64) Point { return Point{X: ux*s + vx*t, Y: uy*s + vy*t} }
		best = RotatedRect{
			Corners: [4]Point{at(minS, minT), at(maxS, minT), at(maxS, maxT), at(minS, maxT)},
			Width:   maxS - minS,
			Height:  maxT - minT,
		}
	}
	return best
}

const arcTolerance = 0.25

// OffsetPolygon grows the convex hull of poly outward by delta with round
// joins, treating it as closed. Arcs are flattened so that no chord deviates
// from the true arc by more than arcTolerance pixels. delta <= 0 returns the hull.
func OffsetPolygon(poly []Point, delta float64) []Point {
	hull := ConvexHull(poly)
	if len(hull) == 0 || delta <= 0 {
		return hull
	}

	tol := math.Min(arcTolerance, delta*arcTolerance)
	steps := math.Pi / math.Acos(1-tol/delta)
	steps = math.Min(steps, delta*math.Pi)
	stepsPerRad := steps / (2 * math.Pi)

	if len(hull) == 1 {
		return arc(hull[0], 0, 2*math.Pi, delta, stepsPerRad, false)
	}

	n := len(hull)
	normals := make([]Point, n)
	for i := range n {
		a, b := hull[i], hull[(i+1)%n]
		l := Distance(a, b)
		normals[i] = Point{X: (b.Y - a.Y) / l, Y: -(b.X - a.X) / l}
	}

	out := make([]Point, 0, n*4)
	for i := range n {
		in := normals[(i-1+n)%n]
		a0 := math.Atan2(in.Y, in.X)
		a1 := math.Atan2(normals[i].Y, normals[i].X)
		sweep := math.Mod(a1-a0+2*math.Pi, 2*math.Pi)
		out = append(out, arc(hull[i], a0, sweep, delta, stepsPerRad, true)...)
	}
	return out
}

// arc returns points on the circle of radius r around c from angle start over
// sweep radians. With inclusive set the end point is emitted too.
func arc(c Point, start, sweep, r, stepsPerRad float64, inclusive bool) []Point {
	steps := max(int(math.Round(stepsPerRad*sweep)), 1)
	last := steps
	if !inclusive {
		last = steps - 1
	}
	pts := make([]Point, 0, last+1)
	for k := 0; k <= last; k++ {
		a := start + sweep*float64(k)/float64(steps)
		pts = append(pts, Point{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)})
	}
	return pts
}

// FillPolygon sets mask[y*w+x] for every pixel covered by the closed polygon,
// boundary pixels included. Coordinates are relative to the mask origin;
// anything outside w x h is ignored.
func FillPolygon(mask []bool, w, h int, poly []image.Point) {
	if len(poly) == 0 || w <= 0 || h <= 0 {
		return
	}
	set := func(x, y int) {
		if x >= 0 && y >= 0 && x < w && y < h {
			mask[y*w+x] = true
		}
	}

	r := BoundingRect(poly)
	xs := make([]float64, 0, 8)
	for y := max(r.Min.Y, 0); y <= min(r.Max.Y, h-1); y++ {
		xs = xs[:0]
		fy := float64(y)
		for i := range poly {
			a, b := poly[i], poly[(i+1)%len(poly)]
			if a.Y == b.Y {
				continue
			}
			lo, hi := a, b
			if lo.Y > hi.Y {
				lo, hi = hi, lo
			}
			if y < lo.Y || y >= hi.Y {
				continue
			}
			t := (fy - float64(lo.Y)) / float64(hi.Y-lo.Y)
			xs = append(xs, float64(lo.X)+t*float64(hi.X-lo.X))
		}
		slices.Sort(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			for x := int(math.Ceil(xs[i])); x <= int(math.Floor(xs[i+1])); x++ {
				set(x, y)
			}
		}
	}

	for i := range poly {
		a, b := poly[i], poly[(i+1)%len(poly)]
		line(a, b, set)
	}
}

// line walks the Bresenham line from a to b.
func line(a, b image.Point, plot func(x, y int)) {
	x0, y0 := a.X, a.Y
	dx := abs(b.X - x0)
	dy := -abs(b.Y - y0)
	sx, sy := 1, 1
	if x0 > b.X {
		sx = -1
	}
	if y0 > b.Y {
		sy = -1
	}
	e := dx + dy
	for {
		plot(x0, y0)
		if x0 == b.X && y0 == b.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}
