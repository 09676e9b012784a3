package detector

import (
	"cmp"
	"image"
	"slices"

	"github.com/MeKo-Tech/ocrlite/internal/mempool"
)

var labelPool = mempool.New[int32](true)

// floodDirs lists the 4-neighbourhood first, then the diagonals.
var floodDirs = [8]image.Point{{1, 0}, {0, 1}, {-1, 0}, {0, -1}, {1, 1}, {-1, 1}, {-1, -1}, {1, -1}}

// mooreDirs is the 8-neighbourhood in clockwise screen order: E, SE, S, SW, W, NW, N, NE.
var mooreDirs = [8]image.Point{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}

const dirWest = 4

type contourSeed struct {
	disc  int // raster index at which a border-following scan meets the contour
	start image.Point
	label int32
}

// FindContours returns every boundary of the binary map, outer borders of
// 8-connected foreground components as well as borders of holes (4-connected
// background components not touching the map edge), without hierarchy.
// Points are pixel coordinates with straight runs compressed to their end
// points. Contours come in reverse raster discovery order.
func FindContours(bin BinaryMap) [][]image.Point {
	w, h := bin.Width, bin.Height
	if w <= 0 || h <= 0 || len(bin.Data) != w*h {
		return nil
	}

	labels := labelPool.Get(w * h)
	defer labelPool.Put(labels)

	var seeds []contourSeed
	queue := make([]int, 0, 64)

	var fg int32
	for i, on := range bin.Data {
		if !on || labels[i] != 0 {
			continue
		}
		fg++
		queue, _ = flood(bin, labels, queue, i, fg)
		seeds = append(seeds, contourSeed{disc: i, start: image.Pt(i%w, i/w), label: fg})
	}

	var bg int32
	for i, on := range bin.Data {
		if on || labels[i] != 0 {
			continue
		}
		bg--
		var touchesEdge bool
		queue, touchesEdge = flood(bin, labels, queue, i, bg)
		if touchesEdge {
			continue
		}
		// the pixel left of a hole's first pixel is foreground and is where
		// the scan meets the hole border
		seeds = append(seeds, contourSeed{disc: i - 1, start: image.Pt(i%w, i/w), label: bg})
	}

	slices.SortStableFunc(seeds, func(a, b contourSeed) int { return cmp.Compare(a.disc, b.disc) })

	contours := make([][]image.Point, 0, len(seeds))
	for i := len(seeds) - 1; i >= 0; i-- {
		s := seeds[i]
		in := func(x, y int) bool {
			return x >= 0 && y >= 0 && x < w && y < h && labels[y*w+x] == s.label
		}
		contours = append(contours, traceBoundary(in, s.start, 4*w*h+8))
	}
	return contours
}

// flood labels the component containing seed, 8-connected for foreground and
// 4-connected for background, and reports whether it touches the map edge.
func flood(bin BinaryMap, labels []int32, queue []int, seed int, label int32) ([]int, bool) {
	w, h := bin.Width, bin.Height
	on := bin.Data[seed]
	dirs := floodDirs[:4]
	if on {
		dirs = floodDirs[:]
	}

	touchesEdge := false
	labels[seed] = label
	queue = append(queue[:0], seed)
	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := i%w, i/w
		if x == 0 || y == 0 || x == w-1 || y == h-1 {
			touchesEdge = true
		}
		for _, d := range dirs {
			nx, ny := x+d.X, y+d.Y
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			ni := ny*w + nx
			if labels[ni] == 0 && bin.Data[ni] == on {
				labels[ni] = label
				queue = append(queue, ni)
			}
		}
	}
	return queue, touchesEdge
}

// traceBoundary follows the border of the region described by in, clockwise
// on screen, starting at start whose west neighbour must lie outside the
// region. Tracing stops when start is left again towards the first step.
func traceBoundary(in func(x, y int) bool, start image.Point, maxSteps int) []image.Point {
	pts := make([]image.Point, 0, 16)
	pts = appendCompressed(pts, start)

	cur := start
	back := dirWest
	var first image.Point
	moved := false
	for range maxSteps {
		next, dir, ok := nextBoundary(in, cur, back)
		if !ok {
			break
		}
		if moved && cur == start && next == first {
			break
		}
		if !moved {
			first = next
			moved = true
		}
		pts = appendCompressed(pts, next)
		cur = next
		back = (dir + 4) % 8
	}

	if n := len(pts); n > 1 && pts[n-1] == pts[0] {
		pts = pts[:n-1]
	}
	return pts
}

// nextBoundary sweeps the Moore neighbourhood of cur clockwise, starting just
// after the direction back, and returns the first pixel inside the region.
func nextBoundary(in func(x, y int) bool, cur image.Point, back int) (image.Point, int, bool) {
	for k := 1; k <= 8; k++ {
		dir := (back + k) % 8
		p := cur.Add(mooreDirs[dir])
		if in(p.X, p.Y) {
			return p, dir, true
		}
	}
	return image.Point{}, 0, false
}

// appendCompressed appends p, dropping the previous point when it lies in the
// middle of a straight run.
func appendCompressed(pts []image.Point, p image.Point) []image.Point {
	if n := len(pts); n >= 2 {
		a, b := pts[n-2], pts[n-1]
		v1 := b.Sub(a)
		v2 := p.Sub(b)
		if v1.X*v2.Y-v1.Y*v2.X == 0 && v1.X*v2.X+v1.Y*v2.Y > 0 {
			pts = pts[:n-1]
		}
	}
	return append(pts, p)
}
