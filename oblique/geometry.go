package oblique

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// paramEpsilon is the tolerance on segment parameters (0..1).
const paramEpsilon = 1e-9

// maxSplitDepth bounds the recursion of SplitPolygon.
const maxSplitDepth = 1024

// closeRing returns the ring with its first point repeated at the end.
func closeRing(r orb.Ring) orb.Ring {
	if len(r) == 0 {
		return r
	}
	if r[0].Equal(r[len(r)-1]) && len(r) > 1 {
		return r
	}
	closed := make(orb.Ring, len(r), len(r)+1)
	copy(closed, r)
	return append(closed, r[0])
}

// openRing returns the ring vertices without the closing duplicate.
func openRing(r orb.Ring) []orb.Point {
	if len(r) > 1 && r[0].Equal(r[len(r)-1]) {
		return r[:len(r)-1]
	}
	return r
}

// toleranceFor scales the absolute tolerance to the size of the geometry.
func toleranceFor(b orb.Bound) float64 {
	diag := math.Hypot(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1])
	return 1e-9 * math.Max(1, diag)
}

func cross(a, b orb.Point) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

func sub(a, b orb.Point) orb.Point {
	return orb.Point{a[0] - b[0], a[1] - b[1]}
}

func lerp(a, b orb.Point, t float64) orb.Point {
	return orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
}

// orient returns the sign of the turn a -> b -> c.
func orient(a, b, c orb.Point) int {
	v := cross(sub(b, a), sub(c, a))
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

// segmentsIntersect reports whether closed segments ab and cd share a point.
func segmentsIntersect(a, b, c, d orb.Point) bool {
	o1, o2 := orient(a, b, c), orient(a, b, d)
	o3, o4 := orient(c, d, a), orient(c, d, b)

	if o1 != o2 && o3 != o4 {
		return true
	}
	if o1 == 0 && onSegment(a, b, c) {
		return true
	}
	if o2 == 0 && onSegment(a, b, d) {
		return true
	}
	if o3 == 0 && onSegment(c, d, a) {
		return true
	}
	return o4 == 0 && onSegment(c, d, b)
}

// Intersects reports whether two polygons share at least one point. Touching
// boundaries count. Only exterior rings are considered; footprints and AOI
// polygons carry no holes.
func Intersects(a, b orb.Polygon) bool {
	if len(a) == 0 || len(b) == 0 || len(a[0]) == 0 || len(b[0]) == 0 {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}

	ra, rb := closeRing(a[0]), closeRing(b[0])
	for i := 0; i < len(ra)-1; i++ {
		for j := 0; j < len(rb)-1; j++ {
			if segmentsIntersect(ra[i], ra[i+1], rb[j], rb[j+1]) {
				return true
			}
		}
	}

	// No edge crossings: either disjoint or one contains the other.
	return planar.RingContains(ra, rb[0]) || planar.RingContains(rb, ra[0])
}

// ringLoc is a position on an open ring: a fraction u along edge
// ring[edge] -> ring[edge+1].
type ringLoc struct {
	edge int
	u    float64
}

// crossing is a point where the split line meets the ring boundary. s is the
// position along the line: segment index plus fraction.
type crossing struct {
	s   float64
	pt  orb.Point
	loc ringLoc
}

type chord struct {
	path       []orb.Point
	entry, exit ringLoc
}

// findCrossings returns every contact between line and the ring boundary,
// ordered along the line. Collinear overlaps are not reported.
func findCrossings(ring []orb.Point, line orb.LineString) []crossing {
	n := len(ring)
	var out []crossing

	for k := 0; k < len(line)-1; k++ {
		p, q := line[k], line[k+1]
		r := sub(q, p)
		for e := 0; e < n; e++ {
			a, b := ring[e], ring[(e+1)%n]
			s := sub(b, a)
			denom := cross(r, s)
			if math.Abs(denom) <= 1e-12*math.Hypot(r[0], r[1])*math.Hypot(s[0], s[1]) {
				continue
			}
			ap := sub(a, p)
			t := cross(ap, s) / denom
			u := cross(ap, r) / denom
			if t < -paramEpsilon || t > 1+paramEpsilon || u < -paramEpsilon || u > 1+paramEpsilon {
				continue
			}
			t = math.Min(math.Max(t, 0), 1)
			u = math.Min(math.Max(u, 0), 1)

			loc := ringLoc{edge: e, u: u}
			pt := lerp(a, b, u)
			if u >= 1-paramEpsilon {
				loc = ringLoc{edge: (e + 1) % n, u: 0}
				pt = b
			} else if u <= paramEpsilon {
				loc.u = 0
				pt = a
			}
			out = append(out, crossing{s: float64(k) + t, pt: pt, loc: loc})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].s < out[j].s })

	// A line through a ring vertex hits both adjacent edges.
	deduped := out[:0]
	for _, c := range out {
		if len(deduped) > 0 && math.Abs(deduped[len(deduped)-1].s-c.s) <= paramEpsilon {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}

// pointAt returns the point at position s along the line.
func pointAt(line orb.LineString, s float64) orb.Point {
	k := int(math.Floor(s))
	if k >= len(line)-1 {
		return line[len(line)-1]
	}
	if k < 0 {
		return line[0]
	}
	return lerp(line[k], line[k+1], s-float64(k))
}

// distanceToSegment returns the distance from p to segment ab.
func distanceToSegment(p, a, b orb.Point) float64 {
	ab := sub(b, a)
	l2 := ab[0]*ab[0] + ab[1]*ab[1]
	if l2 == 0 {
		return planar.Distance(p, a)
	}
	t := ((p[0]-a[0])*ab[0] + (p[1]-a[1])*ab[1]) / l2
	t = math.Min(math.Max(t, 0), 1)
	return planar.Distance(p, lerp(a, b, t))
}

// strictlyInside reports whether p is inside the ring and not on its boundary.
func strictlyInside(ring []orb.Point, p orb.Point, tol float64) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		if distanceToSegment(p, ring[i], ring[(i+1)%n]) <= tol {
			return false
		}
	}
	return planar.RingContains(closeRing(orb.Ring(ring)), p)
}

// firstChord finds the first stretch of line that runs through the interior
// of the ring from one boundary point to another.
func firstChord(ring []orb.Point, line orb.LineString, tol float64) (chord, bool) {
	crossings := findCrossings(ring, line)
	for i := 0; i+1 < len(crossings); i++ {
		c1, c2 := crossings[i], crossings[i+1]
		if planar.Distance(c1.pt, c2.pt) <= tol {
			continue
		}
		if !strictlyInside(ring, pointAt(line, (c1.s+c2.s)/2), tol) {
			continue
		}

		path := []orb.Point{c1.pt}
		for v := int(math.Floor(c1.s)) + 1; float64(v) < c2.s-paramEpsilon; v++ {
			if float64(v) > c1.s+paramEpsilon {
				path = append(path, line[v])
			}
		}
		path = append(path, c2.pt)
		return chord{path: path, entry: c1.loc, exit: c2.loc}, true
	}
	return chord{}, false
}

// walkRing returns the ring vertices met when walking forward from one
// boundary position to another.
func walkRing(ring []orb.Point, from, to ringLoc) []orb.Point {
	if from.edge == to.edge && to.u >= from.u {
		return nil
	}
	n := len(ring)
	var out []orb.Point
	for i := (from.edge + 1) % n; ; i = (i + 1) % n {
		out = append(out, ring[i])
		if i == to.edge {
			break
		}
	}
	return out
}

// splitRing cuts the ring along the chord into the two sides.
func splitRing(ring []orb.Point, ch chord) ([]orb.Point, []orb.Point) {
	a := make([]orb.Point, 0, len(ch.path)+len(ring))
	a = append(a, ch.path...)
	a = append(a, walkRing(ring, ch.exit, ch.entry)...)

	b := make([]orb.Point, 0, len(ch.path)+len(ring))
	for i := len(ch.path) - 1; i >= 0; i-- {
		b = append(b, ch.path[i])
	}
	b = append(b, walkRing(ring, ch.entry, ch.exit)...)

	return a, b
}

// cleanRing drops repeated vertices and reports whether the ring still
// encloses a non-zero area.
func cleanRing(ring []orb.Point, tol float64) ([]orb.Point, bool) {
	out := make([]orb.Point, 0, len(ring))
	for _, p := range ring {
		if len(out) > 0 && planar.Distance(out[len(out)-1], p) <= tol {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && planar.Distance(out[0], out[len(out)-1]) <= tol {
		out = out[:len(out)-1]
	}
	if len(out) < 3 {
		return nil, false
	}
	area := planar.Area(orb.Polygon{closeRing(orb.Ring(out))})
	return out, area > tol*tol
}

func splitRingByLine(ring []orb.Point, line orb.LineString, tol float64, depth int) [][]orb.Point {
	if depth >= maxSplitDepth {
		return [][]orb.Point{ring}
	}
	ch, ok := firstChord(ring, line, tol)
	if !ok {
		return [][]orb.Point{ring}
	}

	a, b := splitRing(ring, ch)
	var parts [][]orb.Point
	for _, side := range [][]orb.Point{a, b} {
		cleaned, ok := cleanRing(side, tol)
		if !ok {
			continue
		}
		parts = append(parts, splitRingByLine(cleaned, line, tol, depth+1)...)
	}
	return parts
}

// SplitPolygon splits the polygon's exterior ring by a polyline. A line that
// does not cut all the way through the polygon leaves it unchanged. Zero-area
// pieces are dropped, so the result may be empty for degenerate input.
// Output rings are closed and counter-clockwise.
func SplitPolygon(poly orb.Polygon, line orb.LineString) []orb.Polygon {
	if len(poly) == 0 {
		return nil
	}
	tol := toleranceFor(poly.Bound())
	ring, ok := cleanRing(openRing(poly[0]), tol)
	if !ok {
		return nil
	}
	if len(line) < 2 || !poly.Bound().Intersects(line.Bound()) {
		return []orb.Polygon{ringPolygon(ring)}
	}

	parts := splitRingByLine(ring, line, tol, 0)
	out := make([]orb.Polygon, 0, len(parts))
	for _, p := range parts {
		out = append(out, ringPolygon(p))
	}
	return out
}

// ringPolygon builds a closed counter-clockwise polygon from open vertices.
func ringPolygon(pts []orb.Point) orb.Polygon {
	ring := closeRing(orb.Ring(append([]orb.Point(nil), pts...)))
	if ring.Orientation() == orb.CW {
		ring.Reverse()
	}
	return orb.Polygon{ring}
}

// PolygonArea returns the planar area of the polygon
func PolygonArea(poly orb.Polygon) float64 {
	return planar.Area(poly)
}
