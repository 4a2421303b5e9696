package repair

import (
	"math"

	"github.com/paulmach/orb"
)

const eps = 1e-9

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func sign(v float64) int {
	switch {
	case v > eps:
		return 1
	case v < -eps:
		return -1
	}
	return 0
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0])-eps <= p[0] && p[0] <= math.Max(a[0], b[0])+eps &&
		math.Min(a[1], b[1])-eps <= p[1] && p[1] <= math.Max(a[1], b[1])+eps
}

// segmentsTouch reports whether segments ab and cd share any point,
// including endpoints and collinear overlap.
func segmentsTouch(a, b, c, d orb.Point) bool {
	d1 := sign(cross(c, d, a))
	d2 := sign(cross(c, d, b))
	d3 := sign(cross(a, b, c))
	d4 := sign(cross(a, b, d))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	return (d1 == 0 && onSegment(c, d, a)) ||
		(d2 == 0 && onSegment(c, d, b)) ||
		(d3 == 0 && onSegment(a, b, c)) ||
		(d4 == 0 && onSegment(a, b, d))
}

// crossing returns the point where ab and cd cross in their interiors.
// Touching at an endpoint is not a crossing.
func crossing(a, b, c, d orb.Point) (orb.Point, bool) {
	d1 := sign(cross(c, d, a))
	d2 := sign(cross(c, d, b))
	d3 := sign(cross(a, b, c))
	d4 := sign(cross(a, b, d))
	if d1*d2 >= 0 || d3*d4 >= 0 {
		return orb.Point{}, false
	}
	r := orb.Point{b[0] - a[0], b[1] - a[1]}
	s := orb.Point{d[0] - c[0], d[1] - c[1]}
	den := r[0]*s[1] - r[1]*s[0]
	if den == 0 {
		return orb.Point{}, false
	}
	t := ((c[0]-a[0])*s[1] - (c[1]-a[1])*s[0]) / den
	return orb.Point{a[0] + t*r[0], a[1] + t*r[1]}, true
}

// edge returns the i-th edge of an implicitly closed ring.
func edge(r orb.Ring, i int) (orb.Point, orb.Point) {
	return r[i], r[(i+1)%len(r)]
}

// selfIntersects reports whether any two non-adjacent edges of r touch,
// or two adjacent edges fold back over each other.
func selfIntersects(r orb.Ring) bool {
	n := len(r)
	for i := 0; i < n; i++ {
		a, b := edge(r, i)
		c := r[(i+2)%n]
		if sign(cross(a, b, c)) == 0 {
			// Collinear adjacent edges only conflict when they backtrack.
			if (b[0]-a[0])*(c[0]-b[0])+(b[1]-a[1])*(c[1]-b[1]) < 0 {
				return true
			}
		}
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			c, d := edge(r, j)
			if segmentsTouch(a, b, c, d) {
				return true
			}
		}
	}
	return false
}

// ringsTouch reports whether any edge of a touches any edge of b.
func ringsTouch(a, b orb.Ring) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for i := range a {
		p, q := edge(a, i)
		for j := range b {
			c, d := edge(b, j)
			if segmentsTouch(p, q, c, d) {
				return true
			}
		}
	}
	return false
}
