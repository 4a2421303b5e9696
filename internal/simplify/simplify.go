// Package simplify reduces contour point sequences with Douglas-Peucker
// using a tolerance proportional to the contour perimeter.
package simplify

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/dgallion1/tracecut/internal/contour"
)

// DefaultFactor is the tolerance factor applied to a contour's perimeter.
const DefaultFactor = 0.001

// Tolerance returns the maximum allowed deviation for a contour with the
// given perimeter.
func Tolerance(factor, perimeter float64) float64 {
	if factor <= 0 || perimeter <= 0 {
		return 0
	}
	return factor * perimeter
}

// Ring simplifies an implicitly closed ring. The first point is always
// kept. If the result would have fewer than three distinct points the
// input is returned unchanged (as a copy). The input is never modified.
func Ring(r orb.Ring, tolerance float64) orb.Ring {
	r = contour.Open(r)
	if len(r) < 4 || tolerance <= 0 {
		return r.Clone()
	}

	closed := contour.Closed(r)
	out := simplify.DouglasPeucker(tolerance).Ring(closed)
	out = contour.Open(out)

	if distinct(out) < 3 {
		return r.Clone()
	}
	return out
}

// Node simplifies a forest node with factor × its perimeter.
func Node(n *contour.Node, factor float64) orb.Ring {
	return Ring(n.Points, Tolerance(factor, n.Perimeter))
}

func distinct(r orb.Ring) int {
	seen := make(map[orb.Point]struct{}, len(r))
	for _, p := range r {
		seen[p] = struct{}{}
	}
	return len(seen)
}
