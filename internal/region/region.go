// Package region rebuilds polygon-with-holes regions from a contour
// forest and a selection of active contours.
package region

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/dgallion1/tracecut/internal/contour"
	"github.com/dgallion1/tracecut/internal/selection"
	"github.com/dgallion1/tracecut/internal/simplify"
)

// ErrDegenerateContour marks a contour that has fewer than three points
// after simplification.
var ErrDegenerateContour = errors.New("degenerate contour")

// ErrOrphanedHole marks a hole whose owning shell was dropped.
var ErrOrphanedHole = errors.New("orphaned hole")

// Policy decides how active contours alternate between shell and hole.
type Policy string

const (
	// PolicyNested alternates shell and hole at every level of the active
	// hierarchy, so islands inside holes become regions of their own.
	PolicyNested Policy = "nested"
	// PolicyFlat builds shells from top-level active contours and holes
	// from the level directly below. Deeper contours are ignored.
	PolicyFlat Policy = "flat"
)

// ParsePolicy accepts "nested" or "flat". Empty means nested.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyNested:
		return PolicyNested, nil
	case PolicyFlat:
		return PolicyFlat, nil
	default:
		return "", fmt.Errorf("region: unknown policy %q", s)
	}
}

// Region is a shell with zero or more holes. Rings are implicitly closed
// and in the same frame as the forest they came from.
type Region struct {
	ShellID int        `json:"shell_id"`
	HoleIDs []int      `json:"hole_ids,omitempty"`
	Shell   orb.Ring   `json:"shell"`
	Holes   []orb.Ring `json:"holes,omitempty"`
}

// Polygon returns the region as an orb polygon with closed rings.
func (r Region) Polygon() orb.Polygon {
	p := make(orb.Polygon, 0, 1+len(r.Holes))
	p = append(p, contour.Closed(r.Shell))
	for _, h := range r.Holes {
		p = append(p, contour.Closed(h))
	}
	return p
}

// Area returns the shell area minus the hole areas.
func (r Region) Area() float64 {
	a := contour.Area(r.Shell)
	for _, h := range r.Holes {
		a -= contour.Area(h)
	}
	return a
}

// Map returns a copy of the region with fn applied to every point.
func (r Region) Map(fn func(orb.Point) orb.Point) Region {
	out := Region{ShellID: r.ShellID, HoleIDs: append([]int(nil), r.HoleIDs...)}
	out.Shell = mapRing(r.Shell, fn)
	for _, h := range r.Holes {
		out.Holes = append(out.Holes, mapRing(h, fn))
	}
	return out
}

func mapRing(r orb.Ring, fn func(orb.Point) orb.Point) orb.Ring {
	out := make(orb.Ring, len(r))
	for i, p := range r {
		out[i] = fn(p)
	}
	return out
}

// CADFrame returns a mapping from image pixels to physical units with the
// y axis pointing up.
func CADFrame(scale float64) func(orb.Point) orb.Point {
	return func(p orb.Point) orb.Point {
		return orb.Point{p[0] * scale, -p[1] * scale}
	}
}

// Options configures reconstruction.
type Options struct {
	SimplifyFactor float64
	Policy         Policy
}

// Skip records a contour that was active but produced no output.
type Skip struct {
	ID  int
	Err error
}

// Stats summarizes a reconstruction.
type Stats struct {
	Shells     int
	Holes      int
	Degenerate int
	Ignored    int // active contours below the depth the policy handles
	Orphaned   int
	Skipped    []Skip
}

type role int

const (
	inactive role = iota
	shell
	hole
	ignored
)

// Reconstruct builds regions from the active contours of f. A contour is
// a shell when it is active and has no active ancestor, or (nested policy
// only) when its nearest active ancestor is a hole. A contour is a hole of
// the shell that is its nearest active ancestor. Regions are returned in
// node index order of their shells, holes in node index order.
func Reconstruct(f *contour.Forest, sel selection.State, opt Options) ([]Region, Stats) {
	roles := classify(f, sel, opt.Policy)
	var stats Stats

	regions := make([]Region, 0)
	byShell := make(map[int]int)
	for id := range f.Nodes {
		if roles[id] != shell {
			if roles[id] == ignored {
				stats.Ignored++
			}
			continue
		}
		pts := simplify.Node(f.Node(id), opt.SimplifyFactor)
		if len(pts) < 3 {
			stats.Degenerate++
			stats.Skipped = append(stats.Skipped, Skip{ID: id, Err: fmt.Errorf("shell %d: %w", id, ErrDegenerateContour)})
			continue
		}
		byShell[id] = len(regions)
		regions = append(regions, Region{ShellID: id, Shell: pts})
		stats.Shells++
	}

	active := func(i int) bool { return sel.Active(i) }
	for id := range f.Nodes {
		if roles[id] != hole {
			continue
		}
		owner := f.NearestAncestor(id, active)
		idx, ok := byShell[owner]
		if !ok {
			stats.Orphaned++
			stats.Skipped = append(stats.Skipped, Skip{ID: id, Err: fmt.Errorf("hole %d of degenerate shell %d: %w", id, owner, ErrOrphanedHole)})
			continue
		}
		pts := simplify.Node(f.Node(id), opt.SimplifyFactor)
		if len(pts) < 3 {
			stats.Degenerate++
			stats.Skipped = append(stats.Skipped, Skip{ID: id, Err: fmt.Errorf("hole %d: %w", id, ErrDegenerateContour)})
			continue
		}
		regions[idx].HoleIDs = append(regions[idx].HoleIDs, id)
		regions[idx].Holes = append(regions[idx].Holes, pts)
		stats.Holes++
	}

	return regions, stats
}

func classify(f *contour.Forest, sel selection.State, policy Policy) []role {
	roles := make([]role, f.Len())
	done := make([]bool, f.Len())
	active := func(i int) bool { return sel.Active(i) }

	var resolve func(id int) role
	resolve = func(id int) role {
		if done[id] {
			return roles[id]
		}
		r := inactive
		if sel.Active(id) {
			anc := f.NearestAncestor(id, active)
			switch {
			case anc == contour.None:
				r = shell
			case resolve(anc) == shell:
				r = hole
			case policy == PolicyNested && roles[anc] == hole:
				r = shell
			default:
				r = ignored
			}
		}
		roles[id] = r
		done[id] = true
		return r
	}

	for id := range f.Nodes {
		resolve(id)
	}
	return roles
}
