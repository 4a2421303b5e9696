// Package repair validates reconstructed regions and runs a single
// normalizing pass over the ones that are not valid polygons.
package repair

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/dgallion1/tracecut/internal/contour"
	"github.com/dgallion1/tracecut/internal/region"
)

// ErrInvalidGeometry is wrapped by every validation failure.
var ErrInvalidGeometry = errors.New("invalid geometry")

// ValidationError describes why a region is not a valid polygon.
type ValidationError struct {
	ShellID int
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("region %d: %s", e.ShellID, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidGeometry
}

// Outcome is the result of Repair.
type Outcome int

const (
	Valid Outcome = iota
	Repaired
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case Repaired:
		return "repaired"
	case Discarded:
		return "discarded"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Validate reports whether r is a valid polygon: a simple shell with
// non-zero area, simple holes strictly inside it, and no two holes
// touching or nested.
func Validate(r region.Region) error {
	invalid := func(format string, args ...any) error {
		return &ValidationError{ShellID: r.ShellID, Reason: fmt.Sprintf(format, args...)}
	}

	if reason := checkRing(r.Shell); reason != "" {
		return invalid("shell %s", reason)
	}
	for i, h := range r.Holes {
		if reason := checkRing(h); reason != "" {
			return invalid("hole %d %s", i, reason)
		}
		if ringsTouch(r.Shell, h) {
			return invalid("hole %d touches shell", i)
		}
		if !planar.RingContains(r.Shell, h[0]) {
			return invalid("hole %d outside shell", i)
		}
	}
	for i := range r.Holes {
		for j := i + 1; j < len(r.Holes); j++ {
			if holesOverlap(r.Holes[i], r.Holes[j]) {
				return invalid("holes %d and %d overlap", i, j)
			}
		}
	}
	return nil
}

func checkRing(r orb.Ring) string {
	if len(r) < 3 {
		return "has fewer than 3 points"
	}
	for i := range r {
		a, b := edge(r, i)
		if a == b {
			return "has repeated point"
		}
	}
	if math.Abs(planar.Area(r)) <= eps {
		return "has zero area"
	}
	if selfIntersects(r) {
		return "self-intersects"
	}
	return ""
}

func holesOverlap(a, b orb.Ring) bool {
	return ringsTouch(a, b) || planar.RingContains(a, b[0]) || planar.RingContains(b, a[0])
}

// Repair returns r unchanged when it is valid. Otherwise it normalizes r
// once and validates again; a region that is still invalid is discarded
// with an error wrapping ErrInvalidGeometry.
func Repair(r region.Region) (region.Region, Outcome, error) {
	if err := Validate(r); err == nil {
		return r, Valid, nil
	}
	fixed := Normalize(r)
	if err := Validate(fixed); err != nil {
		return region.Region{}, Discarded, err
	}
	return fixed, Repaired, nil
}

// Normalize cleans every ring, splits self-intersecting rings at their
// crossings and pinches keeping the largest loop, drops holes that are
// still invalid, leave the shell or overlap a larger hole, and orients the shell counter-clockwise and the
// holes clockwise.
func Normalize(r region.Region) region.Region {
	out := region.Region{ShellID: r.ShellID, Shell: fixRing(r.Shell)}
	if len(out.Shell) < 3 {
		return out
	}

	type candidate struct {
		index int
		id    int
		ring  orb.Ring
		area  float64
	}
	var cands []candidate
	for i, h := range r.Holes {
		fh := fixRing(h)
		if checkRing(fh) != "" || ringsTouch(out.Shell, fh) || !planar.RingContains(out.Shell, fh[0]) {
			continue
		}
		id := contour.None
		if i < len(r.HoleIDs) {
			id = r.HoleIDs[i]
		}
		cands = append(cands, candidate{index: i, id: id, ring: fh, area: contour.Area(fh)})
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].area > cands[j].area })
	var kept []candidate
	for _, c := range cands {
		overlaps := false
		for _, k := range kept {
			if holesOverlap(k.ring, c.ring) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].index < kept[j].index })

	orient(out.Shell, orb.CCW)
	for _, k := range kept {
		orient(k.ring, orb.CW)
		out.Holes = append(out.Holes, k.ring)
		if len(r.HoleIDs) > 0 {
			out.HoleIDs = append(out.HoleIDs, k.id)
		}
	}
	return out
}

func orient(r orb.Ring, o orb.Orientation) {
	if planarOrientation(r) != o {
		r.Reverse()
	}
}

func planarOrientation(r orb.Ring) orb.Orientation {
	a := planar.Area(r)
	switch {
	case a > 0:
		return orb.CCW
	case a < 0:
		return orb.CW
	}
	return 0
}

func fixRing(r orb.Ring) orb.Ring {
	pts := clean(r)
	if len(pts) < 3 || !selfIntersects(pts) {
		return pts
	}

	var best orb.Ring
	bestArea := 0.0
	for _, loop := range untangle(pts) {
		loop = clean(loop)
		if len(loop) < 3 {
			continue
		}
		if a := contour.Area(loop); a > bestArea {
			best, bestArea = loop, a
		}
	}
	return best
}

// clean removes repeated points, spikes and collinear vertices until none
// remain. The input is not modified.
func clean(r orb.Ring) orb.Ring {
	pts := contour.Open(r).Clone()
	for len(pts) >= 3 {
		n := len(pts)
		removed := false
		for i := 0; i < n; i++ {
			prev, cur, next := pts[(i+n-1)%n], pts[i], pts[(i+1)%n]
			if sign(cross(prev, cur, next)) == 0 {
				pts = append(pts[:i], pts[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			break
		}
	}
	return pts
}

// untangle walks the ring and cuts off a loop every time the next edge
// crosses an edge already walked or the next point revisits a walked
// vertex. The remainder of the walk is the last loop returned.
func untangle(r orb.Ring) []orb.Ring {
	path := orb.Ring{r[0]}
	visit := append(r[1:].Clone(), r[0])

	var loops []orb.Ring
	for k, p := range visit {
		for cut := true; cut; {
			cut = false
			a := path[len(path)-1]
			for i := 0; i+2 < len(path); i++ {
				x, ok := crossing(path[i], path[i+1], a, p)
				if !ok {
					continue
				}
				loop := append(orb.Ring{x}, path[i+1:]...)
				loops = append(loops, loop)
				path = append(path[:i+1:i+1], x)
				cut = true
				break
			}
		}

		// A pinch: p is already on the path. The closing point of the
		// walk is allowed to return to the start.
		last := k == len(visit)-1
		pinch := -1
		for j := 0; j < len(path)-1; j++ {
			if path[j] == p && !(j == 0 && last) {
				pinch = j
				break
			}
		}
		if pinch >= 0 {
			loops = append(loops, path[pinch:].Clone())
			path = path[:pinch+1]
			continue
		}
		if path[len(path)-1] != p {
			path = append(path, p)
		}
	}
	if len(path) > 1 && path[len(path)-1] == path[0] {
		path = path[:len(path)-1]
	}
	return append(loops, path)
}
