// Package noise marks traced contours that are too small to matter or
// that duplicate their parent's outline.
package noise

import (
	"fmt"

	"github.com/dgallion1/tracecut/internal/contour"
	"github.com/dgallion1/tracecut/internal/selection"
)

// Reason explains why a contour is inactive after filtering.
type Reason int

const (
	Kept Reason = iota
	Small
	Duplicate
)

func (r Reason) String() string {
	switch r {
	case Kept:
		return "kept"
	case Small:
		return "small"
	case Duplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Params configures the filter. A contour is small when its area is below
// AreaMin AND its perimeter is below LengthMin. A contour duplicates its
// parent when its area divided by the parent's area exceeds RatioMax.
type Params struct {
	AreaMin   float64
	LengthMin float64
	RatioMax  float64
}

// DefaultParams returns the thresholds used for scanned line art.
func DefaultParams() Params {
	return Params{AreaMin: 10, LengthMin: 15, RatioMax: 0.85}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.AreaMin < 0 || p.LengthMin < 0 {
		return fmt.Errorf("noise: thresholds must be non-negative")
	}
	if p.RatioMax <= 0 || p.RatioMax > 1 {
		return fmt.Errorf("noise: duplicate ratio must be in (0, 1], got %v", p.RatioMax)
	}
	return nil
}

// Result holds the per-node outcome of a filter run.
type Result struct {
	Reasons    []Reason
	Small      int
	Duplicates int
}

// Active reports whether node id survived both passes.
func (r Result) Active(id int) bool {
	return r.Reasons[id] == Kept
}

// Selection returns the surviving nodes as a selection state covering
// every node in the forest.
func (r Result) Selection() selection.State {
	s := make(selection.State, len(r.Reasons))
	for id, reason := range r.Reasons {
		s[id] = reason == Kept
	}
	return s
}

// Filter runs the absolute pass then the duplicate pass. The duplicate
// pass compares each node with its immediate raw parent, whether or not
// that parent survived. Area figures are the original, unsimplified
// measures.
func Filter(f *contour.Forest, p Params) Result {
	res := Result{Reasons: make([]Reason, f.Len())}

	for id := range f.Nodes {
		n := f.Node(id)
		if n.Area < p.AreaMin && n.Perimeter < p.LengthMin {
			res.Reasons[id] = Small
			res.Small++
		}
	}

	for id := range f.Nodes {
		if res.Reasons[id] != Kept {
			continue
		}
		n := f.Node(id)
		if n.Parent == contour.None {
			continue
		}
		parentArea := f.Node(n.Parent).Area
		if parentArea > 0 && n.Area/parentArea > p.RatioMax {
			res.Reasons[id] = Duplicate
			res.Duplicates++
		}
	}

	return res
}
