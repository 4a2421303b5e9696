// Package extrude turns planar regions into closed triangle meshes of
// constant thickness.
package extrude

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/unixpickle/model3d/model2d"
	"github.com/unixpickle/model3d/model3d"

	"github.com/dgallion1/tracecut/internal/contour"
	"github.com/dgallion1/tracecut/internal/region"
)

var (
	// ErrDegenerateGeometry means a region could not be turned into a
	// closed solid.
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	// ErrInvalidHeight means the extrusion height is not positive.
	ErrInvalidHeight = errors.New("extrusion height must be positive")
)

const (
	minArea      = 1e-9
	volumeRelTol = 1e-6
)

// Extrude sweeps r from z=0 to z=height. The region's rings may have any
// orientation; they are normalized before triangulation.
func Extrude(r region.Region, height float64) (s *Solid, err error) {
	if !(height > 0) || math.IsInf(height, 0) {
		return nil, fmt.Errorf("extrude: height %v: %w", height, ErrInvalidHeight)
	}
	area := r.Area()
	if area <= minArea {
		return nil, fmt.Errorf("extrude: region %d has area %v: %w", r.ShellID, area, ErrDegenerateGeometry)
	}

	defer func() {
		if p := recover(); p != nil {
			s = nil
			err = fmt.Errorf("extrude: region %d: triangulation failed: %v: %w", r.ShellID, p, ErrDegenerateGeometry)
		}
	}()

	outline := model2d.NewMesh()
	addRing(outline, r.Shell, orb.CW)
	for _, h := range r.Holes {
		addRing(outline, h, orb.CCW)
	}

	mesh := model3d.ProfileMesh(outline, 0, height)
	if mesh.NeedsRepair() {
		return nil, fmt.Errorf("extrude: region %d: mesh is not closed: %w", r.ShellID, ErrDegenerateGeometry)
	}
	want := area * height
	if got := mesh.Volume(); math.Abs(got-want) > volumeRelTol*want {
		return nil, fmt.Errorf("extrude: region %d: volume %v, want %v: %w", r.ShellID, got, want, ErrDegenerateGeometry)
	}
	return fromMesh(mesh), nil
}

// addRing adds the ring's edges to m after orienting it. model2d treats a
// clockwise outline (y up) as solid, counter-clockwise as a cut-out.
func addRing(m *model2d.Mesh, r orb.Ring, want orb.Orientation) {
	ring := contour.Open(r).Clone()
	a := planar.Area(ring)
	if (want == orb.CW && a > 0) || (want == orb.CCW && a < 0) {
		ring.Reverse()
	}
	for i := range ring {
		p, q := ring[i], ring[(i+1)%len(ring)]
		m.Add(&model2d.Segment{model2d.XY(p[0], p[1]), model2d.XY(q[0], q[1])})
	}
}
