package extrude

import (
	"github.com/unixpickle/model3d/model3d"
)

// Solid is a triangle mesh stored as shared vertices and index triples.
// Faces are wound counter-clockwise seen from outside.
type Solid struct {
	Vertices []model3d.Coord3D
	Faces    [][3]int
}

func fromMesh(m *model3d.Mesh) *Solid {
	s := &Solid{}
	index := make(map[model3d.Coord3D]int)
	for _, t := range m.TriangleSlice() {
		var face [3]int
		for i, c := range t {
			idx, ok := index[c]
			if !ok {
				idx = len(s.Vertices)
				index[c] = idx
				s.Vertices = append(s.Vertices, c)
			}
			face[i] = idx
		}
		s.Faces = append(s.Faces, face)
	}
	return s
}

// MergeAll concatenates solids into one. Vertices are not welded across
// inputs. Nil inputs are skipped; no inputs give an empty solid.
func MergeAll(solids []*Solid) *Solid {
	out := &Solid{}
	for _, s := range solids {
		if s == nil {
			continue
		}
		offset := len(out.Vertices)
		out.Vertices = append(out.Vertices, s.Vertices...)
		for _, f := range s.Faces {
			out.Faces = append(out.Faces, [3]int{f[0] + offset, f[1] + offset, f[2] + offset})
		}
	}
	return out
}

// Empty reports whether the solid has no faces.
func (s *Solid) Empty() bool {
	return s == nil || len(s.Faces) == 0
}

// Triangles expands the faces into model3d triangles.
func (s *Solid) Triangles() []*model3d.Triangle {
	tris := make([]*model3d.Triangle, len(s.Faces))
	for i, f := range s.Faces {
		tris[i] = &model3d.Triangle{s.Vertices[f[0]], s.Vertices[f[1]], s.Vertices[f[2]]}
	}
	return tris
}

// Mesh builds a model3d mesh from the solid.
func (s *Solid) Mesh() *model3d.Mesh {
	return model3d.NewMeshTriangles(s.Triangles())
}

// Volume returns the enclosed volume.
func (s *Solid) Volume() float64 {
	if s.Empty() {
		return 0
	}
	return s.Mesh().Volume()
}

// Bounds returns the axis-aligned bounding box. It returns zero coords for
// an empty solid.
func (s *Solid) Bounds() (min, max model3d.Coord3D) {
	if len(s.Vertices) == 0 {
		return
	}
	min, max = s.Vertices[0], s.Vertices[0]
	for _, v := range s.Vertices[1:] {
		min = min.Min(v)
		max = max.Max(v)
	}
	return min, max
}

// SectionArea returns the area of the cross-section at height z. Each
// face crossing the plane contributes one segment, oriented by the face
// normal so that the shoelace sum counts material as positive and voids
// as negative.
func (s *Solid) SectionArea(z float64) float64 {
	total := 0.0
	for _, f := range s.Faces {
		t := [3]model3d.Coord3D{s.Vertices[f[0]], s.Vertices[f[1]], s.Vertices[f[2]]}
		p, q, ok := slice(t, z)
		if !ok {
			continue
		}
		n := t[1].Sub(t[0]).Cross(t[2].Sub(t[0]))
		d := q.Sub(p)
		// The outward normal must lie to the right of the segment.
		if d.Y*n.X-d.X*n.Y < 0 {
			p, q = q, p
		}
		total += p.X*q.Y - q.X*p.Y
	}
	return total / 2
}

func slice(t [3]model3d.Coord3D, z float64) (model3d.Coord3D, model3d.Coord3D, bool) {
	var pts []model3d.Coord3D
	for i := 0; i < 3; i++ {
		a, b := t[i], t[(i+1)%3]
		if (a.Z < z) == (b.Z < z) {
			continue
		}
		k := (z - a.Z) / (b.Z - a.Z)
		pts = append(pts, model3d.XYZ(a.X+k*(b.X-a.X), a.Y+k*(b.Y-a.Y), z))
	}
	if len(pts) != 2 {
		return model3d.Coord3D{}, model3d.Coord3D{}, false
	}
	return pts[0], pts[1], true
}
