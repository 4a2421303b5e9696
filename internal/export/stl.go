package export

import (
	"io"

	"github.com/unixpickle/model3d/model3d"

	"github.com/dgallion1/tracecut/internal/extrude"
)

// WriteSTL writes the solid as binary STL.
func WriteSTL(w io.Writer, s *extrude.Solid) error {
	if s == nil {
		s = &extrude.Solid{}
	}
	return model3d.WriteSTL(w, s.Triangles())
}
