package export

import (
	"fmt"
	"io"
	"sync"

	"github.com/paulmach/orb"
	"github.com/yofu/dxf"
	"github.com/yofu/dxf/color"

	"github.com/dgallion1/tracecut/internal/region"
)

// CutLayer is the DXF layer holding every cut outline.
const CutLayer = "CUT"

// dxf drawings share package-level layer tables.
var dxfMu sync.Mutex

// WriteDXF writes every shell and hole as a closed LWPOLYLINE on the CUT
// layer. Regions must already be in physical units with y up.
func WriteDXF(w io.Writer, regions []region.Region) error {
	dxfMu.Lock()
	defer dxfMu.Unlock()

	d := dxf.NewDrawing()
	d.Header().LtScale = 1.0
	if _, err := d.AddLayer(CutLayer, color.Red, dxf.DefaultLineType, true); err != nil {
		return fmt.Errorf("dxf layer: %w", err)
	}
	if err := d.ChangeLayer(CutLayer); err != nil {
		return fmt.Errorf("dxf layer: %w", err)
	}

	for _, r := range regions {
		if _, err := d.LwPolyline(true, vertices(r.Shell)...); err != nil {
			return fmt.Errorf("dxf shell %d: %w", r.ShellID, err)
		}
		for _, h := range r.Holes {
			if _, err := d.LwPolyline(true, vertices(h)...); err != nil {
				return fmt.Errorf("dxf hole of %d: %w", r.ShellID, err)
			}
		}
	}

	if len(regions) > 0 {
		d.SetExt()
	}
	if _, err := d.WriteTo(w); err != nil {
		return fmt.Errorf("write dxf: %w", err)
	}
	return nil
}

func vertices(r orb.Ring) [][]float64 {
	out := make([][]float64, len(r))
	for i, p := range r {
		out[i] = []float64{p[0], p[1]}
	}
	return out
}
