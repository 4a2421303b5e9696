package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/tracecut/internal/contour"
	"github.com/dgallion1/tracecut/internal/export"
	"github.com/dgallion1/tracecut/internal/extrude"
	"github.com/dgallion1/tracecut/internal/noise"
	"github.com/dgallion1/tracecut/internal/region"
	"github.com/dgallion1/tracecut/internal/repair"
	"github.com/dgallion1/tracecut/internal/selection"
)

// Summary counts what happened to every contour and region in a run.
type Summary struct {
	RawContours        int      `json:"raw_contours"`
	NoiseFiltered      int      `json:"noise_filtered"`
	DuplicatesFiltered int      `json:"duplicates_filtered"`
	Active             int      `json:"active"`
	DegenerateContours int      `json:"degenerate_contours"`
	IgnoredNested      int      `json:"ignored_nested"`
	OrphanedHoles      int      `json:"orphaned_holes"`
	Reconstructed      int      `json:"reconstructed"`
	Holes              int      `json:"holes"`
	Repaired           int      `json:"repaired"`
	Discarded          int      `json:"discarded"`
	DegenerateSolids   int      `json:"degenerate_solids"`
	Extruded           int      `json:"extruded"`
	Skipped            []string `json:"skipped"`
}

// Output returns the number of regions that reached the exporters.
func (s Summary) Output() int {
	return s.Reconstructed - s.Discarded
}

// Result is the outcome of Run. Regions are in image coordinates.
type Result struct {
	Regions []region.Region
	Solid   *extrude.Solid
	Summary Summary
}

// Filter runs the noise filter and returns its selection.
func Filter(f *contour.Forest, p Params) (selection.State, noise.Result) {
	res := noise.Filter(f, p.Noise())
	return res.Selection(), res
}

// Run reconstructs, repairs and optionally extrudes the regions of f. When
// sel is nil the noise filter decides which contours are active; otherwise
// sel is used as given and the filter only contributes counts. Geometry
// failures are counted in the summary and never abort the run.
func Run(f *contour.Forest, sel selection.State, p Params, solid bool, log *slog.Logger) Result {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	filtered, nres := Filter(f, p)
	if sel == nil {
		sel = filtered
	}
	sum := Summary{
		RawContours:        f.Len(),
		NoiseFiltered:      nres.Small,
		DuplicatesFiltered: nres.Duplicates,
		Active:             sel.Count(),
		Skipped:            []string{},
	}
	log.Info("filtered contours", "raw", sum.RawContours, "noise", sum.NoiseFiltered,
		"duplicates", sum.DuplicatesFiltered, "active", sum.Active)

	regions, rstats := region.Reconstruct(f, sel, p.Region())
	sum.Reconstructed = rstats.Shells
	sum.Holes = rstats.Holes
	sum.DegenerateContours = rstats.Degenerate
	sum.IgnoredNested = rstats.Ignored
	sum.OrphanedHoles = rstats.Orphaned
	for _, s := range rstats.Skipped {
		log.Warn("skipped contour", "contour_id", s.ID, "error", s.Err)
		sum.Skipped = append(sum.Skipped, s.Err.Error())
	}
	log.Info("reconstructed regions", "regions", len(regions), "holes", rstats.Holes)

	valid := make([]region.Region, 0, len(regions))
	for _, r := range regions {
		fixed, outcome, err := repair.Repair(r)
		switch outcome {
		case repair.Repaired:
			sum.Repaired++
			log.Info("repaired region", "shell_id", r.ShellID)
		case repair.Discarded:
			sum.Discarded++
			sum.Skipped = append(sum.Skipped, err.Error())
			log.Warn("discarded region", "shell_id", r.ShellID, "error", err)
			continue
		}
		valid = append(valid, fixed)
	}

	res := Result{Regions: valid}
	if solid {
		res.Solid = extrudeAll(CADRegions(valid, p.Scale), p.ExtrusionHeight, &sum, log)
	}
	res.Summary = sum
	return res
}

func extrudeAll(regions []region.Region, height float64, sum *Summary, log *slog.Logger) *extrude.Solid {
	solids := make([]*extrude.Solid, 0, len(regions))
	for _, r := range regions {
		s, err := extrude.Extrude(r, height)
		if err != nil {
			if errors.Is(err, extrude.ErrDegenerateGeometry) {
				sum.DegenerateSolids++
			}
			sum.Skipped = append(sum.Skipped, err.Error())
			log.Warn("extrusion failed", "shell_id", r.ShellID, "error", err)
			continue
		}
		solids = append(solids, s)
		sum.Extruded++
	}
	log.Info("extruded regions", "solids", sum.Extruded, "failed", sum.DegenerateSolids)
	return extrude.MergeAll(solids)
}

// CADRegions maps image-space regions to physical units with y up.
func CADRegions(regions []region.Region, scale float64) []region.Region {
	frame := region.CADFrame(scale)
	out := make([]region.Region, len(regions))
	for i, r := range regions {
		out[i] = r.Map(frame)
	}
	return out
}

// Render encodes a run result in the given format. width and height give
// the SVG canvas and may be zero.
func Render(format export.Format, res Result, width, height int, p Params) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case export.FormatSVG:
		err = export.WriteSVG(&buf, res.Regions, width, height, export.SVGOptions{Fill: p.SVGFill})
	case export.FormatDXF:
		err = export.WriteDXF(&buf, CADRegions(res.Regions, p.Scale))
	case export.FormatSTL:
		if res.Solid == nil {
			return nil, fmt.Errorf("stl requested but no solid was built")
		}
		err = export.WriteSTL(&buf, res.Solid)
	default:
		return nil, fmt.Errorf("unsupported format: %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
