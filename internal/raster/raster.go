// Package raster decodes drawings, builds a binary mask and traces the
// mask's contours into a forest.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/paulmach/orb"
	"gocv.io/x/gocv"

	"github.com/dgallion1/tracecut/internal/contour"
)

// ErrInputUnavailable means the source image is missing or cannot be
// decoded. It is fatal for a run.
var ErrInputUnavailable = errors.New("input image unavailable")

// MaskMode selects how the drawing is binarized.
type MaskMode string

const (
	// MaskThreshold blurs the grayscale image and applies an inverted Otsu
	// threshold. Suited to dark ink on light paper.
	MaskThreshold MaskMode = "threshold"
	// MaskEdges runs Canny edge detection on the grayscale image.
	MaskEdges MaskMode = "edges"
	// MaskGreen thresholds the green channel and closes small gaps. Suited
	// to drawings on green cutting mats.
	MaskGreen MaskMode = "green"
)

// ParseMaskMode accepts threshold, edges or green. Empty means threshold.
func ParseMaskMode(s string) (MaskMode, error) {
	switch MaskMode(s) {
	case "", MaskThreshold:
		return MaskThreshold, nil
	case MaskEdges, MaskGreen:
		return MaskMode(s), nil
	}
	return "", fmt.Errorf("raster: unknown mask mode %q", s)
}

// Tracer turns encoded images into contour forests.
type Tracer struct{}

// NewTracer returns a tracer backed by OpenCV.
func NewTracer() *Tracer {
	return &Tracer{}
}

// TraceFile reads and traces an image file.
func (t *Tracer) TraceFile(ctx context.Context, path, mode string) (*contour.Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
	}
	return t.Trace(ctx, data, mode)
}

// Trace decodes an encoded image (PNG, JPEG, ...) and traces every
// contour of its mask with full nesting.
func (t *Tracer) Trace(ctx context.Context, data []byte, mode string) (*contour.Forest, error) {
	mm, err := ParseMaskMode(mode)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInputUnavailable)
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("%w: cannot decode image", ErrInputUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mask, err := Mask(img, mm)
	if err != nil {
		return nil, err
	}
	defer mask.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := Contours(mask)
	if err != nil {
		return nil, err
	}
	f.Width, f.Height = img.Cols(), img.Rows()
	return f, nil
}

// Mask binarizes a BGR image. The caller owns the returned Mat.
func Mask(img gocv.Mat, mode MaskMode) (gocv.Mat, error) {
	switch mode {
	case MaskThreshold, "":
		gray, err := grayscale(img)
		if err != nil {
			return gocv.Mat{}, err
		}
		defer gray.Close()
		blurred := gocv.NewMat()
		defer blurred.Close()
		if err := gocv.GaussianBlur(gray, &blurred, image.Point{X: 7, Y: 7}, 0, 0, gocv.BorderDefault); err != nil {
			return gocv.Mat{}, fmt.Errorf("blur: %w", err)
		}
		out := gocv.NewMat()
		gocv.Threshold(blurred, &out, 0, 255, gocv.ThresholdBinaryInv+gocv.ThresholdOtsu)
		return out, nil

	case MaskEdges:
		gray, err := grayscale(img)
		if err != nil {
			return gocv.Mat{}, err
		}
		defer gray.Close()
		out := gocv.NewMat()
		if err := gocv.Canny(gray, &out, 100, 200); err != nil {
			out.Close()
			return gocv.Mat{}, fmt.Errorf("canny: %w", err)
		}
		return out, nil

	case MaskGreen:
		channels := gocv.Split(img)
		defer func() {
			for _, c := range channels {
				c.Close()
			}
		}()
		if len(channels) < 3 {
			return gocv.Mat{}, fmt.Errorf("green mask needs a color image, got %d channels", len(channels))
		}
		bin := gocv.NewMat()
		defer bin.Close()
		gocv.Threshold(channels[1], &bin, 200, 255, gocv.ThresholdBinaryInv)

		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
		defer kernel.Close()
		dilated := gocv.NewMat()
		defer dilated.Close()
		if err := gocv.Dilate(bin, &dilated, kernel); err != nil {
			return gocv.Mat{}, fmt.Errorf("dilate: %w", err)
		}
		out := gocv.NewMat()
		if err := gocv.Erode(dilated, &out, kernel); err != nil {
			out.Close()
			return gocv.Mat{}, fmt.Errorf("erode: %w", err)
		}
		return out, nil
	}
	return gocv.Mat{}, fmt.Errorf("raster: unknown mask mode %q", mode)
}

func grayscale(img gocv.Mat) (gocv.Mat, error) {
	gray := gocv.NewMat()
	if err := gocv.CvtColor(img, &gray, gocv.ColorBGRToGray); err != nil {
		gray.Close()
		return gocv.Mat{}, fmt.Errorf("grayscale: %w", err)
	}
	return gray, nil
}

// Contours traces every contour of a binary mask with full nesting and
// returns them as a forest in tracer order.
func Contours(mask gocv.Mat) (*contour.Forest, error) {
	hierarchy := gocv.NewMat()
	defer hierarchy.Close()
	pvs := gocv.FindContoursWithParams(mask, &hierarchy, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer pvs.Close()

	n := pvs.Size()
	rings := make([]orb.Ring, n)
	links := make([]contour.Link, n)
	for i := 0; i < n; i++ {
		pts := pvs.At(i).ToPoints()
		ring := make(orb.Ring, len(pts))
		for j, p := range pts {
			ring[j] = orb.Point{float64(p.X), float64(p.Y)}
		}
		rings[i] = ring

		v := hierarchy.GetVeciAt(0, i)
		for k := 0; k < 4 && k < len(v); k++ {
			links[i][k] = int(v[k])
		}
	}
	return contour.FromHierarchy(rings, links)
}
