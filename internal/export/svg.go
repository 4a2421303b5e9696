package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	svg "github.com/ajstarks/svgo"
	"github.com/paulmach/orb"

	"github.com/dgallion1/tracecut/internal/region"
)

// SVGOptions controls SVG styling. Without Fill, regions are drawn as
// black outlines for cutting; with Fill they are drawn as a solid preview.
type SVGOptions struct {
	Fill        bool
	FillColor   string
	StrokeWidth float64
	Title       string
}

// WriteSVG writes one even-odd path per region in image coordinates. A
// zero width or height is replaced with the regions' extent.
func WriteSVG(w io.Writer, regions []region.Region, width, height int, opt SVGOptions) error {
	if width <= 0 || height <= 0 {
		width, height = extent(regions)
	}
	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	canvas.Start(width, height, fmt.Sprintf(`viewBox="0 0 %d %d"`, width, height))
	if opt.Title != "" {
		canvas.Title(opt.Title)
	}

	style := []string{`fill-rule="evenodd"`}
	if opt.Fill {
		c := opt.FillColor
		if c == "" {
			c = "black"
		}
		style = append(style, fmt.Sprintf(`fill="%s"`, c), `stroke="none"`)
	} else {
		sw := opt.StrokeWidth
		if sw <= 0 {
			sw = 1
		}
		style = append(style, `fill="none"`, `stroke="black"`, fmt.Sprintf(`stroke-width="%s"`, num(sw)))
	}

	for _, r := range regions {
		attrs := append([]string{fmt.Sprintf(`id="region-%d"`, r.ShellID)}, style...)
		canvas.Path(pathData(r), attrs...)
	}
	canvas.End()
	return ew.err
}

func pathData(r region.Region) string {
	var b strings.Builder
	writeRing(&b, r.Shell)
	for _, h := range r.Holes {
		b.WriteByte(' ')
		writeRing(&b, h)
	}
	return b.String()
}

func writeRing(b *strings.Builder, r orb.Ring) {
	for i, p := range r {
		if i == 0 {
			b.WriteString("M")
		} else {
			b.WriteString(" L")
		}
		b.WriteString(num(p[0]))
		b.WriteByte(' ')
		b.WriteString(num(p[1]))
	}
	b.WriteString(" Z")
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func extent(regions []region.Region) (int, int) {
	var maxX, maxY float64
	for _, r := range regions {
		b := r.Shell.Bound()
		maxX = math.Max(maxX, b.Max[0])
		maxY = math.Max(maxY, b.Max[1])
	}
	return int(math.Ceil(maxX)) + 1, int(math.Ceil(maxY)) + 1
}

// errWriter keeps the first write error since svgo does not report them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return len(p), nil
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
