// Package export writes reconstructed regions and solids to SVG, DXF and
// STL.
package export

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is an output file format.
type Format string

const (
	FormatSVG Format = "svg"
	FormatDXF Format = "dxf"
	FormatSTL Format = "stl"
)

// Formats lists every supported format.
var Formats = []Format{FormatSVG, FormatDXF, FormatSTL}

// ParseFormat accepts a format name with or without a leading dot, in any
// case.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	switch f {
	case FormatSVG, FormatDXF, FormatSTL:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format: %q", s)
}

// ForFile returns the format matching a file name's extension.
func ForFile(name string) (Format, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		return "", fmt.Errorf("no extension on %q", name)
	}
	return ParseFormat(ext)
}

// ContentType returns the MIME type for HTTP responses.
func (f Format) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatDXF:
		return "image/vnd.dxf"
	case FormatSTL:
		return "model/stl"
	}
	return "application/octet-stream"
}

// NeedsSolid reports whether the format is written from an extruded solid
// rather than from planar regions.
func (f Format) NeedsSolid() bool {
	return f == FormatSTL
}
