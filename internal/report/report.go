// Package report renders conversion run summaries as Markdown and HTML.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dgallion1/tracecut/internal/pipeline"
)

// Run is the data shown in a report.
type Run struct {
	Title     string
	JobID     string
	Status    string
	Params    pipeline.Params
	Summary   pipeline.Summary
	Artifacts []string
	Errors    []string
	Created   time.Time
}

// FromJob builds a report from a job snapshot.
func FromJob(s pipeline.JobSnapshot) Run {
	artifacts := make([]string, len(s.Artifacts))
	for i, f := range s.Artifacts {
		artifacts[i] = string(f)
	}
	return Run{
		Title:     s.Filename,
		JobID:     s.ID,
		Status:    string(s.Status),
		Params:    s.Params,
		Summary:   s.Summary,
		Artifacts: artifacts,
		Errors:    s.Errors,
		Created:   s.CreatedAt,
	}
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"<", `\<`, ">", `\>`, "|", `\|`, "#", `\#`,
)

func escape(s string) string {
	return mdEscaper.Replace(s)
}

// Markdown renders the report as GitHub-flavored Markdown.
func Markdown(r Run) []byte {
	var b bytes.Buffer
	title := r.Title
	if title == "" {
		title = "untitled"
	}
	fmt.Fprintf(&b, "# Run report: %s\n\n", escape(title))

	if r.JobID != "" {
		fmt.Fprintf(&b, "- Job: `%s`\n", r.JobID)
	}
	if r.Status != "" {
		fmt.Fprintf(&b, "- Status: **%s**\n", r.Status)
	}
	if !r.Created.IsZero() {
		fmt.Fprintf(&b, "- Created: %s\n", r.Created.UTC().Format(time.RFC3339))
	}
	if len(r.Artifacts) > 0 {
		fmt.Fprintf(&b, "- Artifacts: %s\n", strings.Join(r.Artifacts, ", "))
	}
	b.WriteString("\n## Contours\n\n")

	s := r.Summary
	b.WriteString("| Stage | Count |\n|---|---:|\n")
	rows := []struct {
		label string
		n     int
	}{
		{"Raw contours", s.RawContours},
		{"Filtered as noise", s.NoiseFiltered},
		{"Filtered as duplicates", s.DuplicatesFiltered},
		{"Active", s.Active},
		{"Degenerate after simplification", s.DegenerateContours},
		{"Ignored nested", s.IgnoredNested},
		{"Orphaned holes", s.OrphanedHoles},
		{"Regions reconstructed", s.Reconstructed},
		{"Holes", s.Holes},
		{"Regions repaired", s.Repaired},
		{"Regions discarded", s.Discarded},
		{"Regions exported", s.Output()},
		{"Degenerate solids", s.DegenerateSolids},
		{"Regions extruded", s.Extruded},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %d |\n", row.label, row.n)
	}

	p := r.Params
	b.WriteString("\n## Parameters\n\n")
	b.WriteString("| Parameter | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Mask mode | %s |\n", escape(p.MaskMode))
	fmt.Fprintf(&b, "| Simplify factor | %g |\n", p.SimplifyFactor)
	fmt.Fprintf(&b, "| Noise area min | %g |\n", p.AreaMinNoise)
	fmt.Fprintf(&b, "| Noise length min | %g |\n", p.LengthMinNoise)
	fmt.Fprintf(&b, "| Duplicate ratio | %g |\n", p.DuplicateRatio)
	fmt.Fprintf(&b, "| Scale (mm/px) | %g |\n", p.Scale)
	fmt.Fprintf(&b, "| Extrusion height (mm) | %g |\n", p.ExtrusionHeight)
	fmt.Fprintf(&b, "| Nesting policy | %s |\n", p.Policy)

	b.WriteString("\n## Skipped\n\n")
	if len(s.Skipped) == 0 {
		b.WriteString("Nothing was skipped.\n")
	}
	for _, msg := range s.Skipped {
		fmt.Fprintf(&b, "- %s\n", escape(msg))
	}

	if len(r.Errors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, msg := range r.Errors {
			fmt.Fprintf(&b, "- %s\n", escape(msg))
		}
	}
	return b.Bytes()
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML renders the report as a standalone HTML page.
func HTML(r Run) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert(Markdown(r), &body); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>Run report</title>\n")
	b.WriteString("<style>body{font-family:sans-serif;max-width:48em;margin:2em auto}" +
		"table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.25em .75em}</style>\n")
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.Bytes(), nil
}
