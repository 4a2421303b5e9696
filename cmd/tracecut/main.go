// Command tracecut converts a drawing into cut-ready SVG, DXF and STL files.
//
//	tracecut [flags] input.png out.svg [out.dxf out.stl ...]
//
// Output formats are chosen by file extension. Flag defaults come from the
// same environment variables the server reads.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dgallion1/tracecut/internal/config"
	"github.com/dgallion1/tracecut/internal/contour"
	"github.com/dgallion1/tracecut/internal/export"
	"github.com/dgallion1/tracecut/internal/pipeline"
	"github.com/dgallion1/tracecut/internal/raster"
	"github.com/dgallion1/tracecut/internal/region"
	"github.com/dgallion1/tracecut/internal/report"
	"github.com/dgallion1/tracecut/internal/selection"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tracecut:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	p := pipeline.ParamsFromConfig(cfg)
	policy := string(p.Policy)

	flag.StringVar(&p.MaskMode, "mode", p.MaskMode, "mask mode: threshold, edges or green")
	flag.Float64Var(&p.SimplifyFactor, "simplify", p.SimplifyFactor, "simplification tolerance as a fraction of each contour's perimeter")
	flag.Float64Var(&p.AreaMinNoise, "area-min", p.AreaMinNoise, "contours below this area (px²) and below -length-min are noise")
	flag.Float64Var(&p.LengthMinNoise, "length-min", p.LengthMinNoise, "contours below this perimeter (px) and below -area-min are noise")
	flag.Float64Var(&p.DuplicateRatio, "ratio", p.DuplicateRatio, "child/parent area ratio above which a child is a duplicate outline")
	flag.Float64Var(&p.Scale, "scale", p.Scale, "millimetres per pixel")
	flag.Float64Var(&p.ExtrusionHeight, "height", p.ExtrusionHeight, "extrusion height in mm for STL output")
	flag.StringVar(&policy, "policy", policy, "nesting policy: nested or flat")
	flag.BoolVar(&p.SVGFill, "fill", p.SVGFill, "draw filled regions in SVG instead of cut outlines")
	reportPath := flag.String("report", "", "write a Markdown run report to this path")
	interactive := flag.Bool("select", false, "edit the contour selection on stdin before exporting")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: tracecut [flags] input.png out.svg [out.dxf out.stl ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		return fmt.Errorf("need an input image and at least one output file")
	}
	input, outputs := args[0], args[1:]

	formats := make([]export.Format, len(outputs))
	solid := false
	for i, out := range outputs {
		f, err := export.ForFile(out)
		if err != nil {
			return err
		}
		formats[i] = f
		solid = solid || f.NeedsSolid()
	}

	pol, err := region.ParsePolicy(policy)
	if err != nil {
		return err
	}
	p.Policy = pol
	if err := p.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	forest, err := raster.NewTracer().TraceFile(ctx, input, p.MaskMode)
	if err != nil {
		return err
	}
	log.Info("traced image", "input", input, "contours", forest.Len(), "width", forest.Width, "height", forest.Height)

	var sel selection.State
	if *interactive {
		sel, err = editSelection(ctx, forest, p, os.Stdin, os.Stderr)
		if err != nil {
			return err
		}
	}

	res := pipeline.Run(forest, sel, p, solid, log)
	for i, out := range outputs {
		data, err := pipeline.Render(formats[i], res, forest.Width, forest.Height, p)
		if err != nil {
			return fmt.Errorf("%s: %w", out, err)
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		log.Info("wrote output", "path", out, "format", formats[i], "bytes", len(data))
	}

	if *reportPath != "" {
		artifacts := make([]string, len(formats))
		for i, f := range formats {
			artifacts[i] = string(f)
		}
		md := report.Markdown(report.Run{
			Title:     input,
			Status:    "completed",
			Params:    p,
			Summary:   res.Summary,
			Artifacts: artifacts,
			Created:   start,
		})
		if err := os.WriteFile(*reportPath, md, 0o644); err != nil {
			return err
		}
	}

	s := res.Summary
	log.Info("done",
		"raw", s.RawContours,
		"noise", s.NoiseFiltered,
		"duplicates", s.DuplicatesFiltered,
		"regions", s.Output(),
		"holes", s.Holes,
		"repaired", s.Repaired,
		"discarded", s.Discarded,
		"extruded", s.Extruded,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// editSelection runs a line-oriented selection loop:
//
//	list           show contours and their state
//	t ID...        toggle contours
//	on ID / off ID force a contour on or off
//	commit         export with the current selection
//	discard        abort
func editSelection(ctx context.Context, f *contour.Forest, p pipeline.Params, in io.Reader, out io.Writer) (selection.State, error) {
	initial, filter := pipeline.Filter(f, p)
	sess := selection.NewSession(initial, f.Len())
	events := make(chan selection.Event)

	list := func() {
		state := sess.Snapshot()
		for id := range f.Nodes {
			n := f.Node(id)
			mark := " "
			if state.Active(id) {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %3d depth=%d area=%.0f perimeter=%.0f %s\n",
				mark, id, f.Depth(id), n.Area, n.Perimeter, filter.Reasons[id])
		}
		fmt.Fprintf(out, "%d of %d active\n", state.Count(), f.Len())
	}
	list()

	go func() {
		defer close(events)
		send := func(ev selection.Event) bool {
			ev.Reply = make(chan error, 1)
			select {
			case events <- ev:
			case <-ctx.Done():
				return false
			}
			if err := <-ev.Reply; err != nil {
				fmt.Fprintln(out, err)
			}
			return ev.Kind != selection.Commit && ev.Kind != selection.Discard
		}

		sc := bufio.NewScanner(in)
		for sc.Scan() {
			fields := strings.Fields(sc.Text())
			if len(fields) == 0 {
				continue
			}
			var evs []selection.Event
			switch fields[0] {
			case "list", "ls":
				list()
			case "t", "toggle":
				for _, arg := range fields[1:] {
					id, err := strconv.Atoi(arg)
					if err != nil {
						fmt.Fprintf(out, "bad contour id %q\n", arg)
						continue
					}
					evs = append(evs, selection.Event{Kind: selection.Toggle, ID: id})
				}
			case "on", "off":
				for _, arg := range fields[1:] {
					id, err := strconv.Atoi(arg)
					if err != nil {
						fmt.Fprintf(out, "bad contour id %q\n", arg)
						continue
					}
					evs = append(evs, selection.Event{Kind: selection.Set, ID: id, Active: fields[0] == "on"})
				}
			case "commit", "c":
				evs = append(evs, selection.Event{Kind: selection.Commit})
			case "discard", "q":
				evs = append(evs, selection.Event{Kind: selection.Discard})
			default:
				fmt.Fprintf(out, "unknown command %q\n", fields[0])
			}
			for _, ev := range evs {
				if !send(ev) {
					return
				}
			}
		}
	}()

	return sess.Run(ctx, events)
}
