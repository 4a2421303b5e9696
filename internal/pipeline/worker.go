package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/tracecut/internal/contour"
)

// Tracer turns encoded image bytes into a contour forest.
type Tracer interface {
	Trace(ctx context.Context, data []byte, mode string) (*contour.Forest, error)
}

// Worker processes a single conversion job.
type Worker struct {
	tracer Tracer
	stats  *RunStats
	log    *slog.Logger
}

func NewWorker(tracer Tracer, stats *RunStats, log *slog.Logger) *Worker {
	return &Worker{tracer: tracer, stats: stats, log: log}
}

// Process runs the full conversion pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	var timing Timing

	// Phase 1: Trace, unless a session already did.
	forest, sel := job.Traced()
	if forest == nil {
		job.SetStatus(StatusTracing, "tracing")
		start := time.Now()
		f, err := w.tracer.Trace(ctx, job.FileData(), job.Params.MaskMode)
		timing.Trace = time.Since(start)
		if err != nil {
			log.Error("trace failed", "error", err)
			job.AddError(fmt.Sprintf("trace: %s", err))
			job.SetStatus(StatusFailed, "tracing")
			w.record(timing, StatusFailed, Summary{})
			return
		}
		forest = f
		log.Info("traced image", "contours", forest.Len(), "width", forest.Width, "height", forest.Height)
	}
	job.SetFileData(nil)

	if err := ctx.Err(); err != nil {
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "tracing")
		w.record(timing, StatusFailed, Summary{})
		return
	}

	// Phase 2: Filter, reconstruct, repair and extrude.
	job.SetStatus(StatusReconstructing, "reconstructing")
	solid := false
	for _, f := range job.Formats {
		if f.NeedsSolid() {
			solid = true
		}
	}
	start := time.Now()
	res := Run(forest, sel, job.Params, solid, log)
	timing.Reconstruct = time.Since(start)
	job.SetSummary(res.Summary)

	if err := ctx.Err(); err != nil {
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "reconstructing")
		w.record(timing, StatusFailed, res.Summary)
		return
	}

	// Phase 3: Encode each requested format.
	job.SetStatus(StatusExporting, "exporting")
	start = time.Now()
	written := 0
	hadErrors := false
	for _, f := range job.Formats {
		data, err := Render(f, res, forest.Width, forest.Height, job.Params)
		if err != nil {
			log.Error("export failed", "format", f, "error", err)
			job.AddError(fmt.Sprintf("%s: %s", f, err))
			hadErrors = true
			continue
		}
		job.SetArtifact(f, data)
		written++
		log.Info("wrote artifact", "format", f, "bytes", len(data))
	}

	timing.Export = time.Since(start)
	log.Info("conversion complete",
		"regions", res.Summary.Output(),
		"artifacts", written,
		"trace_ms", timing.Trace.Milliseconds(),
		"reconstruct_ms", timing.Reconstruct.Milliseconds(),
		"export_ms", timing.Export.Milliseconds(),
	)

	status := StatusCompleted
	switch {
	case hadErrors && written > 0:
		status = StatusPartial
		job.SetStatus(status, "done")
	case hadErrors:
		status = StatusFailed
		job.SetStatus(status, "exporting")
	default:
		job.SetStatus(status, "done")
	}
	w.record(timing, status, res.Summary)
}

func (w *Worker) record(timing Timing, status JobStatus, sum Summary) {
	if w.stats == nil {
		return
	}
	w.stats.Record(RunRecord{
		Timing:    timing,
		Status:    status,
		Regions:   sum.Output(),
		Discarded: sum.Discarded,
	})
}
