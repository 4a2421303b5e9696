package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/tracecut/internal/config"
	"github.com/dgallion1/tracecut/internal/contour"
	"github.com/dgallion1/tracecut/internal/export"
	"github.com/dgallion1/tracecut/internal/selection"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("pipeline stopped")

// Orchestrator manages the conversion pipeline.
type Orchestrator struct {
	jobs     *JobStore
	sessions *SessionStore
	queue    chan *Job
	tracer   Tracer
	stats    *RunStats
	log      *slog.Logger
	cfg      config.Config

	mu      sync.RWMutex
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, tracer Tracer, log *slog.Logger) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		sessions: NewSessionStore(cfg.SessionTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		tracer:   tracer,
		stats:    NewRunStats(time.Hour),
		log:      log,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	context.AfterFunc(ctx, o.cancel)
	workerCtx := o.ctx

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.tracer, o.stats, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job and session cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
				o.sessions.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline. Open sessions expire.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.mu.Lock()
	if !o.stopped {
		o.stopped = true
		close(o.queue)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// Submit queues a new job for processing. A completed job for the same
// image and parameters is reused instead and the new job is marked cached.
func (o *Orchestrator) Submit(job *Job) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.stopped {
		job.SetStatus(StatusFailed, "stopped")
		return ErrStopped
	}

	if prev := o.jobs.FindReusable(job.ContentHash, job.Params, job.Formats); prev != nil {
		job.ReuseFrom(prev)
		o.jobs.Put(job)
		o.log.Info("reused previous result", "job_id", job.ID, "source_job_id", prev.ID)
		return nil
	}

	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// OpenSession traces an image and starts an interactive selection over its
// contours. The initial selection is the noise filter's.
func (o *Orchestrator) OpenSession(ctx context.Context, filename string, data []byte, p Params, formats []export.Format) (*Session, error) {
	f, err := o.tracer.Trace(ctx, data, p.MaskMode)
	if err != nil {
		return nil, err
	}
	return o.StartSession(filename, f, p, formats)
}

// StartSession starts a selection session over an already traced forest.
func (o *Orchestrator) StartSession(filename string, f *contour.Forest, p Params, formats []export.Format) (*Session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.stopped {
		return nil, ErrStopped
	}

	sess := newSession(filename, f, p, formats)
	ctx, cancel := context.WithCancel(o.ctx)
	sess.cancel = cancel
	o.sessions.Put(sess)

	log := o.log.With("session_id", sess.ID)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		sess.run(ctx, func(state selection.State) (string, error) {
			job := NewTracedJob(filename, f, state, formats, p)
			job.SessionID = sess.ID
			if err := o.Submit(job); err != nil {
				return "", err
			}
			log.Info("session committed", "job_id", job.ID, "active", state.Count())
			return job.ID, nil
		})
	}()
	log.Info("session opened", "contours", f.Len())
	return sess, nil
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// GetSession returns a session by ID.
func (o *Orchestrator) GetSession(id string) *Session {
	return o.sessions.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Stats returns rolling run latency statistics.
func (o *Orchestrator) Stats() StatsSnapshot {
	return o.stats.Snapshot()
}

// Defaults returns the configured trace parameters.
func (o *Orchestrator) Defaults() Params {
	return ParamsFromConfig(o.cfg)
}
