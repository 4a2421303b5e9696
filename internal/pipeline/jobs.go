package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/tracecut/internal/contour"
	"github.com/dgallion1/tracecut/internal/export"
	"github.com/dgallion1/tracecut/internal/selection"
)

// JobStatus represents the state of a conversion job.
type JobStatus string

const (
	StatusQueued         JobStatus = "queued"
	StatusTracing        JobStatus = "tracing"
	StatusReconstructing JobStatus = "reconstructing"
	StatusExporting      JobStatus = "exporting"
	StatusCompleted      JobStatus = "completed"
	StatusFailed         JobStatus = "failed"
	StatusPartial        JobStatus = "partial"
	StatusCached         JobStatus = "cached"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial, StatusCached:
		return true
	}
	return false
}

// Job tracks the state of a single conversion.
type Job struct {
	mu sync.Mutex

	ID        string `json:"job_id"`
	SessionID string `json:"session_id,omitempty"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`

	Formats []export.Format `json:"formats"`
	Params  Params          `json:"params"`
	Summary Summary         `json:"summary"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData  []byte
	forest    *contour.Forest
	selection selection.State
	artifacts map[export.Format][]byte
	errors    []string
}

// NewJob creates a queued job for an uploaded image.
func NewJob(filename string, data []byte, formats []export.Format, p Params) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		Status:      StatusQueued,
		Phase:       "queued",
		Filename:    filename,
		Formats:     formats,
		Params:      p,
		ContentHash: ContentHashHex(data),
		CreatedAt:   now,
		UpdatedAt:   now,
		fileData:    data,
	}
}

// NewTracedJob creates a queued job for an already traced forest and a
// committed selection. It skips tracing.
func NewTracedJob(filename string, f *contour.Forest, sel selection.State, formats []export.Format, p Params) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		Formats:   formats,
		Params:    p,
		CreatedAt: now,
		UpdatedAt: now,
		forest:    f,
		selection: sel,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// FindReusable returns a completed job for the same image bytes and
// parameters that produced every requested format, or nil.
func (s *JobStore) FindReusable(hash string, p Params, formats []export.Format) *Job {
	if hash == "" {
		return nil
	}
	s.mu.Lock()
	candidates := make([]*Job, 0)
	for _, j := range s.jobs {
		if j.ContentHash == hash {
			candidates = append(candidates, j)
		}
	}
	s.mu.Unlock()

	key := p.Key()
	for _, j := range candidates {
		j.mu.Lock()
		ok := j.Status == StatusCompleted && j.Params.Key() == key && j.hasArtifactsLocked(formats)
		j.mu.Unlock()
		if ok {
			return j
		}
	}
	return nil
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// CurrentStatus returns the status under the lock.
func (j *Job) CurrentStatus() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.UpdatedAt = time.Now()
}

// SetSummary records the run summary.
func (j *Job) SetSummary(s Summary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Summary = s
	j.UpdatedAt = time.Now()
}

// SetArtifact stores the encoded output for one format.
func (j *Job) SetArtifact(f export.Format, data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.artifacts == nil {
		j.artifacts = make(map[export.Format][]byte)
	}
	j.artifacts[f] = data
	j.UpdatedAt = time.Now()
}

// Artifact returns the encoded output for f.
func (j *Job) Artifact(f export.Format) ([]byte, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	data, ok := j.artifacts[f]
	return data, ok
}

func (j *Job) hasArtifactsLocked(formats []export.Format) bool {
	for _, f := range formats {
		if _, ok := j.artifacts[f]; !ok {
			return false
		}
	}
	return true
}

// ReuseFrom copies the summary and artifacts of a finished job and marks
// this job cached.
func (j *Job) ReuseFrom(src *Job) {
	src.mu.Lock()
	summary := src.Summary
	artifacts := make(map[export.Format][]byte, len(src.artifacts))
	for f, data := range src.artifacts {
		artifacts[f] = data
	}
	src.mu.Unlock()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.Summary = summary
	j.artifacts = artifacts
	j.fileData = nil
	j.Status = StatusCached
	j.Phase = "done"
	j.UpdatedAt = time.Now()
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// Traced returns the forest and selection of a job created from a
// session, or nil for an upload.
func (j *Job) Traced() (*contour.Forest, selection.State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.forest, j.selection
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string          `json:"job_id"`
	SessionID string          `json:"session_id,omitempty"`
	Status    JobStatus       `json:"status"`
	Phase     string          `json:"phase"`
	Filename  string          `json:"filename"`
	Formats   []export.Format `json:"formats"`
	Artifacts []export.Format `json:"artifacts"`
	Params    Params          `json:"params"`
	Summary   Summary         `json:"summary"`
	Errors    []string        `json:"errors"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.errors...)
	skipped := append([]string{}, j.Summary.Skipped...)
	summary := j.Summary
	summary.Skipped = skipped

	artifacts := make([]export.Format, 0, len(j.artifacts))
	for f := range j.artifacts {
		artifacts = append(artifacts, f)
	}
	sort.Slice(artifacts, func(a, b int) bool { return artifacts[a] < artifacts[b] })

	return JobSnapshot{
		ID:        j.ID,
		SessionID: j.SessionID,
		Status:    j.Status,
		Phase:     j.Phase,
		Filename:  j.Filename,
		Formats:   append([]export.Format(nil), j.Formats...),
		Artifacts: artifacts,
		Params:    j.Params,
		Summary:   summary,
		Errors:    errs,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
