package pipeline

import (
	"testing"
	"time"

	"github.com/dgallion1/tracecut/internal/export"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_DifferentInputs(t *testing.T) {
	h1 := ContentHashHex([]byte("aaa"))
	h2 := ContentHashHex([]byte("bbb"))
	if h1 == h2 {
		t.Error("expected different hashes for different inputs")
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestNewJob_Fields(t *testing.T) {
	job := NewJob("logo.png", []byte("png"), []export.Format{export.FormatSVG}, DefaultParams())
	if job.ID == "" {
		t.Error("expected a job id")
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	if job.ContentHash != ContentHashHex([]byte("png")) {
		t.Errorf("unexpected content hash %q", job.ContentHash)
	}
	if f, sel := job.Traced(); f != nil || sel != nil {
		t.Error("upload job should not carry a forest")
	}

	other := NewJob("logo.png", []byte("png"), nil, DefaultParams())
	if other.ID == job.ID {
		t.Error("expected distinct job ids")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusTracing, "tracing image"},
		{StatusReconstructing, "building regions"},
		{StatusExporting, "writing artifacts"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJobStatus_Done(t *testing.T) {
	for _, s := range []JobStatus{StatusCompleted, StatusFailed, StatusPartial, StatusCached} {
		if !s.Done() {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []JobStatus{StatusQueued, StatusTracing, StatusReconstructing, StatusExporting} {
		if s.Done() {
			t.Errorf("%q should not be terminal", s)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("trace failed")
	job.AddError("dxf failed")

	snap := job.Snapshot()
	if len(snap.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Errors))
	}
	if snap.Errors[0] != "trace failed" {
		t.Errorf("expected first error %q, got %q", "trace failed", snap.Errors[0])
	}
}

func TestJob_Artifacts(t *testing.T) {
	job := &Job{ID: "art-test", UpdatedAt: time.Now()}
	if _, ok := job.Artifact(export.FormatSVG); ok {
		t.Fatal("expected no artifact before SetArtifact")
	}
	job.SetArtifact(export.FormatSTL, []byte("solid"))
	job.SetArtifact(export.FormatDXF, []byte("0\nEOF\n"))

	data, ok := job.Artifact(export.FormatSTL)
	if !ok || string(data) != "solid" {
		t.Errorf("unexpected artifact %q", data)
	}

	snap := job.Snapshot()
	if len(snap.Artifacts) != 2 || snap.Artifacts[0] != export.FormatDXF || snap.Artifacts[1] != export.FormatSTL {
		t.Errorf("expected sorted [dxf stl], got %v", snap.Artifacts)
	}
}

func TestJob_FileData(t *testing.T) {
	job := &Job{ID: "data-test"}
	data := []byte("file content here")
	job.SetFileData(data)
	got := job.FileData()
	if string(got) != string(data) {
		t.Errorf("expected file data %q, got %q", data, got)
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if snap.Artifacts == nil {
		t.Error("expected non-nil artifacts slice in snapshot")
	}
	if snap.Summary.Skipped == nil {
		t.Error("expected non-nil skipped slice in snapshot")
	}
}

func TestJob_ReuseFrom(t *testing.T) {
	src := &Job{ID: "src", UpdatedAt: time.Now()}
	src.SetSummary(Summary{RawContours: 4, Reconstructed: 1})
	src.SetArtifact(export.FormatSVG, []byte("<svg/>"))

	dst := NewJob("again.png", []byte("img"), []export.Format{export.FormatSVG}, DefaultParams())
	dst.ReuseFrom(src)

	snap := dst.Snapshot()
	if snap.Status != StatusCached {
		t.Errorf("expected status %q, got %q", StatusCached, snap.Status)
	}
	if snap.Summary.RawContours != 4 {
		t.Errorf("expected copied summary, got %+v", snap.Summary)
	}
	if data, ok := dst.Artifact(export.FormatSVG); !ok || string(data) != "<svg/>" {
		t.Errorf("expected copied artifact, got %q", data)
	}
	if dst.FileData() != nil {
		t.Error("expected file data to be released")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_FindReusable(t *testing.T) {
	store := NewJobStore(time.Hour)
	p := DefaultParams()
	svg := []export.Format{export.FormatSVG}

	done := NewJob("a.png", []byte("same"), svg, p)
	done.SetArtifact(export.FormatSVG, []byte("<svg/>"))
	done.SetStatus(StatusCompleted, "done")
	store.Put(done)

	if got := store.FindReusable(ContentHashHex([]byte("same")), p, svg); got != done {
		t.Errorf("expected completed job to be reusable, got %v", got)
	}

	other := p
	other.SimplifyFactor = 0.01
	if got := store.FindReusable(done.ContentHash, other, svg); got != nil {
		t.Error("different params must not reuse")
	}
	if got := store.FindReusable(done.ContentHash, p, []export.Format{export.FormatSTL}); got != nil {
		t.Error("missing format must not reuse")
	}
	if got := store.FindReusable(ContentHashHex([]byte("different")), p, svg); got != nil {
		t.Error("different image must not reuse")
	}
	if got := store.FindReusable("", p, svg); got != nil {
		t.Error("empty hash must not reuse")
	}

	running := NewJob("b.png", []byte("running"), svg, p)
	running.SetStatus(StatusExporting, "exporting")
	store.Put(running)
	if got := store.FindReusable(running.ContentHash, p, svg); got != nil {
		t.Error("unfinished job must not reuse")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", UpdatedAt: time.Now()}
	store.Put(expired)

	time.Sleep(100 * time.Millisecond)

	fresh := &Job{ID: "new", UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	store.Cleanup()
}
