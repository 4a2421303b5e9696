package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/dgallion1/tracecut/internal/config"
	"github.com/dgallion1/tracecut/internal/contour"
	"github.com/dgallion1/tracecut/internal/pipeline"
)

const testKey = "secret"

type fakeTracer struct {
	err error
}

func (f *fakeTracer) Trace(ctx context.Context, data []byte, mode string) (*contour.Forest, error) {
	if f.err != nil {
		return nil, f.err
	}
	sq := func(x, y, s float64) orb.Ring {
		return orb.Ring{{x, y}, {x + s, y}, {x + s, y + s}, {x, y + s}}
	}
	forest, err := contour.New([]orb.Ring{sq(0, 0, 100), sq(30, 30, 40)}, []int{contour.None, 0})
	if err != nil {
		return nil, err
	}
	forest.Width, forest.Height = 120, 120
	return forest, nil
}

func testConfig() config.Config {
	return config.Config{
		TracecutAPIKey:  testKey,
		WorkerCount:     1,
		MaxQueueSize:    4,
		MaxUploadBytes:  1 << 20,
		JobTTL:          time.Hour,
		SessionTTL:      time.Hour,
		MaskMode:        "threshold",
		SimplifyFactor:  0.001,
		AreaMinNoise:    10,
		LengthMinNoise:  15,
		DuplicateRatio:  0.85,
		PixelScale:      0.15,
		ExtrusionHeight: 4,
		Policy:          "nested",
	}
}

func newTestServer(t *testing.T, tracer pipeline.Tracer) *Server {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	cfg := testConfig()
	orch := pipeline.NewOrchestrator(cfg, tracer, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)
	return NewServer(orch, log, cfg)
}

func multipartBody(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("fake image bytes"))
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, s *Server, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func waitForJob(t *testing.T, s *Server, id string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec := do(t, s, http.MethodGet, "/api/jobs/"+id, nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
		}
		snap := decode(t, rec)
		if pipeline.JobStatus(snap["status"].(string)).Done() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestHealth_NoAuth(t *testing.T) {
	s := newTestServer(t, &fakeTracer{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, &fakeTracer{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/runs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header: expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats/runs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", rec.Code)
	}
	if decode(t, rec)["error"] != "invalid api key" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	if rec := do(t, s, http.MethodGet, "/api/stats/runs", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("valid key: expected 200, got %d", rec.Code)
	}
}

func TestConvert_EndToEnd(t *testing.T) {
	s := newTestServer(t, &fakeTracer{})

	body, ct := multipartBody(t, "part.png", map[string]string{"formats": "svg,dxf,stl", "scale": "0.5"})
	rec := do(t, s, http.MethodPost, "/api/convert", body, ct)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	id := decode(t, rec)["job_id"].(string)

	snap := waitForJob(t, s, id)
	if snap["status"] != string(pipeline.StatusCompleted) {
		t.Fatalf("expected completed, got %v (%v)", snap["status"], snap["errors"])
	}
	summary := snap["summary"].(map[string]any)
	if summary["reconstructed"].(float64) != 1 || summary["holes"].(float64) != 1 {
		t.Errorf("unexpected summary %v", summary)
	}
	if snap["params"].(map[string]any)["scale"].(float64) != 0.5 {
		t.Errorf("scale override not applied: %v", snap["params"])
	}

	art := do(t, s, http.MethodGet, "/api/jobs/"+id+"/artifacts/svg", nil, "")
	if art.Code != http.StatusOK {
		t.Fatalf("artifact: %d %s", art.Code, art.Body.String())
	}
	if art.Header().Get("Content-Type") != "image/svg+xml" {
		t.Errorf("unexpected content type %q", art.Header().Get("Content-Type"))
	}
	if !strings.Contains(art.Header().Get("Content-Disposition"), `"part.svg"`) {
		t.Errorf("unexpected disposition %q", art.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(art.Body.String(), "<svg") {
		t.Error("artifact is not svg")
	}

	stl := do(t, s, http.MethodGet, "/api/jobs/"+id+"/artifacts/STL", nil, "")
	if stl.Code != http.StatusOK || stl.Body.Len() == 0 {
		t.Errorf("stl artifact: %d", stl.Code)
	}

	if rec := do(t, s, http.MethodGet, "/api/jobs/"+id+"/artifacts/pdf", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format: expected 400, got %d", rec.Code)
	}

	page := do(t, s, http.MethodGet, "/api/jobs/"+id+"/report", nil, "")
	if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), "<table>") {
		t.Errorf("report: %d %s", page.Code, page.Body.String())
	}
	md := do(t, s, http.MethodGet, "/api/jobs/"+id+"/report?format=md", nil, "")
	if !strings.Contains(md.Body.String(), "# Run report: part.png") {
		t.Errorf("markdown report: %s", md.Body.String())
	}

	stats := decode(t, do(t, s, http.MethodGet, "/api/stats/runs", nil, ""))
	if stats["stats"].(map[string]any)["runs"].(float64) != 1 {
		t.Errorf("unexpected stats %v", stats)
	}
}

func TestConvert_ReusesResult(t *testing.T) {
	s := newTestServer(t, &fakeTracer{})

	body, ct := multipartBody(t, "a.png", map[string]string{"formats": "svg"})
	first := decode(t, do(t, s, http.MethodPost, "/api/convert", body, ct))["job_id"].(string)
	waitForJob(t, s, first)

	body, ct = multipartBody(t, "b.png", map[string]string{"formats": "svg"})
	rec := do(t, s, http.MethodPost, "/api/convert", body, ct)
	if got := decode(t, rec)["status"]; got != string(pipeline.StatusCached) {
		t.Errorf("expected cached, got %v", got)
	}
}

func TestConvert_BadRequests(t *testing.T) {
	s := newTestServer(t, &fakeTracer{})

	cases := []struct {
		name     string
		filename string
		fields   map[string]string
	}{
		{"no file", "", nil},
		{"unsupported type", "notes.txt", nil},
		{"bad format", "a.png", map[string]string{"formats": "svg,pdf"}},
		{"bad float", "a.png", map[string]string{"simplify_factor": "abc"}},
		{"bad policy", "a.png", map[string]string{"policy": "sideways"}},
		{"bad ratio", "a.png", map[string]string{"duplicate_ratio": "1.5"}},
		{"bad mask", "a.png", map[string]string{"mask_mode": "blue"}},
		{"bad height", "a.png", map[string]string{"extrusion_height": "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := multipartBody(t, tc.filename, tc.fields)
			rec := do(t, s, http.MethodPost, "/api/convert", body, ct)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestConvert_TraceFailure(t *testing.T) {
	s := newTestServer(t, &fakeTracer{err: errors.New("cannot decode")})

	body, ct := multipartBody(t, "a.png", nil)
	id := decode(t, do(t, s, http.MethodPost, "/api/convert", body, ct))["job_id"].(string)
	snap := waitForJob(t, s, id)
	if snap["status"] != string(pipeline.StatusFailed) {
		t.Errorf("expected failed, got %v", snap["status"])
	}
	if rec := do(t, s, http.MethodGet, "/api/jobs/"+id+"/artifacts/svg", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing artifact, got %d", rec.Code)
	}
}

func TestJobs_NotFound(t *testing.T) {
	s := newTestServer(t, &fakeTracer{})
	for _, path := range []string{"/api/jobs/nope", "/api/jobs/nope/artifacts/svg", "/api/jobs/nope/report"} {
		if rec := do(t, s, http.MethodGet, path, nil, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestSessions_ToggleCommit(t *testing.T) {
	s := newTestServer(t, &fakeTracer{})

	body, ct := multipartBody(t, "plate.png", map[string]string{"formats": "dxf"})
	rec := do(t, s, http.MethodPost, "/api/sessions", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	opened := decode(t, rec)
	id := opened["session_id"].(string)
	if n := len(opened["contours"].([]any)); n != 2 {
		t.Fatalf("expected 2 contours, got %d", n)
	}

	rec = do(t, s, http.MethodPost, "/api/sessions/"+id+"/toggle/1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: %d %s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["active"].(float64) != 1 {
		t.Errorf("expected 1 active after toggle: %s", rec.Body.String())
	}
	if rec := do(t, s, http.MethodPost, "/api/sessions/"+id+"/toggle/9", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown contour: expected 404, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/sessions/"+id+"/toggle/x", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad contour id: expected 400, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/api/sessions/"+id+"/commit", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("commit: %d %s", rec.Code, rec.Body.String())
	}
	jobID := decode(t, rec)["job_id"].(string)
	snap := waitForJob(t, s, jobID)
	if snap["status"] != string(pipeline.StatusCompleted) {
		t.Fatalf("expected completed, got %v", snap["status"])
	}
	if snap["summary"].(map[string]any)["holes"].(float64) != 0 {
		t.Errorf("toggled hole was reconstructed: %v", snap["summary"])
	}

	got := decode(t, do(t, s, http.MethodGet, "/api/sessions/"+id, nil, ""))
	if got["status"] != string(pipeline.SessionCommitted) || got["job_id"] != jobID {
		t.Errorf("unexpected session %v", got)
	}
	if rec := do(t, s, http.MethodPost, "/api/sessions/"+id+"/commit", nil, ""); rec.Code != http.StatusConflict {
		t.Errorf("second commit: expected 409, got %d", rec.Code)
	}
}

func TestSessions_Discard(t *testing.T) {
	s := newTestServer(t, &fakeTracer{})

	body, ct := multipartBody(t, "plate.png", nil)
	id := decode(t, do(t, s, http.MethodPost, "/api/sessions", body, ct))["session_id"].(string)

	if rec := do(t, s, http.MethodDelete, "/api/sessions/"+id, nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("discard: expected 204, got %d", rec.Code)
	}
	got := decode(t, do(t, s, http.MethodGet, "/api/sessions/"+id, nil, ""))
	if got["status"] != string(pipeline.SessionDiscarded) {
		t.Errorf("expected discarded, got %v", got["status"])
	}
	if rec := do(t, s, http.MethodGet, "/api/sessions/missing", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestSessions_TraceFailure(t *testing.T) {
	s := newTestServer(t, &fakeTracer{err: errors.New("cannot decode")})
	body, ct := multipartBody(t, "a.png", nil)
	if rec := do(t, s, http.MethodPost, "/api/sessions", body, ct); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd.png": "passwd.png",
		"a..b.png":             "a_b.png",
		"":                     "unnamed",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
