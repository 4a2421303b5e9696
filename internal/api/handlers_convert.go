package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/tracecut/internal/export"
	"github.com/dgallion1/tracecut/internal/pipeline"
	"github.com/dgallion1/tracecut/internal/region"
	"github.com/dgallion1/tracecut/internal/report"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true,
	".tif": true, ".tiff": true, ".webp": true,
}

// upload is a parsed conversion request.
type upload struct {
	filename string
	data     []byte
	params   pipeline.Params
	formats  []export.Format
}

// readUpload parses the multipart form shared by /api/convert and
// /api/sessions. It writes the error response itself and returns false
// on failure.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (upload, bool) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return upload{}, false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return upload{}, false
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !imageExtensions[strings.ToLower(filepath.Ext(filename))] {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return upload{}, false
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return upload{}, false
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return upload{}, false
	}

	params, err := parseParams(r, s.orchestrator.Defaults())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return upload{}, false
	}
	formats, err := parseFormats(r.FormValue("formats"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return upload{}, false
	}
	return upload{filename: filename, data: data, params: params, formats: formats}, true
}

// parseParams overrides defaults with any trace parameters present in the
// form and validates the result.
func parseParams(r *http.Request, p pipeline.Params) (pipeline.Params, error) {
	floats := []struct {
		key string
		dst *float64
	}{
		{"simplify_factor", &p.SimplifyFactor},
		{"area_min_noise", &p.AreaMinNoise},
		{"length_min_noise", &p.LengthMinNoise},
		{"duplicate_ratio", &p.DuplicateRatio},
		{"scale", &p.Scale},
		{"extrusion_height", &p.ExtrusionHeight},
	}
	for _, f := range floats {
		v := r.FormValue(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("invalid %s: %q", f.key, v)
		}
		*f.dst = n
	}
	if v := r.FormValue("mask_mode"); v != "" {
		p.MaskMode = v
	}
	if v := r.FormValue("policy"); v != "" {
		policy, err := region.ParsePolicy(v)
		if err != nil {
			return p, err
		}
		p.Policy = policy
	}
	if v := r.FormValue("svg_fill"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("invalid svg_fill: %q", v)
		}
		p.SVGFill = b
	}
	return p, p.Validate()
}

// parseFormats reads a comma separated format list. Empty means all.
func parseFormats(v string) ([]export.Format, error) {
	if strings.TrimSpace(v) == "" {
		return append([]export.Format(nil), export.Formats...), nil
	}
	seen := make(map[export.Format]bool)
	var out []export.Format
	for _, part := range strings.Split(v, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := export.ParseFormat(part)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no output formats requested")
	}
	return out, nil
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	job := pipeline.NewJob(up.filename, up.data, up.formats, up.params)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   snap.ID,
		"status":   snap.Status,
		"formats":  snap.Formats,
		"poll_url": fmt.Sprintf("/api/jobs/%s", snap.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, ok := job.Artifact(format)
	if !ok {
		if !job.CurrentStatus().Done() {
			jsonError(w, "job still running", http.StatusConflict)
			return
		}
		jsonError(w, fmt.Sprintf("no %s artifact for this job", format), http.StatusNotFound)
		return
	}

	base := strings.TrimSuffix(job.Filename, filepath.Ext(job.Filename))
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+"."+string(format)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	run := report.FromJob(job.Snapshot())

	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write(report.Markdown(run))
		return
	}
	page, err := report.HTML(run)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
