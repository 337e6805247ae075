package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/banshee-data/casa.report/internal/casa"
	"github.com/banshee-data/casa.report/internal/db"
	"github.com/banshee-data/casa.report/internal/httputil"
	"github.com/banshee-data/casa.report/internal/jobfile"
	"github.com/banshee-data/casa.report/internal/plotting"
	"github.com/banshee-data/casa.report/internal/tracking"
	"github.com/banshee-data/casa.report/internal/units"
	"github.com/banshee-data/casa.report/internal/version"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, HealthResponse{
		Status:  "ok",
		Version: version.Version,
		GitSHA:  version.GitSHA,
	})
}

// readBody reads the request body up to the configured limit. It writes
// the error response itself and reports whether the caller may continue.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.RequestEntityTooLarge(w, tooLarge.Limit)
			return nil, false
		}
		httputil.BadRequest(w, fmt.Sprintf("failed to read request body: %v", err))
		return nil, false
	}
	return body, true
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	job, err := jobfile.ParseJSON(body)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	rec, err := s.analyzer.Analyze(r.Context(), job)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	httputil.WriteJSONCreated(w, s.present(rec))
}

func (s *Server) handleAnalyzeDetections(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	job, err := jobfile.ParseDetectionsJSON(body)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	rec, err := s.analyzer.AnalyzeDetections(r.Context(), job)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	httputil.WriteJSONCreated(w, s.present(rec))
}

// writeAnalysisError maps validation failures to 422 and everything else
// to 500.
func (s *Server) writeAnalysisError(w http.ResponseWriter, err error) {
	var (
		paramErr *casa.ParameterError
		trajErr  *casa.TrajectoryError
	)
	switch {
	case errors.As(err, &paramErr):
		httputil.UnprocessableEntity(w, httputil.ErrorBody{Error: err.Error(), Field: paramErr.Field})
	case errors.As(err, &trajErr):
		httputil.UnprocessableEntity(w, httputil.ErrorBody{Error: err.Error(), TrajectoryID: string(trajErr.ID)})
	case errors.Is(err, tracking.ErrInvalidFrames):
		httputil.UnprocessableEntity(w, httputil.ErrorBody{Error: err.Error()})
	default:
		logf("analysis failed: %v", err)
		httputil.InternalServerError(w, "analysis failed")
	}
}

// present converts the stored timestamp to the display timezone.
func (s *Server) present(a *db.Analysis) *db.Analysis {
	out := *a
	if t, err := units.ConvertTime(a.CreatedAt, s.timezone); err == nil {
		out.CreatedAt = t
	}
	return &out
}

func (s *Server) store(w http.ResponseWriter) (Store, bool) {
	if s.analyzer.Store == nil {
		httputil.NotFound(w, "report store is not configured")
		return nil, false
	}
	return s.analyzer.Store, true
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w)
	if !ok {
		return
	}

	limit := db.DefaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	summaries, err := store.Analyses(r.Context(), limit)
	if err != nil {
		logf("failed to list analyses: %v", err)
		httputil.InternalServerError(w, "failed to list analyses")
		return
	}
	for i := range summaries {
		if t, err := units.ConvertTime(summaries[i].CreatedAt, s.timezone); err == nil {
			summaries[i].CreatedAt = t
		}
	}
	httputil.WriteJSONOK(w, summaries)
}

// lookup fetches the analysis named by the {id} path value, writing 404 or
// 500 on failure.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*db.Analysis, bool) {
	store, ok := s.store(w)
	if !ok {
		return nil, false
	}
	id := r.PathValue("id")
	a, err := store.Analysis(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("analysis %q not found", id))
		return nil, false
	}
	if err != nil {
		logf("failed to load analysis %s: %v", id, err)
		httputil.InternalServerError(w, "failed to load analysis")
		return nil, false
	}
	return a, true
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, s.present(a))
}

func (s *Server) handleAnalysisChart(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}

	subtitle := a.JobID
	if a.Filename != "" {
		subtitle = a.Filename + " (" + a.JobID + ")"
	}
	var buf bytes.Buffer
	if err := plotting.WriteDashboard(&buf, a.Report, subtitle); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
