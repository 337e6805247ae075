package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/casa.report/internal/casa"
	"github.com/banshee-data/casa.report/internal/db"
	"github.com/banshee-data/casa.report/internal/httputil"
	"github.com/banshee-data/casa.report/internal/testutil"
	"github.com/banshee-data/casa.report/internal/tracking"
	"github.com/banshee-data/casa.report/internal/version"
)

func newTestHandler(t *testing.T) (http.Handler, *db.DB) {
	t.Helper()
	store := cloneAPITestDB(t)
	srv := NewServer(NewAnalyzer(store), 0, "UTC")
	return srv.ServeMux(), store
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := testutil.NewTestRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func analyzeBody(trajectories []casa.Trajectory) map[string]any {
	return map[string]any{"filename": "sample.json", "trajectories": trajectories}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	rec := serve(h, testutil.NewTestRequest(http.MethodGet, "/api/v1/health"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got HealthResponse
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, HealthResponse{Status: "ok", Version: version.Version, GitSHA: version.GitSHA}, got)
}

func TestAnalyze_CreatesAndStores(t *testing.T) {
	t.Parallel()
	h, store := newTestHandler(t)

	body := analyzeBody(testutil.MixedPopulation(3))
	body["filename"] = "../uploads/run 1.json"
	rec := serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/analyze", body))
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var created db.Analysis
	testutil.DecodeJSON(t, rec, &created)
	require.NotEmpty(t, created.JobID)
	assert.Equal(t, db.StatusCompleted, created.Status)
	assert.Equal(t, "run_1.json", created.Filename)
	assert.Equal(t, casa.DefaultParams(), created.Params)
	require.NotNil(t, created.Report)
	assert.Equal(t, 7, created.Report.Count)
	assert.Equal(t, 3, created.Report.Motility.ProgressiveCount)
	assert.Equal(t, 3, created.Report.Motility.ImmotileCount)
	assert.Equal(t, 1, created.Report.Motility.IndeterminateCount)

	stored, err := store.Analysis(context.Background(), created.JobID)
	require.NoError(t, err)
	assert.Equal(t, "run_1.json", stored.Filename)

	rec = serve(h, testutil.NewTestRequest(http.MethodGet, "/api/v1/analyses/"+created.JobID))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var fetched db.Analysis
	testutil.DecodeJSON(t, rec, &fetched)
	if diff := cmp.Diff(created.Report, fetched.Report); diff != "" {
		t.Errorf("fetched report mismatch (-created +fetched):\n%s", diff)
	}
}

func TestAnalyze_BareArrayAndEmptyPopulation(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(`[]`))
	rec := serve(h, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)

	var created db.Analysis
	testutil.DecodeJSON(t, rec, &created)
	assert.Equal(t, 0, created.Report.Count)
	assert.Zero(t, created.Report.ConcentrationPerML)
	assert.Empty(t, created.Filename)
}

func TestAnalyze_ParamsOverride(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	body := analyzeBody([]casa.Trajectory{testutil.StationaryTrack("a", 5, 1, 1)})
	body["params"] = map[string]any{"dilution_factor": 4, "fields_analyzed": 2}
	rec := serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/analyze", body))
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)

	var created db.Analysis
	testutil.DecodeJSON(t, rec, &created)
	assert.Equal(t, 4.0, created.Params.DilutionFactor)
	assert.Equal(t, 2, created.Params.FieldsAnalyzed)
	assert.Equal(t, casa.DefaultFrameRate, created.Params.FrameRate)
	assert.InDelta(t, casa.ConcentrationPerML(1, created.Params), created.Report.ConcentrationPerML, 1e-6)
}

func TestAnalyze_ValidationErrors(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	outOfOrder := casa.Trajectory{ID: "late", Samples: []casa.Sample{{Frame: 2}, {Frame: 1}}}
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
		wantTrack  string
	}{
		{
			name:       "malformed json",
			body:       `{"trajectories": [`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing trajectories",
			body:       `{"filename": "x.json"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "zero microns per pixel",
			body:       `{"params": {"microns_per_pixel": 0}, "trajectories": []}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantField:  "microns_per_pixel",
		},
		{
			name:       "negative frame rate",
			body:       `{"params": {"frame_rate": -30}, "trajectories": []}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantField:  "frame_rate",
		},
		{
			name:       "out of order samples",
			body:       mustJSON(t, analyzeBody([]casa.Trajectory{testutil.StraightTrack("ok", 3, 1), outOfOrder})),
			wantStatus: http.StatusUnprocessableEntity,
			wantTrack:  "late",
		},
		{
			name:       "duplicate id",
			body:       `{"trajectories": [{"id": 4, "samples": [{"frame": 0, "x": 0, "y": 0}]}, {"id": "4", "samples": [{"frame": 1, "x": 0, "y": 0}]}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantTrack:  "4",
		},
		{
			name:       "velocity overflow",
			body:       `{"params": {"frame_rate": 1e308}, "trajectories": [{"id": "fast", "samples": [{"frame": 0, "x": 0, "y": 0}, {"frame": 1, "x": 10, "y": 0}]}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantTrack:  "fast",
		},
		{
			name:       "concentration overflow",
			body:       `{"params": {"dilution_factor": 1e308}, "trajectories": [{"id": 1, "samples": [{"frame": 0, "x": 0, "y": 0}]}, {"id": 2, "samples": [{"frame": 0, "x": 0, "y": 0}]}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantField:  "sampled_volume",
		},
		{
			name:       "unknown morphology",
			body:       `{"trajectories": [{"id": 9, "morphology": "round", "samples": [{"frame": 0, "x": 0, "y": 0}]}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantTrack:  "9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(tt.body))
			rec := serve(h, req)
			testutil.AssertStatusCode(t, rec.Code, tt.wantStatus)

			var body httputil.ErrorBody
			testutil.DecodeJSON(t, rec, &body)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.wantField, body.Field)
			assert.Equal(t, tt.wantTrack, body.TrajectoryID)
		})
	}
}

func TestAnalyze_BodyTooLarge(t *testing.T) {
	t.Parallel()
	srv := NewServer(NewAnalyzer(cloneAPITestDB(t)), 64, "UTC")

	body := mustJSON(t, analyzeBody(testutil.MixedPopulation(2)))
	require.Greater(t, len(body), 64)
	rec := serve(srv.ServeMux(), httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(body)))
	testutil.AssertStatusCode(t, rec.Code, http.StatusRequestEntityTooLarge)

	var errBody httputil.ErrorBody
	testutil.DecodeJSON(t, rec, &errBody)
	assert.Equal(t, "request body exceeds 64 bytes", errBody.Error)
}

func TestAnalyze_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	rec := serve(h, testutil.NewTestRequest(http.MethodGet, "/api/v1/analyze"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestAnalyzeDetections(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	var frames []tracking.Frame
	for i := range 10 {
		frames = append(frames, tracking.Frame{
			Index: int64(i),
			Detections: []tracking.Detection{
				{X: float64(i) * 4, Y: 10, Morphology: casa.MorphologyNormal},
				{X: 300, Y: 300},
			},
		})
	}
	body := map[string]any{"filename": "det.json", "frames": frames}
	rec := serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/analyze/detections", body))
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)

	var created db.Analysis
	testutil.DecodeJSON(t, rec, &created)
	require.NotNil(t, created.Report)
	assert.Equal(t, 2, created.Report.Count)
	assert.Equal(t, 1, created.Report.Motility.ProgressiveCount)
	assert.Equal(t, 1, created.Report.Motility.ImmotileCount)
	assert.True(t, created.Report.Morphology.Available)
	assert.Equal(t, "det.json", created.Filename)
}

func TestAnalyzeDetections_Errors(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"malformed", `{"frames": `, http.StatusBadRequest},
		{"missing frames", `{}`, http.StatusBadRequest},
		{"decreasing frames", `{"frames": [{"frame": 3, "detections": []}, {"frame": 1, "detections": []}]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/analyze/detections", strings.NewReader(tt.body)))
			testutil.AssertStatusCode(t, rec.Code, tt.wantStatus)
		})
	}
}

func TestListAnalyses(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	for i := range 3 {
		body := analyzeBody(testutil.MixedPopulation(i + 1))
		body["filename"] = fmt.Sprintf("run-%d.json", i)
		rec := serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/analyze", body))
		testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	}

	rec := serve(h, testutil.NewTestRequest(http.MethodGet, "/api/v1/analyses"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var all []db.AnalysisSummary
	testutil.DecodeJSON(t, rec, &all)
	assert.Len(t, all, 3)

	rec = serve(h, testutil.NewTestRequest(http.MethodGet, "/api/v1/analyses?limit=2"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var limited []db.AnalysisSummary
	testutil.DecodeJSON(t, rec, &limited)
	assert.Len(t, limited, 2)

	for _, bad := range []string{"0", "-1", "abc"} {
		rec = serve(h, testutil.NewTestRequest(http.MethodGet, "/api/v1/analyses?limit="+bad))
		testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	}
}

func TestListAnalyses_EmptyIsArray(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	rec := serve(h, testutil.NewTestRequest(http.MethodGet, "/api/v1/analyses"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetAnalysis_NotFound(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	for _, path := range []string{"/api/v1/analyses/nope", "/api/v1/analyses/nope/chart"} {
		rec := serve(h, testutil.NewTestRequest(http.MethodGet, path))
		testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
	}
}

func TestAnalysisChart(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	rec := serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/analyze", analyzeBody(testutil.MixedPopulation(2))))
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	var created db.Analysis
	testutil.DecodeJSON(t, rec, &created)

	rec = serve(h, testutil.NewTestRequest(http.MethodGet, "/api/v1/analyses/"+created.JobID+"/chart"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Motility")
	assert.Contains(t, rec.Body.String(), created.JobID)
}

func TestTimestampsUseConfiguredTimezone(t *testing.T) {
	t.Parallel()
	srv := NewServer(NewAnalyzer(cloneAPITestDB(t)), 0, "Pacific/Auckland")
	h := srv.ServeMux()

	rec := serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/analyze", analyzeBody([]casa.Trajectory{})))
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	var created struct {
		JobID     string `json:"job_id"`
		Timestamp string `json:"timestamp"`
	}
	testutil.DecodeJSON(t, rec, &created)
	assert.False(t, strings.HasSuffix(created.Timestamp, "Z"), "timestamp %s should carry a +12/+13 offset", created.Timestamp)
	assert.True(t, strings.HasSuffix(created.Timestamp, "+12:00") || strings.HasSuffix(created.Timestamp, "+13:00"))
}

func TestWithoutStore(t *testing.T) {
	t.Parallel()
	h := NewServer(NewAnalyzer(nil), 0, "UTC").ServeMux()

	rec := serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/analyze", analyzeBody(testutil.MixedPopulation(1))))
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	var created db.Analysis
	testutil.DecodeJSON(t, rec, &created)
	assert.NotEmpty(t, created.JobID)
	assert.Equal(t, db.StatusCompleted, created.Status)

	rec = serve(h, testutil.NewTestRequest(http.MethodGet, "/api/v1/analyses"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

type failingStore struct{}

func (failingStore) RecordAnalysis(context.Context, *db.Analysis) error {
	return errors.New("disk full")
}

func (failingStore) Analysis(context.Context, string) (*db.Analysis, error) {
	return nil, errors.New("disk full")
}

func (failingStore) Analyses(context.Context, int) ([]db.AnalysisSummary, error) {
	return nil, errors.New("disk full")
}

func TestStoreFailures(t *testing.T) {
	t.Parallel()
	h := NewServer(NewAnalyzer(failingStore{}), 0, "UTC").ServeMux()

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{"analyze", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewBufferString(`[]`))
		}},
		{"list", func() *http.Request { return testutil.NewTestRequest(http.MethodGet, "/api/v1/analyses") }},
		{"get", func() *http.Request { return testutil.NewTestRequest(http.MethodGet, "/api/v1/analyses/x") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(h, tt.req())
			testutil.AssertStatusCode(t, rec.Code, http.StatusInternalServerError)
			assert.NotContains(t, rec.Body.String(), "disk full")
		})
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/", v)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(req.Body)
	require.NoError(t, err)
	return buf.String()
}
