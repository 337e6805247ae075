// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/casa.report/internal/casa"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewJSONRequest creates a test HTTP request with v encoded as the body.
func NewJSONRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// DecodeJSON decodes a recorder body into v, failing the test on error.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// StraightTrack returns a trajectory moving dx pixels per frame along x,
// starting at frame 0.
func StraightTrack(id string, samples int, dx float64) casa.Trajectory {
	s := make([]casa.Sample, samples)
	for i := range s {
		s[i] = casa.Sample{Frame: int64(i), X: float64(i) * dx, Y: 0}
	}
	return casa.Trajectory{ID: casa.TrackID(id), Samples: s}
}

// StationaryTrack returns a trajectory that stays at (x, y).
func StationaryTrack(id string, samples int, x, y float64) casa.Trajectory {
	s := make([]casa.Sample, samples)
	for i := range s {
		s[i] = casa.Sample{Frame: int64(i), X: x, Y: y}
	}
	return casa.Trajectory{ID: casa.TrackID(id), Samples: s}
}

// MixedPopulation returns n progressive, n immotile and one single-sample
// (indeterminate) trajectory, with alternating morphology labels on the
// progressive tracks.
func MixedPopulation(n int) []casa.Trajectory {
	var out []casa.Trajectory
	for i := range n {
		tr := StraightTrack(fmt.Sprintf("fast-%d", i), 31, 3)
		if i%2 == 0 {
			tr.Morphology = casa.MorphologyNormal
		} else {
			tr.Morphology = casa.MorphologyAbnormal
		}
		out = append(out, tr)
	}
	for i := range n {
		out = append(out, StationaryTrack(fmt.Sprintf("still-%d", i), 31, 50, 50))
	}
	out = append(out, casa.Trajectory{
		ID:      "dot",
		Samples: []casa.Sample{{Frame: 0, X: 1, Y: 1}},
	})
	return out
}
