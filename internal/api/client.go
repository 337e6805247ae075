package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/casa.report/internal/db"
	"github.com/banshee-data/casa.report/internal/httputil"
	"github.com/banshee-data/casa.report/internal/jobfile"
)

// Client calls a remote casa-server. Non-2xx responses come back as
// *httputil.StatusError carrying the server's error body.
type Client struct {
	BaseURL string
	HTTP    httputil.HTTPClient
}

// NewClient returns a Client for baseURL using the default http.Client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    httputil.NewStandardClient(nil),
	}
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// Health returns the server's health and build info.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := httputil.DoJSON(ctx, c.HTTP, http.MethodGet, c.url("/api/v1/health"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analyze submits a trajectory job.
func (c *Client) Analyze(ctx context.Context, job *jobfile.Job) (*db.Analysis, error) {
	var out db.Analysis
	if err := httputil.DoJSON(ctx, c.HTTP, http.MethodPost, c.url("/api/v1/analyze"), job, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeDetections submits a detection job for server-side linking.
func (c *Client) AnalyzeDetections(ctx context.Context, job *jobfile.DetectionJob) (*db.Analysis, error) {
	var out db.Analysis
	if err := httputil.DoJSON(ctx, c.HTTP, http.MethodPost, c.url("/api/v1/analyze/detections"), job, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analysis fetches a stored job.
func (c *Client) Analysis(ctx context.Context, jobID string) (*db.Analysis, error) {
	var out db.Analysis
	if err := httputil.DoJSON(ctx, c.HTTP, http.MethodGet, c.url("/api/v1/analyses/"+url.PathEscape(jobID)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
