package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/casa.report/internal/casa"
)

// ErrNotFound is returned when no analysis has the requested job id.
var ErrNotFound = errors.New("analysis not found")

// StatusCompleted is the only status a stored analysis can have: failed
// jobs are rejected before anything is written.
const StatusCompleted = "completed"

// Analyses list limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// Analysis is one stored job with its full report.
type Analysis struct {
	JobID     string       `json:"job_id"`
	Filename  string       `json:"filename"`
	CreatedAt time.Time    `json:"timestamp"`
	Status    string       `json:"status"`
	Params    casa.Params  `json:"params"`
	Report    *casa.Report `json:"report"`
}

// AnalysisSummary is the list view of a stored job, read from the
// denormalised columns without decoding the report.
type AnalysisSummary struct {
	JobID               string    `json:"job_id"`
	Filename            string    `json:"filename"`
	CreatedAt           time.Time `json:"timestamp"`
	Count               int       `json:"count"`
	ConcentrationPerML  float64   `json:"concentration_per_ml"`
	ProgressiveCount    int       `json:"progressive_count"`
	NonProgressiveCount int       `json:"non_progressive_count"`
	ImmotileCount       int       `json:"immotile_count"`
	IndeterminateCount  int       `json:"indeterminate_count"`
	MeanVCL             float64   `json:"mean_vcl_um_s"`
	MeanVSL             float64   `json:"mean_vsl_um_s"`
	MeanVAP             float64   `json:"mean_vap_um_s"`
	MeanLIN             float64   `json:"linearity_percent"`
	ProcessingTimeS     float64   `json:"processing_time_s"`
}

// RecordAnalysis stores a completed analysis. A missing JobID is filled
// with a new UUID, a zero CreatedAt with the current time; the Status is
// always set to completed. a is updated in place.
func (db *DB) RecordAnalysis(ctx context.Context, a *Analysis) error {
	if a.Report == nil {
		return errors.New("analysis has no report")
	}
	if a.JobID == "" {
		a.JobID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.Status = StatusCompleted

	reportJSON, err := json.Marshal(a.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	paramsJSON, err := json.Marshal(a.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}

	r := a.Report
	_, err = db.ExecContext(ctx, `
		INSERT INTO analyses (
			job_id, filename, created_at, count, concentration_per_ml,
			progressive_count, non_progressive_count, immotile_count, indeterminate_count,
			mean_vcl, mean_vsl, mean_vap, mean_lin, processing_time_s,
			report_json, params_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.JobID, a.Filename, a.CreatedAt.UnixNano(), r.Count, r.ConcentrationPerML,
		r.Motility.ProgressiveCount, r.Motility.NonProgressiveCount, r.Motility.ImmotileCount, r.Motility.IndeterminateCount,
		r.Velocity.MeanVCL, r.Velocity.MeanVSL, r.Velocity.MeanVAP, r.Linearity, r.ProcessingTimeSeconds,
		string(reportJSON), string(paramsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis %s: %w", a.JobID, err)
	}
	logf("recorded analysis %s (%d trajectories)", a.JobID, r.Count)
	return nil
}

// Analysis returns the stored analysis with the given job id, or
// ErrNotFound.
func (db *DB) Analysis(ctx context.Context, jobID string) (*Analysis, error) {
	var (
		a                      Analysis
		createdAt              int64
		reportJSON, paramsJSON string
	)
	err := db.QueryRowContext(ctx, `
		SELECT job_id, filename, created_at, report_json, params_json
		FROM analyses WHERE job_id = ?`, jobID,
	).Scan(&a.JobID, &a.Filename, &createdAt, &reportJSON, &paramsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis %s: %w", jobID, err)
	}

	a.CreatedAt = time.Unix(0, createdAt).UTC()
	a.Status = StatusCompleted
	a.Report = &casa.Report{}
	if err := json.Unmarshal([]byte(reportJSON), a.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", jobID, err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &a.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params %s: %w", jobID, err)
	}
	return &a, nil
}

// Analyses returns the most recent analyses, newest first. limit <= 0
// uses DefaultListLimit; larger values are capped at MaxListLimit.
func (db *DB) Analyses(ctx context.Context, limit int) ([]AnalysisSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	rows, err := db.QueryContext(ctx, `
		SELECT job_id, filename, created_at, count, concentration_per_ml,
			progressive_count, non_progressive_count, immotile_count, indeterminate_count,
			mean_vcl, mean_vsl, mean_vap, mean_lin, processing_time_s
		FROM analyses
		ORDER BY created_at DESC, job_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	summaries := []AnalysisSummary{}
	for rows.Next() {
		var (
			s         AnalysisSummary
			createdAt int64
		)
		if err := rows.Scan(
			&s.JobID, &s.Filename, &createdAt, &s.Count, &s.ConcentrationPerML,
			&s.ProgressiveCount, &s.NonProgressiveCount, &s.ImmotileCount, &s.IndeterminateCount,
			&s.MeanVCL, &s.MeanVSL, &s.MeanVAP, &s.MeanLIN, &s.ProcessingTimeS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		s.CreatedAt = time.Unix(0, createdAt).UTC()
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
