package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/casa.report/internal/casa"
	"github.com/banshee-data/casa.report/internal/config"
	"github.com/banshee-data/casa.report/internal/db"
	"github.com/banshee-data/casa.report/internal/jobfile"
	"github.com/banshee-data/casa.report/internal/security"
	"github.com/banshee-data/casa.report/internal/tracking"
)

// Store persists completed analyses. *db.DB implements it.
type Store interface {
	RecordAnalysis(ctx context.Context, a *db.Analysis) error
	Analysis(ctx context.Context, jobID string) (*db.Analysis, error)
	Analyses(ctx context.Context, limit int) ([]db.AnalysisSummary, error)
}

// Analyzer runs jobs through the engine and records the results. It is
// shared by the HTTP and gRPC surfaces.
type Analyzer struct {
	// Store is optional; without it results get a job id but are not kept.
	Store    Store
	Engine   *casa.Engine
	Producer tracking.TrajectoryProducer
	// Calibration supplies the defaults that per-job params override.
	Calibration *config.CalibrationConfig
}

// NewAnalyzer returns an Analyzer with the default engine, the reference
// linker and the built-in calibration.
func NewAnalyzer(store Store) *Analyzer {
	return &Analyzer{
		Store:       store,
		Engine:      casa.NewEngine(casa.EngineConfig{}),
		Producer:    tracking.NewNearestNeighbourLinker(),
		Calibration: config.DefaultCalibrationConfig(),
	}
}

func (a *Analyzer) params(override *config.CalibrationConfig) casa.Params {
	base := a.Calibration
	if base == nil {
		base = config.EmptyCalibrationConfig()
	}
	return base.Merge(override).Params()
}

// Analyze computes the report for job. Engine validation failures are
// returned unwrapped so callers can map them with errors.As.
func (a *Analyzer) Analyze(ctx context.Context, job *jobfile.Job) (*db.Analysis, error) {
	params := a.params(job.Params)
	report, err := a.Engine.Compute(job.Trajectories, params)
	if err != nil {
		return nil, err
	}

	rec := &db.Analysis{Params: params, Report: report}
	if job.Filename != "" {
		rec.Filename = security.SanitizeFilename(job.Filename)
	}
	if a.Store == nil {
		rec.JobID = uuid.NewString()
		rec.CreatedAt = time.Now().UTC()
		rec.Status = db.StatusCompleted
		return rec, nil
	}
	if err := a.Store.RecordAnalysis(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store analysis: %w", err)
	}
	logf("analysis %s: %d trajectories, %.1f%% progressive", rec.JobID, report.Count, report.Motility.ProgressivePercent)
	return rec, nil
}

// AnalyzeDetections links the job's frames into trajectories and analyzes
// them.
func (a *Analyzer) AnalyzeDetections(ctx context.Context, job *jobfile.DetectionJob) (*db.Analysis, error) {
	trajectories, err := a.Producer.ProduceTrajectories(ctx, job.Frames)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, &jobfile.Job{
		Filename:     job.Filename,
		Params:       job.Params,
		Trajectories: trajectories,
	})
}
