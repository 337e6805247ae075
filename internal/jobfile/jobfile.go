// Package jobfile reads analysis jobs from disk: trajectory files in JSON or
// CSV form and per-frame detection files for the tracker.
package jobfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/casa.report/internal/casa"
	"github.com/banshee-data/casa.report/internal/config"
	"github.com/banshee-data/casa.report/internal/fsutil"
	"github.com/banshee-data/casa.report/internal/tracking"
)

// MaxFileSize bounds job files read from disk.
const MaxFileSize = 64 << 20

// ErrUnsupportedFormat is returned for file extensions other than .json and .csv.
var ErrUnsupportedFormat = errors.New("unsupported job file format")

// Job is one analysis request: a trajectory population plus optional
// calibration overrides. It is also the body of POST /api/v1/analyze.
type Job struct {
	Filename     string                    `json:"filename,omitempty"`
	Params       *config.CalibrationConfig `json:"params,omitempty"`
	Trajectories []casa.Trajectory         `json:"trajectories"`
}

// DetectionJob is a detections-first request: frames are linked into
// trajectories before analysis.
type DetectionJob struct {
	Filename string                    `json:"filename,omitempty"`
	Params   *config.CalibrationConfig `json:"params,omitempty"`
	Frames   []tracking.Frame          `json:"frames"`
}

// Load reads a trajectory job from path, choosing the parser by extension.
// Filename defaults to the base name of path.
func Load(fsys fsutil.FileSystem, path string) (*Job, error) {
	data, err := fsutil.ReadFileLimited(fsys, path, MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	var job *Job
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		job, err = ParseJSON(data)
	case ".csv":
		var trajectories []casa.Trajectory
		trajectories, err = ParseCSV(bytes.NewReader(data))
		job = &Job{Trajectories: trajectories}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if job.Filename == "" {
		job.Filename = filepath.Base(path)
	}
	return job, nil
}

// ParseJSON decodes either a Job object or a bare array of trajectories.
func ParseJSON(data []byte) (*Job, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty job file")
	}

	if trimmed[0] == '[' {
		var trajectories []casa.Trajectory
		if err := json.Unmarshal(trimmed, &trajectories); err != nil {
			return nil, fmt.Errorf("failed to parse trajectories: %w", err)
		}
		return &Job{Trajectories: trajectories}, nil
	}

	var raw struct {
		Job
		Trajectories *[]casa.Trajectory `json:"trajectories"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	if raw.Trajectories == nil {
		return nil, errors.New(`job is missing "trajectories"`)
	}
	job := raw.Job
	job.Trajectories = *raw.Trajectories
	return &job, nil
}

// LoadDetections reads a detection job (JSON only).
func LoadDetections(fsys fsutil.FileSystem, path string) (*DetectionJob, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".json" {
		return nil, fmt.Errorf("%w: detections must be .json, got %q", ErrUnsupportedFormat, ext)
	}
	data, err := fsutil.ReadFileLimited(fsys, path, MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read detections file: %w", err)
	}

	job, err := ParseDetectionsJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if job.Filename == "" {
		job.Filename = filepath.Base(path)
	}
	return job, nil
}

// ParseDetectionsJSON decodes a DetectionJob object.
func ParseDetectionsJSON(data []byte) (*DetectionJob, error) {
	var job DetectionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse detections: %w", err)
	}
	if job.Frames == nil {
		return nil, errors.New(`detections job is missing "frames"`)
	}
	return &job, nil
}
