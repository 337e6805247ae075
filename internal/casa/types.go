package casa

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TrackID identifies a trajectory within one analysis run. Trackers emit
// either integers or strings; both decode to the same opaque value.
type TrackID string

// UnmarshalJSON accepts a JSON string or number.
func (id *TrackID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = TrackID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("track id must be a string or number: %w", err)
	}
	*id = TrackID(n.String())
	return nil
}

// TrackIDFromInt formats an integer tracker id.
func TrackIDFromInt(n int) TrackID {
	return TrackID(strconv.Itoa(n))
}

// Morphology is the optional per-trajectory label supplied by the detector.
type Morphology string

const (
	// MorphologyUnlabelled means the detector supplied no label.
	MorphologyUnlabelled Morphology = ""
	// MorphologyNormal indicates normal head/tail morphology.
	MorphologyNormal Morphology = "normal"
	// MorphologyAbnormal indicates abnormal morphology.
	MorphologyAbnormal Morphology = "abnormal"
)

// IsValid reports whether m is one of the known labels (including unlabelled).
func (m Morphology) IsValid() bool {
	switch m {
	case MorphologyUnlabelled, MorphologyNormal, MorphologyAbnormal:
		return true
	}
	return false
}

// Sample is one tracked position. X and Y are in pixels.
type Sample struct {
	Frame int64   `json:"frame"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Trajectory is one tracked object's ordered path. The engine never
// mutates it.
type Trajectory struct {
	ID         TrackID    `json:"id"`
	Morphology Morphology `json:"morphology,omitempty"`
	Samples    []Sample   `json:"samples"`
}

// MotilityClass is the classification assigned to a trajectory.
type MotilityClass string

const (
	ClassProgressive    MotilityClass = "progressive"
	ClassNonProgressive MotilityClass = "non_progressive"
	ClassImmotile       MotilityClass = "immotile"
	// ClassIndeterminate marks trajectories with fewer than two samples or a
	// zero duration. They count toward the population but not velocity means.
	ClassIndeterminate MotilityClass = "indeterminate"
)

// TrajectoryMetrics holds the per-trajectory results, index-aligned with
// the input population. Kinematic fields are zero for indeterminate tracks.
type TrajectoryMetrics struct {
	ID              TrackID       `json:"id"`
	SampleCount     int           `json:"sample_count"`
	DurationSeconds float64       `json:"duration_s"`
	Class           MotilityClass `json:"class"`
	Morphology      Morphology    `json:"morphology,omitempty"`

	VCL float64 `json:"vcl_um_s"`
	VSL float64 `json:"vsl_um_s"`
	VAP float64 `json:"vap_um_s"`
	LIN float64 `json:"lin_percent"`
	STR float64 `json:"str_percent"`
	WOB float64 `json:"wob_percent"`
	ALH float64 `json:"alh_um"`
	BCF float64 `json:"bcf_hz"`
}

// MotilityBreakdown partitions the population. The four counts always sum
// to Report.Count.
type MotilityBreakdown struct {
	ProgressiveCount    int `json:"progressive_count"`
	NonProgressiveCount int `json:"non_progressive_count"`
	ImmotileCount       int `json:"immotile_count"`
	IndeterminateCount  int `json:"indeterminate_count"`

	ProgressivePercent    float64 `json:"progressive_percent"`
	NonProgressivePercent float64 `json:"non_progressive_percent"`
	ImmotilePercent       float64 `json:"immotile_percent"`
	IndeterminatePercent  float64 `json:"indeterminate_percent"`
	TotalMotilityPercent  float64 `json:"total_motility_percent"`
}

// VelocityStats are population statistics over determinate trajectories.
type VelocityStats struct {
	MeanVCL float64 `json:"mean_vcl_um_s"`
	MeanVSL float64 `json:"mean_vsl_um_s"`
	MeanVAP float64 `json:"mean_vap_um_s"`
	P50VCL  float64 `json:"p50_vcl_um_s"`
	P90VCL  float64 `json:"p90_vcl_um_s"`

	MeanSTR float64 `json:"mean_str_percent"`
	MeanWOB float64 `json:"mean_wob_percent"`
	MeanALH float64 `json:"mean_alh_um"`
	MeanBCF float64 `json:"mean_bcf_hz"`
}

// MorphologyBreakdown is reported as unavailable (Available == false) when
// no trajectory carried a label; the counts are then meaningless, not zero.
type MorphologyBreakdown struct {
	Available       bool    `json:"available"`
	NormalCount     int     `json:"normal_count"`
	AbnormalCount   int     `json:"abnormal_count"`
	UnlabelledCount int     `json:"unlabelled_count"`
	NormalPercent   float64 `json:"normal_percent"`
}

// Report is the single output value of one analysis job.
type Report struct {
	Count                     int                 `json:"count"`
	ConcentrationPerML        float64             `json:"concentration_per_ml"`
	ConcentrationMillionPerML float64             `json:"concentration_million_per_ml"`
	Motility                  MotilityBreakdown   `json:"motility"`
	Velocity                  VelocityStats       `json:"velocity"`
	Linearity                 float64             `json:"linearity_percent"`
	Morphology                MorphologyBreakdown `json:"morphology"`
	ProcessingTimeSeconds     float64             `json:"processing_time_s"`
	Trajectories              []TrajectoryMetrics `json:"trajectories"`
}
