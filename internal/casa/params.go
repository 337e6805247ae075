package casa

import (
	"fmt"
	"math"
)

// Default acquisition and classification values. These seed DefaultParams
// and the calibration config; callers always pass an explicit Params.
const (
	DefaultFrameRate           = 30.0 // frames/s
	DefaultMicronsPerPixel     = 0.5
	DefaultChamberDepthMicrons = 20.0 // Makler-style 20 µm chamber
	// 640x480 px field at 0.5 µm/px.
	DefaultFieldAreaMicrons2 = 320.0 * 240.0

	DefaultImmotileVCLThreshold    = 5.0  // µm/s
	DefaultProgressiveLINThreshold = 50.0 // percent

	DefaultVAPSmoothingWindow = 5 // samples, centred
	DefaultFieldsAnalyzed     = 1
	DefaultDilutionFactor     = 1.0
)

// Params describes how pixel-space trajectories map to physical units and
// how trajectories are classified. All fields are required and strictly
// positive; a Params value is immutable for the duration of a job.
type Params struct {
	FrameRate           float64 `json:"frame_rate"`
	MicronsPerPixel     float64 `json:"microns_per_pixel"`
	ChamberDepthMicrons float64 `json:"chamber_depth_microns"`
	FieldAreaMicrons2   float64 `json:"field_area_microns2"`

	ImmotileVCLThreshold    float64 `json:"immotile_vcl_threshold_um_s"`
	ProgressiveLINThreshold float64 `json:"progressive_lin_threshold_percent"`

	// VAPSmoothingWindow is the centred moving-average width in samples.
	// Even values are widened to the next odd number; 1 disables smoothing.
	VAPSmoothingWindow int     `json:"vap_smoothing_window"`
	FieldsAnalyzed     int     `json:"fields_analyzed"`
	DilutionFactor     float64 `json:"dilution_factor"`
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		FrameRate:               DefaultFrameRate,
		MicronsPerPixel:         DefaultMicronsPerPixel,
		ChamberDepthMicrons:     DefaultChamberDepthMicrons,
		FieldAreaMicrons2:       DefaultFieldAreaMicrons2,
		ImmotileVCLThreshold:    DefaultImmotileVCLThreshold,
		ProgressiveLINThreshold: DefaultProgressiveLINThreshold,
		VAPSmoothingWindow:      DefaultVAPSmoothingWindow,
		FieldsAnalyzed:          DefaultFieldsAnalyzed,
		DilutionFactor:          DefaultDilutionFactor,
	}
}

// Validate returns a *ParameterError naming the first offending field.
func (p Params) Validate() error {
	floats := []struct {
		name string
		v    float64
	}{
		{"frame_rate", p.FrameRate},
		{"microns_per_pixel", p.MicronsPerPixel},
		{"chamber_depth_microns", p.ChamberDepthMicrons},
		{"field_area_microns2", p.FieldAreaMicrons2},
		{"immotile_vcl_threshold_um_s", p.ImmotileVCLThreshold},
		{"progressive_lin_threshold_percent", p.ProgressiveLINThreshold},
		{"dilution_factor", p.DilutionFactor},
	}
	for _, f := range floats {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ParameterError{Field: f.name, Reason: "must be a finite number"}
		}
		if f.v <= 0 {
			return &ParameterError{Field: f.name, Reason: fmt.Sprintf("must be > 0, got %g", f.v)}
		}
	}
	if p.ProgressiveLINThreshold > 100 {
		return &ParameterError{
			Field:  "progressive_lin_threshold_percent",
			Reason: fmt.Sprintf("must be <= 100, got %g", p.ProgressiveLINThreshold),
		}
	}
	if p.VAPSmoothingWindow <= 0 {
		return &ParameterError{Field: "vap_smoothing_window", Reason: fmt.Sprintf("must be > 0, got %d", p.VAPSmoothingWindow)}
	}
	if p.FieldsAnalyzed <= 0 {
		return &ParameterError{Field: "fields_analyzed", Reason: fmt.Sprintf("must be > 0, got %d", p.FieldsAnalyzed)}
	}
	return nil
}

// smoothingHalfWidth returns the half window, widening even windows.
func (p Params) smoothingHalfWidth() int {
	w := p.VAPSmoothingWindow
	if w%2 == 0 {
		w++
	}
	return w / 2
}
