package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/casa.report/internal/casa"
)

// DefaultConfigPath is the path to the canonical calibration defaults file.
const DefaultConfigPath = "config/calibration.defaults.json"

// maxConfigFileSize bounds calibration files read from disk.
const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// CalibrationConfig describes the acquisition setup and classification
// thresholds for a microscope/chamber combination. The schema matches the
// "params" object accepted by the analyze endpoints, so the same JSON can be
// used for startup configuration and per-request overrides.
type CalibrationConfig struct {
	// Acquisition
	FrameRate           *float64 `json:"frame_rate,omitempty"`
	MicronsPerPixel     *float64 `json:"microns_per_pixel,omitempty"`
	ChamberDepthMicrons *float64 `json:"chamber_depth_microns,omitempty"`
	FieldAreaMicrons2   *float64 `json:"field_area_microns2,omitempty"`

	// Classification
	ImmotileVCLThreshold    *float64 `json:"immotile_vcl_threshold_um_s,omitempty"`
	ProgressiveLINThreshold *float64 `json:"progressive_lin_threshold_percent,omitempty"`
	VAPSmoothingWindow      *int     `json:"vap_smoothing_window,omitempty"`

	// Sampling
	FieldsAnalyzed *int     `json:"fields_analyzed,omitempty"`
	DilutionFactor *float64 `json:"dilution_factor,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyCalibrationConfig returns a CalibrationConfig with all fields set to nil.
func EmptyCalibrationConfig() *CalibrationConfig {
	return &CalibrationConfig{}
}

// DefaultCalibrationConfig returns a config with every field populated from
// the engine defaults.
func DefaultCalibrationConfig() *CalibrationConfig {
	return &CalibrationConfig{
		FrameRate:               ptrFloat64(casa.DefaultFrameRate),
		MicronsPerPixel:         ptrFloat64(casa.DefaultMicronsPerPixel),
		ChamberDepthMicrons:     ptrFloat64(casa.DefaultChamberDepthMicrons),
		FieldAreaMicrons2:       ptrFloat64(casa.DefaultFieldAreaMicrons2),
		ImmotileVCLThreshold:    ptrFloat64(casa.DefaultImmotileVCLThreshold),
		ProgressiveLINThreshold: ptrFloat64(casa.DefaultProgressiveLINThreshold),
		VAPSmoothingWindow:      ptrInt(casa.DefaultVAPSmoothingWindow),
		FieldsAnalyzed:          ptrInt(casa.DefaultFieldsAnalyzed),
		DilutionFactor:          ptrFloat64(casa.DefaultDilutionFactor),
	}
}

// LoadCalibrationConfig loads a CalibrationConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file fall back to defaults through the Get* methods, so partial
// configs are safe.
func LoadCalibrationConfig(path string) (*CalibrationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyCalibrationConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical calibration defaults from
// DefaultConfigPath, searching the current directory and its parents.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *CalibrationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/casa/...
	}
	for _, path := range candidates {
		if cfg, err := LoadCalibrationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the effective values (set fields plus defaults). The
// returned error wraps the engine's *casa.ParameterError so callers can
// name the offending field.
func (c *CalibrationConfig) Validate() error {
	return c.Params().Validate()
}

// Merge returns a new config where every field set in override replaces the
// receiver's value. A nil override returns a copy of the receiver.
func (c *CalibrationConfig) Merge(override *CalibrationConfig) *CalibrationConfig {
	out := *c
	if override == nil {
		return &out
	}
	if override.FrameRate != nil {
		out.FrameRate = override.FrameRate
	}
	if override.MicronsPerPixel != nil {
		out.MicronsPerPixel = override.MicronsPerPixel
	}
	if override.ChamberDepthMicrons != nil {
		out.ChamberDepthMicrons = override.ChamberDepthMicrons
	}
	if override.FieldAreaMicrons2 != nil {
		out.FieldAreaMicrons2 = override.FieldAreaMicrons2
	}
	if override.ImmotileVCLThreshold != nil {
		out.ImmotileVCLThreshold = override.ImmotileVCLThreshold
	}
	if override.ProgressiveLINThreshold != nil {
		out.ProgressiveLINThreshold = override.ProgressiveLINThreshold
	}
	if override.VAPSmoothingWindow != nil {
		out.VAPSmoothingWindow = override.VAPSmoothingWindow
	}
	if override.FieldsAnalyzed != nil {
		out.FieldsAnalyzed = override.FieldsAnalyzed
	}
	if override.DilutionFactor != nil {
		out.DilutionFactor = override.DilutionFactor
	}
	return &out
}

// Params builds the engine parameters from the effective values.
func (c *CalibrationConfig) Params() casa.Params {
	return casa.Params{
		FrameRate:               c.GetFrameRate(),
		MicronsPerPixel:         c.GetMicronsPerPixel(),
		ChamberDepthMicrons:     c.GetChamberDepthMicrons(),
		FieldAreaMicrons2:       c.GetFieldAreaMicrons2(),
		ImmotileVCLThreshold:    c.GetImmotileVCLThreshold(),
		ProgressiveLINThreshold: c.GetProgressiveLINThreshold(),
		VAPSmoothingWindow:      c.GetVAPSmoothingWindow(),
		FieldsAnalyzed:          c.GetFieldsAnalyzed(),
		DilutionFactor:          c.GetDilutionFactor(),
	}
}

// GetFrameRate returns the frame_rate value or the default.
func (c *CalibrationConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return casa.DefaultFrameRate
	}
	return *c.FrameRate
}

// GetMicronsPerPixel returns the microns_per_pixel value or the default.
func (c *CalibrationConfig) GetMicronsPerPixel() float64 {
	if c.MicronsPerPixel == nil {
		return casa.DefaultMicronsPerPixel
	}
	return *c.MicronsPerPixel
}

// GetChamberDepthMicrons returns the chamber_depth_microns value or the default.
func (c *CalibrationConfig) GetChamberDepthMicrons() float64 {
	if c.ChamberDepthMicrons == nil {
		return casa.DefaultChamberDepthMicrons
	}
	return *c.ChamberDepthMicrons
}

// GetFieldAreaMicrons2 returns the field_area_microns2 value or the default.
func (c *CalibrationConfig) GetFieldAreaMicrons2() float64 {
	if c.FieldAreaMicrons2 == nil {
		return casa.DefaultFieldAreaMicrons2
	}
	return *c.FieldAreaMicrons2
}

// GetImmotileVCLThreshold returns the immotile_vcl_threshold_um_s value or the default.
func (c *CalibrationConfig) GetImmotileVCLThreshold() float64 {
	if c.ImmotileVCLThreshold == nil {
		return casa.DefaultImmotileVCLThreshold
	}
	return *c.ImmotileVCLThreshold
}

// GetProgressiveLINThreshold returns the progressive_lin_threshold_percent value or the default.
func (c *CalibrationConfig) GetProgressiveLINThreshold() float64 {
	if c.ProgressiveLINThreshold == nil {
		return casa.DefaultProgressiveLINThreshold
	}
	return *c.ProgressiveLINThreshold
}

// GetVAPSmoothingWindow returns the vap_smoothing_window value or the default.
func (c *CalibrationConfig) GetVAPSmoothingWindow() int {
	if c.VAPSmoothingWindow == nil {
		return casa.DefaultVAPSmoothingWindow
	}
	return *c.VAPSmoothingWindow
}

// GetFieldsAnalyzed returns the fields_analyzed value or the default.
func (c *CalibrationConfig) GetFieldsAnalyzed() int {
	if c.FieldsAnalyzed == nil {
		return casa.DefaultFieldsAnalyzed
	}
	return *c.FieldsAnalyzed
}

// GetDilutionFactor returns the dilution_factor value or the default.
func (c *CalibrationConfig) GetDilutionFactor() float64 {
	if c.DilutionFactor == nil {
		return casa.DefaultDilutionFactor
	}
	return *c.DilutionFactor
}
