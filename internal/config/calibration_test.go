package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/casa.report/internal/casa"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultCalibrationConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultCalibrationConfig()
	assert.Equal(t, casa.DefaultParams(), cfg.Params())
	assert.NoError(t, cfg.Validate())
}

func TestEmptyCalibrationConfig_FallsBackToDefaults(t *testing.T) {
	t.Parallel()

	cfg := EmptyCalibrationConfig()
	assert.Equal(t, casa.DefaultParams(), cfg.Params())
	assert.Equal(t, 30.0, cfg.GetFrameRate())
	assert.Equal(t, 76800.0, cfg.GetFieldAreaMicrons2())
	assert.Equal(t, 5, cfg.GetVAPSmoothingWindow())
}

func TestMustLoadDefaultConfig_MatchesEngineDefaults(t *testing.T) {
	t.Parallel()

	cfg := MustLoadDefaultConfig()
	assert.Equal(t, casa.DefaultParams(), cfg.Params())
	// Every field is spelled out in the canonical file.
	assert.Equal(t, DefaultCalibrationConfig(), cfg)
}

func TestLoadCalibrationConfig_Partial(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "scope.json", `{"frame_rate": 60, "microns_per_pixel": 0.25, "dilution_factor": 2}`)

	cfg, err := LoadCalibrationConfig(path)
	require.NoError(t, err)

	p := cfg.Params()
	assert.Equal(t, 60.0, p.FrameRate)
	assert.Equal(t, 0.25, p.MicronsPerPixel)
	assert.Equal(t, 2.0, p.DilutionFactor)
	assert.Equal(t, casa.DefaultChamberDepthMicrons, p.ChamberDepthMicrons)
	assert.Nil(t, cfg.ChamberDepthMicrons)
}

func TestLoadCalibrationConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "scope.yaml", `{}`, "must have .json extension"},
		{"malformed", "bad.json", `{"frame_rate":`, "failed to parse config JSON"},
		{"zero frame rate", "zero.json", `{"frame_rate": 0}`, "frame_rate"},
		{"lin over 100", "lin.json", `{"progressive_lin_threshold_percent": 150}`, "progressive_lin_threshold_percent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadCalibrationConfig(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadCalibrationConfig_ValidationErrorIsParameterError(t *testing.T) {
	t.Parallel()

	_, err := LoadCalibrationConfig(writeConfig(t, "neg.json", `{"chamber_depth_microns": -20}`))
	var paramErr *casa.ParameterError
	require.True(t, errors.As(err, &paramErr))
	assert.Equal(t, "chamber_depth_microns", paramErr.Field)
	assert.ErrorIs(t, err, casa.ErrInvalidParameters)
}

func TestLoadCalibrationConfig_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadCalibrationConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat config file")
}

func TestLoadCalibrationConfig_TooLarge(t *testing.T) {
	t.Parallel()

	body := `{"frame_rate": 30` + strings.Repeat(" ", maxConfigFileSize) + `}`
	_, err := LoadCalibrationConfig(writeConfig(t, "huge.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file too large")
}

func TestCalibrationConfig_Merge(t *testing.T) {
	t.Parallel()

	base := DefaultCalibrationConfig()
	override := &CalibrationConfig{
		ChamberDepthMicrons: ptrFloat64(10),
		FieldsAnalyzed:      ptrInt(4),
	}

	merged := base.Merge(override)
	assert.Equal(t, 10.0, merged.GetChamberDepthMicrons())
	assert.Equal(t, 4, merged.GetFieldsAnalyzed())
	assert.Equal(t, 30.0, merged.GetFrameRate())

	// The receiver is untouched.
	assert.Equal(t, casa.DefaultChamberDepthMicrons, base.GetChamberDepthMicrons())

	copied := base.Merge(nil)
	assert.Equal(t, base, copied)
	assert.NotSame(t, base, copied)
}
