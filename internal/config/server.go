package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/banshee-data/casa.report/internal/units"
)

// Environment variables read by LoadServerConfig.
const (
	EnvListen       = "CASA_LISTEN"
	EnvGRPCListen   = "CASA_GRPC_LISTEN"
	EnvDBPath       = "CASA_DB_PATH"
	EnvCalibration  = "CASA_CALIBRATION"
	EnvMaxBodyBytes = "CASA_MAX_BODY_BYTES"
	EnvWorkers      = "CASA_WORKERS"
	EnvTimezone     = "CASA_TIMEZONE"
)

// ServerConfig holds the process-level settings of casa-server.
type ServerConfig struct {
	Listen     string // HTTP listen address
	GRPCListen string // gRPC listen address; empty disables the gRPC server
	DBPath     string
	// CalibrationPath is an optional calibration JSON file. Empty uses the
	// built-in defaults.
	CalibrationPath string
	MaxBodyBytes    int64
	// Workers bounds engine parallelism per job; 0 uses GOMAXPROCS.
	Workers int
	// Timezone is used to render stored timestamps in API responses.
	Timezone string
}

// DefaultServerConfig returns the settings used when nothing is configured.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Listen:       ":8080",
		GRPCListen:   ":50051",
		DBPath:       "casa.db",
		MaxBodyBytes: 32 << 20,
		Timezone:     "UTC",
	}
}

// LoadServerConfig reads the given .env files (default ".env") into the
// process environment, without overriding variables already set, then
// builds a ServerConfig from the environment. Missing .env files are not an
// error.
func LoadServerConfig(envFiles ...string) (ServerConfig, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ServerConfig{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return ServerConfigFromEnv(os.LookupEnv)
}

// ServerConfigFromEnv builds a ServerConfig from a lookup function, applying
// defaults for unset variables.
func ServerConfigFromEnv(lookup func(string) (string, bool)) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvListen, &cfg.Listen)
	str(EnvGRPCListen, &cfg.GRPCListen)
	str(EnvDBPath, &cfg.DBPath)
	str(EnvCalibration, &cfg.CalibrationPath)
	str(EnvTimezone, &cfg.Timezone)

	if v, ok := lookup(EnvMaxBodyBytes); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n <= 0 {
			return ServerConfig{}, fmt.Errorf("%s must be a positive integer, got %q", EnvMaxBodyBytes, v)
		}
		cfg.MaxBodyBytes = n
	}
	if v, ok := lookup(EnvWorkers); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return ServerConfig{}, fmt.Errorf("%s must be a non-negative integer, got %q", EnvWorkers, v)
		}
		cfg.Workers = n
	}

	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be caught at listen time.
func (c ServerConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%s must not be empty", EnvListen)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%s must not be empty", EnvDBPath)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes)
	}
	if !units.IsTimezoneValid(c.Timezone) {
		return fmt.Errorf("%s: unknown timezone %q", EnvTimezone, c.Timezone)
	}
	return nil
}

// LoadCalibration returns the calibration at CalibrationPath, or the
// built-in defaults when no path is configured.
func (c ServerConfig) LoadCalibration() (*CalibrationConfig, error) {
	if c.CalibrationPath == "" {
		return DefaultCalibrationConfig(), nil
	}
	return LoadCalibrationConfig(c.CalibrationPath)
}
