// Package config holds the tuning record for the fitting pipeline. All
// fields are pointers so a JSON file only needs to name the values it
// overrides; the Get accessors supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/grain-metrics/laguerre/internal/extract"
	"github.com/grain-metrics/laguerre/internal/fit"
)

// Config represents the tuning parameters for extraction and fitting. The
// schema doubles as the on-disk JSON format, so partial files are safe.
type Config struct {
	// Extraction params
	TestPointsPerFace *int     `json:"test_points_per_face,omitempty"`
	Strictness        *float64 `json:"strictness,omitempty"`

	// Cross-entropy params
	Samples        *int     `json:"samples,omitempty"`
	Rho            *float64 `json:"rho,omitempty"`
	TauInject      *int     `json:"tau_inject,omitempty"`
	DeltaInject    *float64 `json:"delta_inject,omitempty"`
	Injections     *int     `json:"injections,omitempty"`
	Gamma          *float64 `json:"gamma,omitempty"`
	Kappa          *float64 `json:"kappa,omitempty"`
	TauTerminate   *int     `json:"tau_terminate,omitempty"`
	DeltaTerminate *float64 `json:"delta_terminate,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`

	// Execution params
	Parallelism *int `json:"parallelism,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// Empty returns a Config with all fields unset, so every accessor falls
// back to its default.
func Empty() *Config {
	return &Config{}
}

// LoadFromFile loads a Config from a JSON file. Fields omitted from the
// file retain their defaults, so partial configs are safe.
func LoadFromFile(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile writes the set fields as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.TestPointsPerFace != nil && *c.TestPointsPerFace < 1 {
		return fmt.Errorf("test_points_per_face must be positive, got %d", *c.TestPointsPerFace)
	}
	if c.Strictness != nil {
		if *c.Strictness <= 0 || *c.Strictness > 1 {
			return fmt.Errorf("strictness must be in (0, 1], got %f", *c.Strictness)
		}
	}
	if c.Samples != nil && *c.Samples < 1 {
		return fmt.Errorf("samples must be positive, got %d", *c.Samples)
	}
	if c.Rho != nil {
		if *c.Rho <= 0 || *c.Rho > 1 {
			return fmt.Errorf("rho must be in (0, 1], got %f", *c.Rho)
		}
	}
	if c.TauInject != nil && *c.TauInject < 1 {
		return fmt.Errorf("tau_inject must be positive, got %d", *c.TauInject)
	}
	if c.DeltaInject != nil && *c.DeltaInject < 0 {
		return fmt.Errorf("delta_inject must be non-negative, got %f", *c.DeltaInject)
	}
	if c.Gamma != nil && *c.Gamma <= 0 {
		return fmt.Errorf("gamma must be positive, got %f", *c.Gamma)
	}
	if c.Kappa != nil && *c.Kappa < 0 {
		return fmt.Errorf("kappa must be non-negative, got %f", *c.Kappa)
	}
	if c.TauTerminate != nil && *c.TauTerminate < 1 {
		return fmt.Errorf("tau_terminate must be positive, got %d", *c.TauTerminate)
	}
	if c.DeltaTerminate != nil && *c.DeltaTerminate < 0 {
		return fmt.Errorf("delta_terminate must be non-negative, got %f", *c.DeltaTerminate)
	}
	if c.Parallelism != nil && *c.Parallelism < 0 {
		return fmt.Errorf("parallelism must be non-negative, got %d", *c.Parallelism)
	}
	return nil
}

// GetTestPointsPerFace returns the test_points_per_face value or the default.
func (c *Config) GetTestPointsPerFace() int {
	if c.TestPointsPerFace == nil {
		return extract.DefaultTestPointsPerFace
	}
	return *c.TestPointsPerFace
}

// GetStrictness returns the strictness value or the default.
func (c *Config) GetStrictness() float64 {
	if c.Strictness == nil {
		return extract.DefaultStrictness
	}
	return *c.Strictness
}

// GetSamples returns the samples value or the default.
func (c *Config) GetSamples() int {
	if c.Samples == nil {
		return 4000
	}
	return *c.Samples
}

// GetRho returns the rho value or the default.
func (c *Config) GetRho() float64 {
	if c.Rho == nil {
		return 0.05
	}
	return *c.Rho
}

// GetTauInject returns the tau_inject value or the default.
func (c *Config) GetTauInject() int {
	if c.TauInject == nil {
		return 10
	}
	return *c.TauInject
}

// GetDeltaInject returns the delta_inject value or the default.
func (c *Config) GetDeltaInject() float64 {
	if c.DeltaInject == nil {
		return 0.05
	}
	return *c.DeltaInject
}

// GetInjections returns the injections value or the default (unlimited).
func (c *Config) GetInjections() int {
	if c.Injections == nil {
		return -1
	}
	return *c.Injections
}

// GetGamma returns the gamma value or the default. With an explicit
// injection budget the default is +Inf: a fixed number of injections is
// never throttled by the improvement ratio.
func (c *Config) GetGamma() float64 {
	if c.Gamma != nil {
		return *c.Gamma
	}
	if c.GetInjections() >= 0 {
		return math.Inf(1)
	}
	return 0.9
}

// GetKappa returns the kappa value or the default.
func (c *Config) GetKappa() float64 {
	if c.Kappa == nil {
		return 0.25
	}
	return *c.Kappa
}

// GetTauTerminate returns the tau_terminate value or the default.
func (c *Config) GetTauTerminate() int {
	if c.TauTerminate == nil {
		return 10
	}
	return *c.TauTerminate
}

// GetDeltaTerminate returns the delta_terminate value or the default.
func (c *Config) GetDeltaTerminate() float64 {
	if c.DeltaTerminate == nil {
		return 0.01
	}
	return *c.DeltaTerminate
}

// GetSeed returns the seed value or the default.
func (c *Config) GetSeed() uint64 {
	if c.Seed == nil {
		return 1
	}
	return uint64(*c.Seed)
}

// GetParallelism returns the parallelism value or the default (0 selects
// the hardware concurrency).
func (c *Config) GetParallelism() int {
	if c.Parallelism == nil {
		return 0
	}
	return *c.Parallelism
}

// FitParams assembles the fit parameters from the configured values.
func (c *Config) FitParams() fit.Params {
	return fit.Params{
		Samples:        c.GetSamples(),
		Rho:            c.GetRho(),
		TauInject:      c.GetTauInject(),
		DeltaInject:    c.GetDeltaInject(),
		Injections:     c.GetInjections(),
		Gamma:          c.GetGamma(),
		Kappa:          c.GetKappa(),
		TauTerminate:   c.GetTauTerminate(),
		DeltaTerminate: c.GetDeltaTerminate(),
		Seed:           c.GetSeed(),
	}
}

// ExtractOptions assembles the extraction options from the configured
// values.
func (c *Config) ExtractOptions() extract.Options {
	return extract.Options{
		TestPointsPerFace: c.GetTestPointsPerFace(),
		Strictness:        c.GetStrictness(),
	}
}
