// Package config provides configuration loading and management for
// cortexmap. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"cortexmap/internal/logger"
	"cortexmap/pkg/colorbar"
	"cortexmap/pkg/colormap"
	"cortexmap/pkg/errdefs"
	"cortexmap/pkg/projection"
	"cortexmap/pkg/roi"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Logging configures the console and rotating file sinks.
	Logging logger.Config `yaml:"logging"`

	// Projection holds the defaults for source projection runs.
	Projection struct {
		// Radius is the contribution sphere around each source.
		Radius float64 `yaml:"radius"`

		// Type is the aggregation, "activity" or "repartition".
		Type string `yaml:"type"`

		// Contribute lets sources reach the opposite hemisphere.
		Contribute bool `yaml:"contribute"`

		// MaskColor highlights vertices reached by masked sources.
		MaskColor string `yaml:"maskColor"`

		// AutoScale fits the colorbar limits to each projected field.
		AutoScale bool `yaml:"autoScale"`
	} `yaml:"projection"`

	// Colorbar holds the colormap configuration.
	Colorbar struct {
		// Cmap is the colormap name.
		Cmap string `yaml:"cmap"`

		// Clim overrides the color limits when set.
		Clim *[2]float64 `yaml:"clim"`

		// VMin/Under substitute a color below a threshold when VMin is set.
		VMin  *float64 `yaml:"vmin"`
		Under string   `yaml:"under"`

		// VMax/Over substitute a color above a threshold when VMax is set.
		VMax *float64 `yaml:"vmax"`
		Over string   `yaml:"over"`

		// Label is the colorbar caption.
		Label string `yaml:"label"`

		// NDigits is the tick precision.
		NDigits int `yaml:"ndigits"`
	} `yaml:"colorbar"`

	// ROI holds the atlas selection and surface extraction defaults.
	ROI struct {
		// Atlas is the predefined atlas name.
		Atlas string `yaml:"atlas"`

		// DataDir is where the atlas volumes live.
		DataDir string `yaml:"dataDir"`

		// Smooth is the box smoothing width for surface extraction.
		Smooth int `yaml:"smooth"`

		// UniqueColor assigns one random color per extracted region.
		UniqueColor bool `yaml:"uniqueColor"`

		// Seed drives the unique colors; 0 leaves the source unseeded.
		Seed int64 `yaml:"seed"`
	} `yaml:"roi"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Logging = logger.Default()

	cfg.Projection.Radius = 10.0
	cfg.Projection.Type = "activity"
	cfg.Projection.Contribute = false
	cfg.Projection.MaskColor = "orange"
	cfg.Projection.AutoScale = true

	cfg.Colorbar.Cmap = "viridis"
	cfg.Colorbar.Under = "gray"
	cfg.Colorbar.Over = "red"
	cfg.Colorbar.NDigits = 2

	cfg.ROI.Atlas = "brodmann"
	cfg.ROI.DataDir = filepath.Join("data", "roi")
	cfg.ROI.Smooth = 3
	cfg.ROI.UniqueColor = false

	return cfg
}

// LoadConfig loads configuration from a YAML file. If the file doesn't
// exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks every section and returns the first violation.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	if r := c.Projection.Radius; r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return errdefs.Config("projection.radius", "radius must be positive and finite, got %v", r)
	}
	if _, err := projection.ParseType(c.Projection.Type); err != nil {
		return err
	}
	if _, err := colormap.ParseColor(c.Projection.MaskColor); err != nil {
		return err
	}

	if _, err := colormap.Lookup(c.Colorbar.Cmap); err != nil {
		return err
	}
	if clim := c.Colorbar.Clim; clim != nil && clim[0] >= clim[1] {
		return errdefs.Config("colorbar.clim", "limits must satisfy lo < hi, got %v", *clim)
	}
	if _, err := colormap.ParseColor(c.Colorbar.Under); err != nil {
		return err
	}
	if _, err := colormap.ParseColor(c.Colorbar.Over); err != nil {
		return err
	}
	if c.Colorbar.NDigits < 0 {
		return errdefs.Config("colorbar.ndigits", "digits must not be negative, got %d", c.Colorbar.NDigits)
	}

	atlasKnown := false
	for _, a := range roi.PredefinedAtlases() {
		if a == c.ROI.Atlas {
			atlasKnown = true
			break
		}
	}
	if !atlasKnown {
		return &errdefs.NotFoundError{Kind: "atlas", Name: c.ROI.Atlas, Known: roi.PredefinedAtlases()}
	}
	if s := c.ROI.Smooth; s != 0 && (s < 3 || s%2 == 0) {
		return errdefs.Config("roi.smooth", "smoothing width must be 0 or an odd int >= 3, got %d", s)
	}

	return nil
}

// ProjectionParams converts the projection section into run parameters.
func (c *Config) ProjectionParams() (projection.Params, error) {
	t, err := projection.ParseType(c.Projection.Type)
	if err != nil {
		return projection.Params{}, err
	}
	return projection.Params{
		Radius:     c.Projection.Radius,
		Type:       t,
		Contribute: c.Projection.Contribute,
		MaskColor:  c.Projection.MaskColor,
	}, nil
}

// NewColorbar builds a colorbar state from the colorbar section.
func (c *Config) NewColorbar(log *zap.Logger) *colorbar.State {
	opts := []colorbar.Option{colorbar.WithCmap(c.Colorbar.Cmap)}
	if c.Colorbar.Clim != nil {
		opts = append(opts, colorbar.WithClim(c.Colorbar.Clim[0], c.Colorbar.Clim[1]))
	}
	if c.Colorbar.VMin != nil {
		opts = append(opts, colorbar.WithVMin(*c.Colorbar.VMin, c.Colorbar.Under))
	}
	if c.Colorbar.VMax != nil {
		opts = append(opts, colorbar.WithVMax(*c.Colorbar.VMax, c.Colorbar.Over))
	}
	if c.Colorbar.Label != "" {
		opts = append(opts, colorbar.WithLabel(c.Colorbar.Label))
	}

	cb := colorbar.New(log, opts...)
	cb.Under = c.Colorbar.Under
	cb.Over = c.Colorbar.Over
	cb.NDigits = c.Colorbar.NDigits
	return cb
}

// SurfaceOptions converts the roi section into extraction options.
func (c *Config) SurfaceOptions() roi.SurfaceOptions {
	opts := roi.SurfaceOptions{
		Smooth:      c.ROI.Smooth,
		UniqueColor: c.ROI.UniqueColor,
	}
	if c.ROI.Seed != 0 {
		opts.Rand = rand.New(rand.NewSource(c.ROI.Seed))
	}
	return opts
}
