// Package config provides configuration loading for the lightpipe commands.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Command-line flags are applied last by the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pipeline configuration.
type Config struct {
	Planet    PlanetConfig    `yaml:"planet"`
	GCS       GCSConfig       `yaml:"gcs"`
	Imagery   ImageryConfig   `yaml:"imagery"`
	Samples   SamplesConfig   `yaml:"samples"`
	Timelapse TimelapseConfig `yaml:"timelapse"`
}

// PlanetConfig configures the Planet Basemaps client.
type PlanetConfig struct {
	APIKey     string        `yaml:"api_key"`
	APIURL     string        `yaml:"api_url"`
	TilesURL   string        `yaml:"tiles_url"`
	RateLimit  float64       `yaml:"rate_limit"`
	RateBurst  int           `yaml:"rate_burst"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GCSConfig configures bucket access.
type GCSConfig struct {
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	Workers  int    `yaml:"workers"`
}

// ImageryConfig configures frame acquisition.
type ImageryConfig struct {
	Zoom          int    `yaml:"zoom"`
	Start         string `yaml:"start"`
	End           string `yaml:"end"`
	TilePadding   int    `yaml:"tile_padding"`
	MaxFrameTiles int    `yaml:"max_frame_tiles"`
	Workers       int    `yaml:"workers"`
}

// SamplesConfig configures sample tiling.
type SamplesConfig struct {
	TileSize    int    `yaml:"tile_size"`
	PosOnly     bool   `yaml:"pos_only"`
	NonNullOnly bool   `yaml:"non_null_only"`
	RowMajor    bool   `yaml:"row_major"`
	Seed        int64  `yaml:"seed"`
	ShardSize   int    `yaml:"shard_size"`
	OutDir      string `yaml:"out_dir"`
}

// TimelapseConfig configures timelapse rendering.
type TimelapseConfig struct {
	OutDir     string `yaml:"out_dir"`
	DurationMS int    `yaml:"duration_ms"`
	PredColumn string `yaml:"pred_column"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Planet: PlanetConfig{
			APIURL:     "https://api.planet.com",
			TilesURL:   "https://tiles.planet.com",
			RateLimit:  5,
			RateBurst:  5,
			MaxRetries: 4,
			Timeout:    60 * time.Second,
		},
		GCS: GCSConfig{
			Region:  "auto",
			Workers: 8,
		},
		Imagery: ImageryConfig{
			Zoom:          15,
			TilePadding:   1,
			MaxFrameTiles: 64,
			Workers:       4,
		},
		Samples: SamplesConfig{
			TileSize:  224,
			ShardSize: 1024,
			OutDir:    "samples",
		},
		Timelapse: TimelapseConfig{
			OutDir:     "timelapses",
			DurationMS: 500,
			PredColumn: "pred",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (optional; falls
// back to LIGHTPIPE_CONFIG) and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("LIGHTPIPE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Planet.APIKey = getEnv("PLANET_API_KEY", c.Planet.APIKey)
	c.Planet.APIURL = getEnv("LIGHTPIPE_PLANET_API_URL", c.Planet.APIURL)
	c.Planet.TilesURL = getEnv("LIGHTPIPE_PLANET_TILES_URL", c.Planet.TilesURL)
	c.GCS.Endpoint = getEnv("LIGHTPIPE_GCS_ENDPOINT", c.GCS.Endpoint)
	c.GCS.Workers = getEnvInt("LIGHTPIPE_GCS_WORKERS", c.GCS.Workers)
	c.Imagery.Workers = getEnvInt("LIGHTPIPE_WORKERS", c.Imagery.Workers)
	c.Samples.Seed = int64(getEnvInt("LIGHTPIPE_SEED", int(c.Samples.Seed)))
}

// Validate returns the first invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.Planet.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("planet.rate_limit must be positive"))
	}
	if err := CheckZoom(c.Imagery.Zoom); err != nil {
		errs = append(errs, fmt.Errorf("imagery.zoom: %w", err))
	}
	if c.Imagery.TilePadding < 0 {
		errs = append(errs, fmt.Errorf("imagery.tile_padding must not be negative"))
	}
	if c.Imagery.MaxFrameTiles <= 0 {
		errs = append(errs, fmt.Errorf("imagery.max_frame_tiles must be positive"))
	}
	if c.Samples.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("samples.tile_size must be positive"))
	}
	if c.Samples.ShardSize <= 0 {
		errs = append(errs, fmt.Errorf("samples.shard_size must be positive"))
	}
	if c.Timelapse.DurationMS <= 0 {
		errs = append(errs, fmt.Errorf("timelapse.duration_ms must be positive"))
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// MaxZoom is the deepest tile zoom level the basemaps serve.
const MaxZoom = 22

// CheckZoom rejects zoom levels outside [0, MaxZoom].
func CheckZoom(z int) error {
	if z < 0 || z > MaxZoom {
		return fmt.Errorf("zoom %d out of range [0, %d]", z, MaxZoom)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
