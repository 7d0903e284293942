package planet

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultAPIURL   = "https://api.planet.com"
	DefaultTilesURL = "https://tiles.planet.com"
)

// Config holds Planet connection configuration.
type Config struct {
	// APIKey is the Planet API key.
	APIKey string `json:"apiKey"`

	// APIURL serves the Basemaps REST API.
	APIURL string `json:"apiUrl,omitempty"`

	// TilesURL serves basemap XYZ tiles.
	TilesURL string `json:"tilesUrl,omitempty"`

	RateLimit  float64       `json:"rateLimit,omitempty"`
	RateBurst  int           `json:"rateBurst,omitempty"`
	MaxRetries int           `json:"maxRetries,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`

	Logger *zap.Logger `json:"-"`
}

// Validate validates the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return &ValidationError{Field: "apiKey", Message: "required"}
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.TilesURL == "" {
		c.TilesURL = DefaultTilesURL
	}
	return nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Mosaic is a basemap mosaic as returned by the Basemaps API.
type Mosaic struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	FirstAcquired time.Time `json:"first_acquired"`
	LastAcquired  time.Time `json:"last_acquired"`
	Interval      string    `json:"interval"`
	Level         int       `json:"level"`
	ProductType   string    `json:"product_type"`
	ItemType      string    `json:"item_type"`
	Datatype      string    `json:"datatype"`
	Bbox          []float64 `json:"bbox"`
	Coordinate    string    `json:"coordinate_system"`
	QuadDownload  bool      `json:"quad_download"`
}

type mosaicPage struct {
	Mosaics []Mosaic `json:"mosaics"`
}
