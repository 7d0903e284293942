// Package planet is a client for Planet Basemaps: mosaic discovery over the
// REST API and XYZ tile download from the tile service.
package planet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb/maptile"
	"go.uber.org/zap"

	phttp "github.com/nucleus/lightpipe/internal/connector/http"
)

var (
	ErrTileNotFound   = errors.New("planet: tile not found")
	ErrMosaicNotFound = errors.New("planet: mosaic not found")
)

// Client talks to the Basemaps API and tile service.
type Client struct {
	api    *phttp.Client
	tiles  *phttp.Client
	logger *zap.Logger
}

// New creates a client with the given configuration.
func New(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	apiConfig := clientConfig(config, logger)
	apiConfig.BaseURL = config.APIURL
	apiConfig.Auth = phttp.PlanetAuth{APIKey: config.APIKey}
	apiConfig.Headers["Accept"] = "application/json"

	tileConfig := clientConfig(config, logger)
	tileConfig.BaseURL = config.TilesURL
	tileConfig.Auth = phttp.QueryAPIKey{Key: config.APIKey}

	return &Client{
		api:    phttp.NewClient(apiConfig),
		tiles:  phttp.NewClient(tileConfig),
		logger: logger.Named("planet"),
	}, nil
}

func clientConfig(config *Config, logger *zap.Logger) *phttp.ClientConfig {
	c := phttp.DefaultClientConfig()
	if config.RateLimit > 0 {
		c.RateLimit = config.RateLimit
	}
	if config.RateBurst > 0 {
		c.RateBurst = config.RateBurst
	}
	if config.MaxRetries != 0 {
		c.MaxRetries = config.MaxRetries
	}
	if config.Timeout > 0 {
		c.Timeout = config.Timeout
	}
	c.Logger = logger
	return c
}

// =============================================================================
// MOSAICS
// =============================================================================

// ListMosaics returns every mosaic whose name contains nameContains.
func (c *Client) ListMosaics(ctx context.Context, nameContains string) ([]Mosaic, error) {
	query := url.Values{}
	if nameContains != "" {
		query.Set("name__contains", nameContains)
	}
	first := &phttp.Request{Method: http.MethodGet, Path: "/basemaps/v1/mosaics", Query: query}
	it := phttp.NewPaginatedIterator(c.api, first, phttp.NewLinkPaginator(),
		func(resp *phttp.Response) ([]Mosaic, error) {
			var page mosaicPage
			if err := resp.JSON(&page); err != nil {
				return nil, fmt.Errorf("decode mosaics: %w", err)
			}
			return page.Mosaics, nil
		})
	return phttp.Collect(ctx, it)
}

// GetMosaic looks a mosaic up by exact name.
func (c *Client) GetMosaic(ctx context.Context, name string) (*Mosaic, error) {
	resp, err := c.api.Get(ctx, "/basemaps/v1/mosaics", url.Values{"name__is": {name}})
	if err != nil {
		return nil, err
	}
	var page mosaicPage
	if err := resp.JSON(&page); err != nil {
		return nil, fmt.Errorf("decode mosaics: %w", err)
	}
	for i := range page.Mosaics {
		if page.Mosaics[i].Name == name {
			return &page.Mosaics[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMosaicNotFound, name)
}

// CheckMonths fails fast when the monthly mosaic of start or end is not
// published. The error names the latest monthly mosaic that is.
func (c *Client) CheckMonths(ctx context.Context, start, end time.Time) error {
	names := []string{MonthlyMosaicName(start)}
	if last := MonthlyMosaicName(end); last != names[0] {
		names = append(names, last)
	}
	for _, name := range names {
		_, err := c.GetMosaic(ctx, name)
		if errors.Is(err, ErrMosaicNotFound) {
			if latest, lerr := c.latestMonthly(ctx); lerr == nil && latest != "" {
				return fmt.Errorf("%w (latest monthly mosaic is %s)", err, latest)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) latestMonthly(ctx context.Context) (string, error) {
	mosaics, err := c.ListMosaics(ctx, monthlyPrefix)
	if err != nil {
		return "", err
	}
	latest := ""
	for _, m := range mosaics {
		if strings.HasPrefix(m.Name, monthlyPrefix) && strings.HasSuffix(m.Name, monthlySuffix) && m.Name > latest {
			latest = m.Name
		}
	}
	return latest, nil
}

// =============================================================================
// TILES
// =============================================================================

// TilePath is the tile service path of one XYZ tile.
func TilePath(mosaic string, t maptile.Tile) string {
	return fmt.Sprintf("/basemaps/v1/planet-tiles/%s/gmap/%d/%d/%d.png", url.PathEscape(mosaic), t.Z, t.X, t.Y)
}

// FetchTile downloads one PNG tile. Tiles outside the mosaic's coverage
// return ErrTileNotFound.
func (c *Client) FetchTile(ctx context.Context, mosaic string, t maptile.Tile) ([]byte, error) {
	resp, err := c.tiles.Get(ctx, TilePath(mosaic, t), nil)
	if err != nil {
		if phttp.StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s %d/%d/%d", ErrTileNotFound, mosaic, t.Z, t.X, t.Y)
		}
		return nil, fmt.Errorf("fetch tile %s %d/%d/%d: %w", mosaic, t.Z, t.X, t.Y, err)
	}
	c.logger.Debug("fetched tile",
		zap.String("mosaic", mosaic),
		zap.Uint32("z", uint32(t.Z)),
		zap.Uint32("x", t.X),
		zap.Uint32("y", t.Y),
		zap.Int("bytes", len(resp.Body)))
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return nil, fmt.Errorf("%w: %s %d/%d/%d empty", ErrTileNotFound, mosaic, t.Z, t.X, t.Y)
	}
	return resp.Body, nil
}
