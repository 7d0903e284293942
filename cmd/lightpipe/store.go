package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/nucleus/lightpipe/internal/connector/gcs"
	"github.com/nucleus/lightpipe/internal/planet"
)

// openStore resolves bucket credentials, opens the object store and checks
// that the bucket is reachable. The configured endpoint, when set, overrides
// the credentials file.
func (a *app) openStore(ctx context.Context, credPath, bucket, project string) (gcs.ObjectStore, *gcs.Config, error) {
	var (
		cfg *gcs.Config
		err error
	)
	endpoint := a.cfg.GCS.Endpoint
	if credPath == "" && strings.HasPrefix(endpoint, "file://") {
		cfg = gcs.ParseConfig(map[string]any{"endpoint": endpoint})
	} else {
		cfg, err = gcs.LoadCredentials(credPath)
		if err != nil {
			return nil, nil, err
		}
	}
	if endpoint != "" {
		cfg.EndpointURL = endpoint
	}
	if a.cfg.GCS.Region != "" {
		cfg.Region = a.cfg.GCS.Region
	}
	cfg.Bucket = strings.TrimPrefix(bucket, "gs://")
	if cfg.Project == "" {
		cfg.Project = project
	}
	store, err := gcs.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open bucket %s: %w", cfg.Bucket, err)
	}
	if err := store.Ping(ctx); err != nil {
		return nil, nil, fmt.Errorf("bucket %s: %w", cfg.Bucket, err)
	}
	return store, cfg, nil
}

func (a *app) planetClient(apiKey string) (*planet.Client, error) {
	if apiKey == "" {
		apiKey = a.cfg.Planet.APIKey
	}
	return planet.New(&planet.Config{
		APIKey:     apiKey,
		APIURL:     a.cfg.Planet.APIURL,
		TilesURL:   a.cfg.Planet.TilesURL,
		RateLimit:  a.cfg.Planet.RateLimit,
		RateBurst:  a.cfg.Planet.RateBurst,
		MaxRetries: a.cfg.Planet.MaxRetries,
		Timeout:    a.cfg.Planet.Timeout,
		Logger:     a.logger,
	})
}
