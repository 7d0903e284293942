package gcs

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultEndpoint is the S3-interoperable XML API of Google Cloud Storage.
	DefaultEndpoint = "https://storage.googleapis.com"
	defaultRegion   = "auto"

	envAccessKey = "GCS_HMAC_ACCESS_KEY"
	envSecretKey = "GCS_HMAC_SECRET"
	envEndpoint  = "LIGHTPIPE_GCS_ENDPOINT"
)

// Config captures how to reach a bucket.
type Config struct {
	EndpointURL     string
	Region          string
	UseSSL          bool
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Project         string

	// RootPathOverride forces the LocalStore root for file:// endpoints.
	RootPathOverride string
}

// ParseConfig builds a Config from loose parameters, as found in a credentials
// file or a YAML config section.
func ParseConfig(params map[string]any) *Config {
	cfg := &Config{
		EndpointURL:     firstString(params, "endpoint", "endpointUrl", "endpoint_url", "url"),
		Region:          firstString(params, "region"),
		UseSSL:          firstBool(params, true, "useSSL", "use_ssl"),
		AccessKeyID:     firstString(params, "access_key_id", "accessKeyId", "accessKeyID", "access_key"),
		SecretAccessKey: firstString(params, "secret_access_key", "secretAccessKey", "secret", "secret_key"),
		Bucket:          firstString(params, "bucket"),
		Project:         firstString(params, "project_id", "projectId", "project"),
		RootPathOverride: firstString(params,
			"rootPath", "root_path"),
	}
	cfg.normalizeDefaults()
	return cfg
}

// LoadCredentials reads an HMAC credentials file (JSON or YAML). An empty path
// falls back to the GCS_HMAC_ACCESS_KEY and GCS_HMAC_SECRET environment
// variables. Service-account key files are rejected: the XML API only accepts
// HMAC keys.
func LoadCredentials(path string) (*Config, error) {
	if path == "" {
		cfg := ParseConfig(map[string]any{
			"access_key_id":     os.Getenv(envAccessKey),
			"secret_access_key": os.Getenv(envSecretKey),
		})
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, wrapError(CodeAuthInvalid, false,
				fmt.Errorf("no credentials file given and %s/%s unset", envAccessKey, envSecretKey))
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(CodeAuthInvalid, false, fmt.Errorf("read credentials: %w", err))
	}

	params := map[string]any{}
	if err := json.Unmarshal(data, &params); err != nil {
		if yerr := yaml.Unmarshal(data, &params); yerr != nil {
			return nil, wrapError(CodeAuthInvalid, false, fmt.Errorf("parse credentials %s: %w", path, yerr))
		}
	}

	if strings.EqualFold(firstString(params, "type"), "service_account") {
		return nil, wrapError(CodeAuthInvalid, false,
			fmt.Errorf("%s is a service account key; create an HMAC key for the service account instead", path))
	}

	cfg := ParseConfig(params)
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, wrapError(CodeAuthInvalid, false, fmt.Errorf("%s: access_key_id and secret_access_key are required", path))
	}
	return cfg, nil
}

// Validate enforces required fields.
func (c *Config) Validate() error {
	if c.EndpointURL == "" {
		return wrapError(CodeEndpointUnreachable, false, fmt.Errorf("endpoint is required"))
	}
	if _, err := url.Parse(c.EndpointURL); err != nil {
		return wrapError(CodeEndpointUnreachable, false, err)
	}
	if c.isLocal() {
		return nil
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return wrapError(CodeAuthInvalid, false, fmt.Errorf("access key and secret are required"))
	}
	return nil
}

func (c *Config) normalizeDefaults() {
	if c.EndpointURL == "" {
		c.EndpointURL = os.Getenv(envEndpoint)
	}
	if c.EndpointURL == "" {
		c.EndpointURL = DefaultEndpoint
	}
	if c.Region == "" {
		c.Region = defaultRegion
	}
	c.Bucket = strings.TrimPrefix(c.Bucket, "gs://")
}

func (c *Config) isLocal() bool {
	return strings.HasPrefix(c.EndpointURL, "file://")
}

func (c *Config) objectRoot() string {
	if c.RootPathOverride != "" {
		return c.RootPathOverride
	}
	if u, err := url.Parse(c.EndpointURL); err == nil && u.Path != "" {
		return u.Path
	}
	return filepath.Join(os.TempDir(), "lightpipe-objects")
}

func firstString(params map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := params[key]; ok {
			switch t := v.(type) {
			case string:
				return strings.TrimSpace(t)
			case fmt.Stringer:
				return strings.TrimSpace(t.String())
			}
		}
	}
	return ""
}

func firstBool(params map[string]any, defaultVal bool, keys ...string) bool {
	for _, key := range keys {
		if v, ok := params[key]; ok {
			switch t := v.(type) {
			case bool:
				return t
			case string:
				lowered := strings.ToLower(strings.TrimSpace(t))
				if lowered == "true" {
					return true
				}
				if lowered == "false" {
					return false
				}
			}
		}
	}
	return defaultVal
}

func sanitizePath(raw string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_", "\\", "_")
	return replacer.Replace(raw)
}
