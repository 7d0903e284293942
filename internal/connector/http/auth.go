package http

import (
	"encoding/base64"
	"net/http"
)

// =============================================================================
// AUTHENTICATION STRATEGIES
// =============================================================================

// AuthConfig represents authentication configuration.
type AuthConfig interface {
	Apply(req *http.Request)
}

// NoAuth represents no authentication.
type NoAuth struct{}

func (a NoAuth) Apply(req *http.Request) {}

// BasicAuth uses HTTP Basic Authentication.
type BasicAuth struct {
	Username string
	Password string
}

// Apply adds Basic auth header to the request.
func (a BasicAuth) Apply(req *http.Request) {
	if a.Username == "" && a.Password == "" {
		return
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	req.Header.Set("Authorization", "Basic "+credentials)
}

// QueryAPIKey sends the key as a URL query parameter, as tile servers expect.
type QueryAPIKey struct {
	Key   string
	Param string // default: api_key
}

// Apply sets the query parameter on the request URL.
func (a QueryAPIKey) Apply(req *http.Request) {
	if a.Key == "" {
		return
	}
	param := a.Param
	if param == "" {
		param = "api_key"
	}
	q := req.URL.Query()
	q.Set(param, a.Key)
	req.URL.RawQuery = q.Encode()
}

// PlanetAuth is Planet's scheme: the API key is the basic-auth username with an
// empty password.
type PlanetAuth struct {
	APIKey string
}

// Apply adds the Planet auth header to the request.
func (a PlanetAuth) Apply(req *http.Request) {
	if a.APIKey == "" {
		return
	}
	BasicAuth{Username: a.APIKey}.Apply(req)
}
