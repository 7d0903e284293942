// Package http provides the rate-limited HTTP client used by the Planet
// connector.
//
// Structure:
//
//	client.go     - HTTP client with rate limiting, retry and Retry-After support
//	auth.go       - Authentication strategies (Basic, query API key, Planet)
//	paginator.go  - Link-based pagination and a generic page iterator
package http
