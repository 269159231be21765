// Package client is the consumer side of the query convention: a typed
// resource handle spawning immutable lazy proxies, materialized records
// with metadata and change tracking, and association accessors that
// fetch at most once.
package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config is the immutable client configuration. It is validated once by
// New and never mutated afterward; per-call variation happens through
// contexts, not by editing the config.
type Config struct {
	// Endpoint is the server base URL, e.g. "https://api.example.test".
	Endpoint string
	// Namespace is an optional path prefix mounted before resource routes.
	Namespace string
	// Versions lists the API versions this build supports.
	Versions []string
	// Version selects the active API version. It must be one of Versions.
	Version string
	// Timeout bounds each HTTP round trip. Zero means no client timeout.
	Timeout time.Duration
	// ClientID, when set, is appended to generated request ids as
	// "<uuid>/<client id>" so server logs can identify this instance.
	ClientID string
	// RequestRootInJSON wraps outgoing save payloads in the resource's
	// singular name. Nested payloads are never wrapped regardless.
	RequestRootInJSON bool
	// HTTPClient overrides the transport. Defaults to a fresh client
	// honoring Timeout.
	HTTPClient *http.Client
}

func (c Config) validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint must be an absolute URL, got %q", c.Endpoint)
	}

	if c.Version != "" || len(c.Versions) > 0 {
		supported := false
		for _, v := range c.Versions {
			if v == c.Version {
				supported = true
				break
			}
		}
		if !supported {
			return fmt.Errorf("version %q is not supported (supported: %s)",
				c.Version, strings.Join(c.Versions, ", "))
		}
	}
	return nil
}

// basePath joins the namespace and version segments under the endpoint.
func (c Config) basePath() string {
	segments := []string{strings.TrimRight(c.Endpoint, "/")}
	if c.Namespace != "" {
		segments = append(segments, strings.Trim(c.Namespace, "/"))
	}
	if c.Version != "" {
		segments = append(segments, c.Version)
	}
	return strings.Join(segments, "/")
}
