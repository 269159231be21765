package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// MiddlewareConfig holds configuration for the response cache middleware.
type MiddlewareConfig struct {
	// Cache is the backend to use.
	Cache Cache
	// TTL is the time-to-live for cached responses.
	TTL time.Duration
	// SkipPaths lists paths that bypass the cache entirely.
	SkipPaths []string
}

// DefaultMiddlewareConfig returns a stock middleware configuration.
func DefaultMiddlewareConfig(c Cache) MiddlewareConfig {
	return MiddlewareConfig{
		Cache: c,
		TTL:   5 * time.Minute,
	}
}

// Responses caches successful GET responses keyed by collection, path and
// query string. Any successful write request drops every cached response
// for the collection it touched, so index, show and association reads all
// see the new state.
func Responses(config MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range config.SkipPaths {
				if r.URL.Path == skip {
					next.ServeHTTP(w, r)
					return
				}
			}

			collection := collectionSegment(r.URL.Path)
			if collection == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()

			if r.Method != http.MethodGet {
				recorder := newRecorder(w)
				next.ServeHTTP(recorder, r)
				if recorder.status >= 200 && recorder.status < 300 {
					config.Cache.DeletePrefix(ctx, collectionPrefix(collection))
				}
				return
			}

			key := responseKey(collection, r)
			if data, err := config.Cache.Get(ctx, key); err == nil {
				var cached cachedResponse
				if err := json.Unmarshal(data, &cached); err == nil {
					for name, values := range cached.Headers {
						for _, value := range values {
							w.Header().Add(name, value)
						}
					}
					w.Header().Set("X-Cache", "HIT")
					w.WriteHeader(cached.Status)
					w.Write(cached.Body)
					return
				}
			}

			recorder := newRecorder(w)
			recorder.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(recorder, r)

			if recorder.status >= 200 && recorder.status < 300 {
				cached := cachedResponse{
					Status:  recorder.status,
					Headers: recorder.Header().Clone(),
					Body:    recorder.body.Bytes(),
				}
				cached.Headers.Del("X-Cache")
				if data, err := json.Marshal(cached); err == nil {
					config.Cache.Set(ctx, key, data, config.TTL)
				}
			}
		})
	}
}

type cachedResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// collectionSegment extracts the collection name from a resource path,
// tolerating the trailing .json format suffix on single-segment paths.
func collectionSegment(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ""
	}
	first := strings.SplitN(trimmed, "/", 2)[0]
	return strings.TrimSuffix(first, ".json")
}

func collectionPrefix(collection string) string {
	return "resp:" + collection + ":"
}

func responseKey(collection string, r *http.Request) string {
	sum := sha256.Sum256([]byte(r.URL.Path + "?" + r.URL.RawQuery))
	return collectionPrefix(collection) + hex.EncodeToString(sum[:])
}

type recorder struct {
	http.ResponseWriter
	status      int
	body        *bytes.Buffer
	wroteHeader bool
}

func newRecorder(w http.ResponseWriter) *recorder {
	return &recorder{
		ResponseWriter: w,
		status:         http.StatusOK,
		body:           new(bytes.Buffer),
	}
}

func (r *recorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
		r.ResponseWriter.WriteHeader(status)
	}
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(r.status)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
