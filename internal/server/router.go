// Package server exposes registered resources over HTTP with the query
// convention the client package speaks: collection routes accepting
// scopes, filters, order and pagination parameters, member routes for
// associations and remote methods, and JSON envelopes carrying resource
// metadata.
package server

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumen-api/lumen/internal/cache"
	"github.com/lumen-api/lumen/internal/middleware"
	"github.com/lumen-api/lumen/internal/refine"
	"github.com/lumen-api/lumen/internal/schema"
)

// Writer is the optional write side of a source. Backends that do not
// implement it serve their resources read-only.
type Writer interface {
	Create(ctx context.Context, attrs refine.Record) (refine.Record, error)
	Update(ctx context.Context, id string, attrs refine.Record) (refine.Record, error)
	Delete(ctx context.Context, id string) error
}

// RouterConfig wires resources, their sources and the middleware stack.
type RouterConfig struct {
	// Registry holds every served resource schema.
	Registry *schema.Registry
	// Sources maps singular resource names to their backing sources.
	Sources map[string]refine.Source
	// Logger receives request logs. Defaults to a no-op logger.
	Logger *zap.Logger
	// Cache, when set, enables the response cache middleware.
	Cache cache.Cache
	// CacheTTL bounds cached responses. Zero uses the cache default.
	CacheTTL time.Duration
	// RequestTimeout bounds each request. Zero disables the deadline.
	RequestTimeout time.Duration
}

// NewRouter builds the chi router serving every registered resource.
func NewRouter(config RouterConfig) chi.Router {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.Recovery(logger),
	)
	if config.RequestTimeout > 0 {
		chain.Use(middleware.Timeout(config.RequestTimeout))
	}
	if config.Cache != nil {
		mc := cache.DefaultMiddlewareConfig(config.Cache)
		if config.CacheTTL > 0 {
			mc.TTL = config.CacheTTL
		}
		chain.Use(cache.Responses(mc))
	}

	r := chi.NewRouter()
	r.Use(chain.Then)

	for _, name := range config.Registry.List() {
		res, _ := config.Registry.Get(name)
		source, ok := config.Sources[name]
		if !ok {
			continue
		}
		registerResourceRoutes(r, newHandler(res, source, config.Registry, logger))
	}
	return r
}

func registerResourceRoutes(r chi.Router, h *handler) {
	col := "/" + h.schema.CollectionName()

	// Collection routes are registered with and without the .json format
	// suffix; member routes strip the suffix from the captured params.
	r.Get(col, h.index)
	r.Get(col+".json", h.index)
	r.Post(col, h.create)
	r.Post(col+".json", h.create)

	r.Route(col+"/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Patch("/", h.update)
		r.Put("/", h.update)
		r.Delete("/", h.destroy)
		r.Get("/{member}", h.member)
	})
}
