package client

import (
	"context"

	"github.com/lumen-api/lumen/internal/params"
	"github.com/lumen-api/lumen/internal/schema"
)

// Resource is the typed handle for one registered resource. Query
// methods spawn proxies; Find and Create hit the network directly.
type Resource struct {
	client *Client
	schema *schema.Resource
}

// All returns an unrefined proxy over the resource's collection.
func (r *Resource) All() *Proxy {
	return &Proxy{client: r.client, schema: r.schema}
}

// Where spawns a proxy with the given filter conditions.
func (r *Resource) Where(conditions map[string]any) *Proxy {
	return r.All().Where(conditions)
}

// Scope spawns a proxy with the named scope appended.
func (r *Resource) Scope(name string) *Proxy {
	return r.All().Scope(name)
}

// Order spawns a proxy ordered by the given expression.
func (r *Resource) Order(expr string) *Proxy {
	return r.All().Order(expr)
}

// Limit spawns a proxy capped at n records.
func (r *Resource) Limit(n int) *Proxy {
	return r.All().Limit(n)
}

// Offset spawns a proxy skipping the first n records.
func (r *Resource) Offset(n int) *Proxy {
	return r.All().Offset(n)
}

// Find fetches one record by primary key. Servers also accept the
// resource's natural key here.
func (r *Resource) Find(ctx context.Context, id string) (*Record, error) {
	env, err := r.client.get(ctx, r.memberPath(id), nil)
	if err != nil {
		return nil, err
	}
	raw, err := env.record(r.schema)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &NotFoundError{RequestID: env.requestID}
	}
	return newRecord(r.client, r.schema, raw, env.meta.For(r.schema.Name()), true), nil
}

// FindBy returns the first record matching the conditions, or nil.
func (r *Resource) FindBy(ctx context.Context, conditions map[string]any) (*Record, error) {
	return r.Where(conditions).First(ctx)
}

// First returns the collection's first record, or nil when empty.
func (r *Resource) First(ctx context.Context) (*Record, error) {
	return r.All().First(ctx)
}

// New builds an unpersisted record with the given attributes.
func (r *Resource) New(attrs map[string]any) *Record {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return newRecord(r.client, r.schema, attrs, params.Metadata{}, false)
}

// Create builds and saves a record in one step.
func (r *Resource) Create(ctx context.Context, attrs map[string]any) (*Record, error) {
	rec := r.New(attrs)
	if err := rec.Save(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Resource) collectionPath() string {
	return "/" + r.schema.CollectionName() + ".json"
}

func (r *Resource) memberPath(id string) string {
	return "/" + r.schema.CollectionName() + "/" + id + ".json"
}
