package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumen-api/lumen/internal/params"
	"github.com/lumen-api/lumen/internal/schema"
)

// Record is one materialized resource instance: its attributes, the
// metadata envelope it arrived with, and a private association cache.
// Records are not safe for concurrent mutation.
type Record struct {
	client   *Client
	schema   *schema.Resource
	attrs    map[string]any
	metadata params.Metadata

	// snapshot holds the attributes as of the last load or save; change
	// tracking compares against it.
	snapshot  map[string]any
	persisted bool

	assocCache map[string]any
	assocCount map[string]int
	accessed   map[string]bool
}

func newRecord(c *Client, res *schema.Resource, raw map[string]any, md params.Metadata, persisted bool) *Record {
	attrs := make(map[string]any, len(raw))
	for k, v := range raw {
		attrs[k] = v
	}

	// A meta key inside the record payload is the envelope, never an
	// attribute: strip it and merge it into the record's metadata.
	if nested, ok := attrs["meta"]; ok {
		delete(attrs, "meta")
		if decoded := decodeMeta(nested); !decoded.IsZero() {
			md = decoded.For(res.Name())
		}
	}

	return &Record{
		client:     c,
		schema:     res,
		attrs:      attrs,
		metadata:   md,
		snapshot:   copyAttrs(attrs),
		persisted:  persisted,
		assocCache: make(map[string]any),
		assocCount: make(map[string]int),
		accessed:   make(map[string]bool),
	}
}

// ID returns the primary key value, or nil for unpersisted records.
func (r *Record) ID() any { return r.attrs["id"] }

func (r *Record) idString() string { return fmt.Sprintf("%v", r.attrs["id"]) }

// Attr reads one attribute.
func (r *Record) Attr(name string) any { return r.attrs[name] }

// Attributes returns a copy of the attribute map.
func (r *Record) Attributes() map[string]any { return copyAttrs(r.attrs) }

// Metadata returns the envelope metadata the record arrived with.
func (r *Record) Metadata() params.Metadata { return r.metadata }

// Persisted reports whether the record exists on the server.
func (r *Record) Persisted() bool { return r.persisted }

// ReadOnly reports whether an attribute may not be written, from the
// response metadata or the schema declaration.
func (r *Record) ReadOnly(name string) bool {
	if r.metadata.ReadOnlyAttr(name) {
		return true
	}
	for _, ro := range r.schema.ReadOnly() {
		if ro == name {
			return true
		}
	}
	return false
}

// Set writes an attribute. Read-only names fail fast with ReadOnlyError
// before anything reaches the network.
func (r *Record) Set(name string, value any) error {
	if r.ReadOnly(name) {
		return &ReadOnlyError{Resource: r.schema.Name(), Attribute: name}
	}
	r.attrs[name] = value
	return nil
}

// Save persists the changed subtree. New records POST to the collection;
// persisted records PATCH their member path. On success the record and
// every staged child reset to unchanged.
func (r *Record) Save(ctx context.Context) error {
	visited := make(map[*Record]bool)
	payload := r.savePayload(true, visited)

	var env *envelope
	var err error
	if r.persisted {
		env, err = r.client.patch(ctx, r.memberPath(), payload)
	} else {
		env, err = r.client.post(ctx, r.collectionPath(), payload)
	}
	if err != nil {
		return err
	}

	if raw, recErr := env.record(r.schema); recErr == nil && raw != nil {
		r.attrs = raw
		if md := env.meta.For(r.schema.Name()); !md.IsZero() {
			r.metadata = md
		}
	}
	r.resetSaved(make(map[*Record]bool))
	return nil
}

// Destroy deletes the record on the server.
func (r *Record) Destroy(ctx context.Context) error {
	if err := r.client.delete(ctx, r.memberPath()); err != nil {
		return err
	}
	r.persisted = false
	return nil
}

// Reload refetches the record, dropping local changes and the
// association cache.
func (r *Record) Reload(ctx context.Context) error {
	env, err := r.client.get(ctx, r.memberPath(), nil)
	if err != nil {
		return err
	}
	raw, err := env.record(r.schema)
	if err != nil {
		return err
	}
	if raw == nil {
		return &NotFoundError{RequestID: env.requestID}
	}

	fresh := newRecord(r.client, r.schema, raw, env.meta.For(r.schema.Name()), true)
	r.attrs = fresh.attrs
	r.metadata = fresh.metadata
	r.snapshot = fresh.snapshot
	r.persisted = true
	r.assocCache = make(map[string]any)
	r.assocCount = make(map[string]int)
	r.accessed = make(map[string]bool)
	return nil
}

func (r *Record) collectionPath() string {
	return "/" + r.schema.CollectionName() + ".json"
}

func (r *Record) memberPath() string {
	return "/" + r.schema.CollectionName() + "/" + r.idString() + ".json"
}

func (r *Record) cacheAssociation(name string, value any) {
	r.assocCache[name] = value
	r.accessed[name] = true
	if recs, ok := value.([]*Record); ok {
		r.assocCount[name] = len(recs)
	}
}

// copyAttrs deep-copies maps and slices so snapshots are not aliased by
// in-place mutation of nested payloads.
func copyAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyAttrs(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

func decodeMeta(v any) params.Meta {
	data, err := json.Marshal(v)
	if err != nil {
		return params.Meta{}
	}
	var meta params.Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return params.Meta{}
	}
	return meta
}
