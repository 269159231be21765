package client

import (
	"context"
	"net/url"

	"github.com/lumen-api/lumen/internal/params"
	"github.com/lumen-api/lumen/internal/schema"
)

// Proxy is a lazy, immutable-per-step query builder. Every refinement
// spawns a new proxy with a derived descriptor, leaving the receiver and
// its memoized results untouched. The network is reached exactly once,
// on first materialization.
type Proxy struct {
	client     *Client
	schema     *schema.Resource
	descriptor params.Descriptor

	// owner and assoc are set on association-scoped proxies.
	owner *Record
	assoc string

	// err is sticky: a rejected refinement poisons the chain and is
	// surfaced on materialization, never spending a network call.
	err error

	memo        []*Record
	loaded      bool
	whereValues map[string]any
}

// spawn derives a new proxy carrying a modified descriptor. The memo is
// deliberately not carried over: a different descriptor is a different
// query.
func (p *Proxy) spawn(d params.Descriptor) *Proxy {
	return &Proxy{
		client:     p.client,
		schema:     p.schema,
		descriptor: d,
		owner:      p.owner,
		assoc:      p.assoc,
		err:        p.err,
	}
}

// Where spawns a proxy with conditions merged over the current filters.
// New keys win on conflict.
func (p *Proxy) Where(conditions map[string]any) *Proxy {
	return p.spawn(p.descriptor.WithFilters(conditions))
}

// Scope appends a named scope, deduplicated and order-preserving. A name
// outside the schema's whitelist poisons the chain with UnknownScopeError
// without issuing any request.
func (p *Proxy) Scope(name string) *Proxy {
	next := p.spawn(p.descriptor.WithScope(name))
	if next.err == nil && !whitelisted(p.schema, name) {
		next.err = &UnknownScopeError{Resource: p.schema.Name(), Name: name}
	}
	return next
}

// Order spawns a proxy ordered by the given expression, e.g.
// "published_at" or "published_at desc".
func (p *Proxy) Order(expr string) *Proxy {
	return p.spawn(p.descriptor.WithOrder(params.OrderString(expr)))
}

// OrderBy spawns a proxy ordered by a column with an explicit direction.
func (p *Proxy) OrderBy(column, direction string) *Proxy {
	return p.spawn(p.descriptor.WithOrder(params.OrderColumns(
		params.OrderColumn{Name: column, Direction: direction},
	)))
}

// Limit spawns a proxy capped at n records.
func (p *Proxy) Limit(n int) *Proxy {
	return p.spawn(p.descriptor.WithLimit(n))
}

// Offset spawns a proxy skipping the first n records.
func (p *Proxy) Offset(n int) *Proxy {
	return p.spawn(p.descriptor.WithOffset(n))
}

// ToParams serializes the descriptor into wire query parameters.
func (p *Proxy) ToParams() url.Values {
	return p.descriptor.Values()
}

// Records materializes the proxy, issuing the GET on first call only.
func (p *Proxy) Records(ctx context.Context) ([]*Record, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.loaded {
		return p.memo, nil
	}
	return p.load(ctx)
}

// Reload discards the memo and materializes again.
func (p *Proxy) Reload(ctx context.Context) ([]*Record, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.loaded = false
	return p.load(ctx)
}

func (p *Proxy) load(ctx context.Context) ([]*Record, error) {
	env, err := p.client.get(ctx, p.path(), p.descriptor.Values())
	if err != nil {
		return nil, err
	}

	raws, err := env.collection(p.schema)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(raws))
	md := env.meta.For(p.schema.Name())
	for _, raw := range raws {
		records = append(records, newRecord(p.client, p.schema, raw, md, true))
	}

	p.memo = records
	p.loaded = true
	p.whereValues = env.meta.WhereValues
	return records, nil
}

// First materializes with limit 1 and returns the head record, or nil.
// The limit change spawns a fresh proxy, so this is always exactly one
// request even when the receiver is already memoized.
func (p *Proxy) First(ctx context.Context) (*Record, error) {
	limited := p.Limit(1)
	records, err := limited.Records(ctx)
	if err != nil {
		return nil, err
	}
	// The where_values echoed on the limited request seed
	// FirstOrInitialize on the receiver, so carry them back.
	if limited.whereValues != nil {
		p.whereValues = limited.whereValues
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Count materializes the proxy (memoized like Records) and returns the
// collection size.
func (p *Proxy) Count(ctx context.Context) (int, error) {
	records, err := p.Records(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// FindBy is Where(conditions).First.
func (p *Proxy) FindBy(ctx context.Context, conditions map[string]any) (*Record, error) {
	return p.Where(conditions).First(ctx)
}

// FirstOrInitialize returns the first record, or builds an unpersisted
// one seeding attrs with the descriptor's filter values. Proxy-only keys
// (scopes, order, limit, offset) are excluded by construction: seeding
// reads the descriptor's filter field, not the encoded parameters.
func (p *Proxy) FirstOrInitialize(ctx context.Context, attrs map[string]any) (*Record, error) {
	rec, err := p.First(ctx)
	if err != nil || rec != nil {
		return rec, err
	}
	return newRecord(p.client, p.schema, p.seedAttributes(attrs), params.Metadata{}, false), nil
}

// FirstOrCreate is FirstOrInitialize followed by a save of the built
// record.
func (p *Proxy) FirstOrCreate(ctx context.Context, attrs map[string]any) (*Record, error) {
	rec, err := p.First(ctx)
	if err != nil || rec != nil {
		return rec, err
	}
	rec = newRecord(p.client, p.schema, p.seedAttributes(attrs), params.Metadata{}, false)
	if err := rec.Save(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// seedAttributes merges, in increasing priority: the server-echoed
// where_values from the last load, the descriptor's own filters, and the
// caller's attributes.
func (p *Proxy) seedAttributes(attrs map[string]any) map[string]any {
	seeded := make(map[string]any)
	for k, v := range p.whereValues {
		seeded[k] = v
	}
	for k, v := range p.descriptor.KnownAttributes() {
		seeded[k] = v
	}
	for k, v := range attrs {
		seeded[k] = v
	}
	return seeded
}

// Append adds a record to an association-scoped collection in memory and
// writes it back onto the owner's association cache. Nothing is sent to
// the server until the owner is saved.
func (p *Proxy) Append(ctx context.Context, rec *Record) error {
	if p.err != nil {
		return p.err
	}
	if p.owner == nil || p.assoc == "" {
		return &UnknownAssociationError{Resource: p.schema.Name(), Name: p.assoc}
	}
	if _, err := p.Records(ctx); err != nil {
		return err
	}
	p.memo = append(p.memo, rec)
	p.owner.cacheAssociation(p.assoc, p.memo)
	return nil
}

func (p *Proxy) path() string {
	if p.descriptor.From != "" {
		return p.descriptor.From
	}
	return "/" + p.schema.CollectionName() + ".json"
}

func whitelisted(res *schema.Resource, name string) bool {
	for _, s := range res.WhitelistedScopes() {
		if s == name {
			return true
		}
	}
	return false
}
