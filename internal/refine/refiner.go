// Package refine applies the request parameter contract to an authoritative
// collection. It validates scope, filter, and order names against the
// resource schema before touching the collection, so invalid requests fail
// as a whole with typed errors and nothing is partially applied.
package refine

import (
	"context"

	"github.com/lumen-api/lumen/internal/params"
	"github.com/lumen-api/lumen/internal/schema"
	"github.com/lumen-api/lumen/internal/sieve"
)

// Record is the raw attribute form records move through the server in.
type Record = map[string]any

// Collection is the contract the refiner requires from a persistence
// engine: scope, filter, order, and paginate a set of records. Every method
// narrows and returns a derived collection; implementations must not mutate
// the receiver.
type Collection interface {
	Scope(name string) (Collection, error)
	Where(field string, value any) Collection
	Order(terms []params.OrderColumn) Collection
	Limit(n int) Collection
	Offset(n int) Collection
	Records(ctx context.Context) ([]Record, error)
}

// Source resolves individual records and their associations on top of a
// Collection. Stores implement it; the refiner stays storage-agnostic.
type Source interface {
	Collection() Collection
	Find(ctx context.Context, id string) (Record, error)
	Association(ctx context.Context, rec Record, refl *schema.Reflection) (Collection, error)
	Remote(ctx context.Context, rec Record, name string) (any, error)
}

// Refiner validates and applies accumulated query state for one resource
// type. The schema is frozen at setup time, so a Refiner is safe for
// concurrent use.
type Refiner struct {
	schema *schema.Resource
}

// New creates a refiner for the given resource schema.
func New(s *schema.Resource) *Refiner {
	return &Refiner{schema: s}
}

// ScopedBy folds the named scopes onto the collection in request order.
// Names are sieved against the whitelisted scope set; any invalid name
// fails the whole request.
func (r *Refiner) ScopedBy(c Collection, names []string) (Collection, error) {
	result := sieve.Strings(r.schema.WhitelistedScopes(), names)
	if !result.IsValid() {
		return nil, &UnknownScopeError{Names: result.Invalid()}
	}

	var err error
	for _, name := range result.Valid() {
		if c, err = c.Scope(name); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// FilterBy applies equality conditions. Keys are sieved against the union
// of attribute and reflection names; reflection keys are translated to
// their foreign key column.
func (r *Refiner) FilterBy(c Collection, filters map[string]any) (Collection, error) {
	if len(filters) == 0 {
		return c, nil
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	result := sieve.Strings(r.schema.FilterableNames(), keys)
	if !result.IsValid() {
		return nil, &UnknownAttributeError{Names: result.Invalid()}
	}

	for _, key := range result.Valid() {
		field := key
		if refl := r.schema.Reflection(key); refl != nil && refl.Kind == schema.BelongsTo {
			field = refl.ForeignKey
		}
		c = c.Where(field, filters[key])
	}
	return c, nil
}

// OrderBy validates the bare column names (direction tokens ignored)
// against the attribute set and applies the ordering, preserving the
// requested column order.
func (r *Refiner) OrderBy(c Collection, o params.Ordering) (Collection, error) {
	if o.IsZero() {
		return c, nil
	}

	result := sieve.Strings(r.schema.AttributeNames(), o.ColumnNames())
	if !result.IsValid() {
		return nil, &UnknownAttributeError{Names: result.Invalid()}
	}
	return c.Order(o.Terms()), nil
}

// RefineBy composes scopes, filters, ordering, then pagination — in that
// fixed order. Pagination is last so limit and offset apply to the final
// ordered, filtered, scoped set.
func (r *Refiner) RefineBy(c Collection, d params.Descriptor) (Collection, error) {
	c, err := r.ScopedBy(c, d.Scopes)
	if err != nil {
		return nil, err
	}
	if c, err = r.FilterBy(c, d.Filters); err != nil {
		return nil, err
	}
	if c, err = r.OrderBy(c, d.Order); err != nil {
		return nil, err
	}
	if d.Limit != nil {
		c = c.Limit(*d.Limit)
	}
	if d.Offset != nil {
		c = c.Offset(*d.Offset)
	}
	return c, nil
}

// Associated resolves the owning record, asserts the association is a
// declared reflection, then refines that association's collection with the
// same contract. The sub-collection's scopes, filters and order belong to
// the association's resource, so they are sieved against target, not
// against the owner's schema. A nil target falls back to the owner.
func (r *Refiner) Associated(ctx context.Context, src Source, id, assoc string, target *schema.Resource, d params.Descriptor) (Collection, error) {
	refl := r.schema.Reflection(assoc)
	if refl == nil || refl.Kind == schema.Remote {
		return nil, &UnknownAssociationError{Name: assoc}
	}

	rec, err := src.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := src.Association(ctx, rec, refl)
	if err != nil {
		return nil, err
	}
	if target == nil {
		target = r.schema
	}
	return New(target).RefineBy(c, d)
}

// Remoted resolves the target record, asserts the method is registered as
// remote-callable, and invokes it. The result may be a scalar, a record,
// or a collection; the caller serializes accordingly.
func (r *Refiner) Remoted(ctx context.Context, src Source, id, method string) (any, error) {
	if !r.schema.Remoted(method) {
		return nil, &UnknownRemoteError{Name: method}
	}

	rec, err := src.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return src.Remote(ctx, rec, method)
}
