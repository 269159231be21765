package client

import (
	"context"
	"fmt"

	"github.com/lumen-api/lumen/internal/schema"
)

// Association returns a proxy scoped to a has_many association's
// sub-collection endpoint, for further chained refinement.
func (r *Record) Association(name string) (*Proxy, error) {
	refl := r.schema.Reflection(name)
	if refl == nil || refl.Kind == schema.Remote {
		return nil, &UnknownAssociationError{Resource: r.schema.Name(), Name: name}
	}
	target, err := r.targetSchema(refl)
	if err != nil {
		return nil, err
	}

	p := &Proxy{client: r.client, schema: target, owner: r, assoc: name}
	p.descriptor = p.descriptor.WithFrom(
		"/" + r.schema.CollectionName() + "/" + r.idString() + "/" + name + ".json")
	return p, nil
}

// Many resolves a collection-valued association. The first access reads
// embedded attributes when the payload carries them (zero fetches) or
// issues exactly one GET; afterwards the cache answers.
func (r *Record) Many(ctx context.Context, name string) ([]*Record, error) {
	if cached, ok := r.assocCache[name]; ok {
		if recs, ok := cached.([]*Record); ok {
			return recs, nil
		}
	}

	refl := r.schema.Reflection(name)
	if refl == nil || refl.Singular() || refl.Kind == schema.Remote {
		return nil, &UnknownAssociationError{Resource: r.schema.Name(), Name: name}
	}
	target, err := r.targetSchema(refl)
	if err != nil {
		return nil, err
	}

	if embedded, ok := r.attrs[refl.NestedAttributesKey()].([]any); ok {
		records := make([]*Record, 0, len(embedded))
		for _, raw := range embedded {
			attrs, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("embedded %s payload is not an object", name)
			}
			records = append(records, newRecord(r.client, target, attrs, r.metadata, true))
		}
		r.cacheAssociation(name, records)
		return records, nil
	}

	proxy, err := r.Association(name)
	if err != nil {
		return nil, err
	}
	records, err := proxy.Records(ctx)
	if err != nil {
		return nil, err
	}
	r.cacheAssociation(name, records)
	return records, nil
}

// One resolves a single-valued association: belongs_to by foreign key,
// has_one by inverse filter, and through variants by reading the target
// key inside the through association's nested payload. Cache-once, like
// Many.
func (r *Record) One(ctx context.Context, name string) (*Record, error) {
	if cached, ok := r.assocCache[name]; ok {
		if rec, ok := cached.(*Record); ok {
			return rec, nil
		}
	}

	refl := r.schema.Reflection(name)
	if refl == nil || !refl.Singular() {
		return nil, &UnknownAssociationError{Resource: r.schema.Name(), Name: name}
	}
	target, err := r.targetSchema(refl)
	if err != nil {
		return nil, err
	}

	if embedded, ok := r.attrs[refl.NestedAttributesKey()].(map[string]any); ok {
		rec := newRecord(r.client, target, embedded, r.metadata, true)
		r.cacheAssociation(name, rec)
		return rec, nil
	}

	var rec *Record
	switch {
	case refl.Through != "":
		rec, err = r.resolveThrough(ctx, refl, target)
	case refl.Kind == schema.BelongsTo:
		fk := r.attrs[refl.ForeignKey]
		if fk == nil {
			return nil, nil
		}
		resource := &Resource{client: r.client, schema: target}
		rec, err = resource.Find(ctx, fmt.Sprintf("%v", fk))
	case refl.Kind == schema.HasOne:
		resource := &Resource{client: r.client, schema: target}
		rec, err = resource.FindBy(ctx, map[string]any{refl.ForeignKey: r.ID()})
	default:
		return nil, &UnknownAssociationError{Resource: r.schema.Name(), Name: name}
	}
	if err != nil {
		return nil, err
	}
	if rec != nil {
		r.cacheAssociation(name, rec)
	}
	return rec, nil
}

// resolveThrough reads the target foreign key from inside the through
// association's nested payload; the server encodes the multi-hop key
// nested rather than flattened. When no nested payload is embedded, the
// through record itself is resolved first.
func (r *Record) resolveThrough(ctx context.Context, refl *schema.Reflection, target *schema.Resource) (*Record, error) {
	var fk any
	if nested, ok := r.attrs[nestedKeyFor(refl.Through)].(map[string]any); ok {
		fk = nested[refl.ForeignKey]
	} else {
		through, err := r.One(ctx, refl.Through)
		if err != nil {
			return nil, err
		}
		if through == nil {
			return nil, nil
		}
		fk = through.Attr(refl.ForeignKey)
	}
	if fk == nil {
		return nil, nil
	}

	resource := &Resource{client: r.client, schema: target}
	return resource.Find(ctx, fmt.Sprintf("%v", fk))
}

// Remote invokes a declared remote method, unwrapping a single-key root
// matching the method name. The result is cached for the record's
// lifetime.
func (r *Record) Remote(ctx context.Context, name string) (any, error) {
	if cached, ok := r.assocCache[name]; ok {
		return cached, nil
	}
	if !r.schema.Remoted(name) {
		return nil, &UnknownAssociationError{Resource: r.schema.Name(), Name: name}
	}

	path := "/" + r.schema.CollectionName() + "/" + r.idString() + "/" + name + ".json"
	env, err := r.client.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	result, ok := env.value(name)
	if !ok {
		// No matching root: surface the remaining payload as-is.
		all := make(map[string]any, len(env.keys))
		for key := range env.keys {
			if v, ok := env.value(key); ok {
				all[key] = v
			}
		}
		result = any(all)
	}
	r.assocCache[name] = result
	r.accessed[name] = true
	return result, nil
}

// SetMany replaces a collection association in the cache. The change is
// staged under {name}_attributes on the owner's next save.
func (r *Record) SetMany(name string, records []*Record) error {
	refl := r.schema.Reflection(name)
	if refl == nil || refl.Singular() || refl.Kind == schema.Remote {
		return &UnknownAssociationError{Resource: r.schema.Name(), Name: name}
	}
	r.cacheAssociation(name, records)
	// Replacing the collection always counts as a membership change.
	r.assocCount[name] = -1
	return nil
}

// SetOne assigns a single-valued association. belongs_to stores the
// foreign key on the owner; has_one stores the owner's key on the
// target; through variants write into the through association's nested
// payload.
func (r *Record) SetOne(name string, rec *Record) error {
	refl := r.schema.Reflection(name)
	if refl == nil || !refl.Singular() {
		return &UnknownAssociationError{Resource: r.schema.Name(), Name: name}
	}

	switch {
	case refl.Through != "":
		key := nestedKeyFor(refl.Through)
		nested, ok := r.attrs[key].(map[string]any)
		if !ok {
			nested = make(map[string]any)
			r.attrs[key] = nested
		}
		nested[refl.ForeignKey] = rec.ID()
	case refl.Kind == schema.BelongsTo:
		if err := r.Set(refl.ForeignKey, rec.ID()); err != nil {
			return err
		}
	case refl.Kind == schema.HasOne:
		if err := rec.Set(refl.ForeignKey, r.ID()); err != nil {
			return err
		}
	default:
		return &UnknownAssociationError{Resource: r.schema.Name(), Name: name}
	}

	r.cacheAssociation(name, rec)
	return nil
}

func (r *Record) targetSchema(refl *schema.Reflection) (*schema.Resource, error) {
	target, ok := r.client.registry.Get(refl.Target)
	if !ok {
		return nil, fmt.Errorf("association %s targets unregistered resource %s", refl.Name, refl.Target)
	}
	return target, nil
}

func nestedKeyFor(name string) string {
	return name + "_attributes"
}
