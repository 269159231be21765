// Package store provides Collection implementations the refiner can be
// pointed at: an in-memory store used by tests and the demo server, and a
// database/sql-backed store for real data.
package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/lumen-api/lumen/internal/params"
	"github.com/lumen-api/lumen/internal/refine"
	"github.com/lumen-api/lumen/internal/schema"
)

// ScopeFunc is a registered scope predicate.
type ScopeFunc func(refine.Record) bool

// RemoteFunc computes a remote method result for one record.
type RemoteFunc func(context.Context, refine.Record) (any, error)

// ValidateFunc checks a write payload, returning field→messages on failure.
type ValidateFunc func(refine.Record) map[string][]string

// Memory is an in-memory Source with write support. Scope and remote
// implementations are registered at setup time, matching the schema's
// declarations; registration is not safe once requests are being served.
type Memory struct {
	schema *schema.Resource
	set    *Set

	mu       sync.RWMutex
	records  []refine.Record
	nextID   int
	scopes   map[string]ScopeFunc
	remotes  map[string]RemoteFunc
	validate ValidateFunc
}

// Set resolves sibling stores so associations can cross resource types.
type Set struct {
	stores map[string]*Memory
}

// NewSet creates an empty store set.
func NewSet() *Set {
	return &Set{stores: make(map[string]*Memory)}
}

// NewMemory creates a store for the given schema and adds it to the set.
func (s *Set) NewMemory(res *schema.Resource) *Memory {
	m := &Memory{
		schema:  res,
		set:     s,
		nextID:  1,
		scopes:  make(map[string]ScopeFunc),
		remotes: make(map[string]RemoteFunc),
	}
	s.stores[res.Name()] = m
	return m
}

// Get retrieves the store for a resource by singular name.
func (s *Set) Get(name string) (*Memory, bool) {
	m, ok := s.stores[name]
	return m, ok
}

// Schema returns the store's frozen schema.
func (m *Memory) Schema() *schema.Resource { return m.schema }

// RegisterScope installs the predicate backing a declared scope.
func (m *Memory) RegisterScope(name string, fn ScopeFunc) {
	m.scopes[name] = fn
}

// RegisterRemote installs the implementation of a declared remote method.
func (m *Memory) RegisterRemote(name string, fn RemoteFunc) {
	m.remotes[name] = fn
}

// Validate installs the write validation hook.
func (m *Memory) Validate(fn ValidateFunc) { m.validate = fn }

// Insert seeds a record without validation, assigning an id when absent.
// Intended for tests and fixtures.
func (m *Memory) Insert(attrs refine.Record) refine.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := copyRecord(attrs)
	if _, ok := rec["id"]; !ok {
		rec["id"] = m.nextID
	}
	m.bumpNextID(rec["id"])
	m.records = append(m.records, rec)
	return copyRecord(rec)
}

// Collection returns the unrefined collection of all records.
func (m *Memory) Collection() refine.Collection {
	return &memCollection{store: m}
}

// Find resolves a record by primary key, falling back to the schema's
// natural key when one is declared.
func (m *Memory) Find(ctx context.Context, id string) (refine.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if looseEqual(rec["id"], id) {
			return copyRecord(rec), nil
		}
	}
	if key := m.schema.NaturalKey(); key != "" {
		for _, rec := range m.records {
			if looseEqual(rec[key], id) {
				return copyRecord(rec), nil
			}
		}
	}
	return nil, &NotFoundError{Resource: m.schema.Name(), ID: id}
}

// Association returns the target collection for a reflection of rec.
// Through associations hop the intermediate belongs_to first.
func (m *Memory) Association(ctx context.Context, rec refine.Record, refl *schema.Reflection) (refine.Collection, error) {
	if refl.Through != "" {
		through := m.schema.Reflection(refl.Through)
		throughRec, err := m.belongsToRecord(ctx, rec, through)
		if err != nil {
			return nil, err
		}
		target, err := m.sibling(refl.Target)
		if err != nil {
			return nil, err
		}
		return target.Collection().Where("id", throughRec[refl.ForeignKey]), nil
	}

	target, err := m.sibling(refl.Target)
	if err != nil {
		return nil, err
	}
	switch refl.Kind {
	case schema.BelongsTo:
		return target.Collection().Where("id", rec[refl.ForeignKey]), nil
	case schema.HasMany, schema.HasOne:
		return target.Collection().Where(refl.ForeignKey, rec["id"]), nil
	default:
		return nil, fmt.Errorf("association %s is not traversable", refl.Name)
	}
}

// Remote invokes a registered remote method implementation.
func (m *Memory) Remote(ctx context.Context, rec refine.Record, name string) (any, error) {
	fn, ok := m.remotes[name]
	if !ok {
		return nil, fmt.Errorf("remote method %s declared but not implemented on %s", name, m.schema.Name())
	}
	return fn(ctx, rec)
}

// Create validates and inserts a new record, applying nested attribute
// payloads to their associations.
func (m *Memory) Create(ctx context.Context, attrs refine.Record) (refine.Record, error) {
	attrs, nested, err := m.splitNested(attrs)
	if err != nil {
		return nil, err
	}
	if err := m.checkWrite(attrs); err != nil {
		return nil, err
	}

	m.mu.Lock()
	rec := copyRecord(attrs)
	rec["id"] = m.nextID
	m.nextID++
	m.records = append(m.records, rec)
	m.mu.Unlock()

	if err := m.applyNested(ctx, rec, nested); err != nil {
		return nil, err
	}
	return m.Find(ctx, stringifyID(rec["id"]))
}

// Update validates and merges attrs into an existing record.
func (m *Memory) Update(ctx context.Context, id string, attrs refine.Record) (refine.Record, error) {
	attrs, nested, err := m.splitNested(attrs)
	if err != nil {
		return nil, err
	}
	if err := m.checkWrite(attrs); err != nil {
		return nil, err
	}

	m.mu.Lock()
	var target refine.Record
	for _, rec := range m.records {
		if looseEqual(rec["id"], id) {
			target = rec
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return nil, &NotFoundError{Resource: m.schema.Name(), ID: id}
	}
	for k, v := range attrs {
		if k == "id" {
			continue
		}
		target[k] = v
	}
	m.mu.Unlock()

	if err := m.applyNested(ctx, target, nested); err != nil {
		return nil, err
	}
	return m.Find(ctx, id)
}

// Delete removes a record by primary key.
func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, rec := range m.records {
		if looseEqual(rec["id"], id) {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return &NotFoundError{Resource: m.schema.Name(), ID: id}
}

// checkWrite rejects undeclared and read-only attribute names.
func (m *Memory) checkWrite(attrs refine.Record) error {
	var unpermitted []string
	for key := range attrs {
		if !m.schema.HasAttribute(key) {
			unpermitted = append(unpermitted, key)
		}
	}
	for _, name := range m.schema.ReadOnly() {
		if _, ok := attrs[name]; ok {
			unpermitted = append(unpermitted, name)
		}
	}
	if len(unpermitted) > 0 {
		sort.Strings(unpermitted)
		return &UnpermittedParameterError{Names: unpermitted}
	}

	if m.validate != nil {
		if fields := m.validate(attrs); len(fields) > 0 {
			return &ValidationError{Fields: fields}
		}
	}
	return nil
}

// splitNested separates `{name}_attributes` payloads for declared nested
// resources from plain attributes. Nested keys for undeclared associations
// are unpermitted.
func (m *Memory) splitNested(attrs refine.Record) (refine.Record, map[string]any, error) {
	plain := make(refine.Record, len(attrs))
	nested := make(map[string]any)

	allowed := make(map[string]string)
	for _, name := range m.schema.NestedResources() {
		refl := m.schema.Reflection(name)
		allowed[refl.NestedAttributesKey()] = name
	}

	for key, value := range attrs {
		if name, ok := allowed[key]; ok {
			nested[name] = value
			continue
		}
		plain[key] = value
	}
	return plain, nested, nil
}

// applyNested writes nested payloads through the association's target
// store, keying children to the owner.
func (m *Memory) applyNested(ctx context.Context, owner refine.Record, nested map[string]any) error {
	for name, payload := range nested {
		refl := m.schema.Reflection(name)
		target, err := m.sibling(refl.Target)
		if err != nil {
			return err
		}

		children, err := childPayloads(name, payload)
		if err != nil {
			return err
		}
		for _, child := range children {
			if refl.Kind == schema.HasMany || refl.Kind == schema.HasOne {
				child[refl.ForeignKey] = owner["id"]
			}
			if id, ok := child["id"]; ok {
				delete(child, "id")
				if _, err := target.Update(ctx, stringifyID(id), child); err != nil {
					return err
				}
				continue
			}
			created, err := target.Create(ctx, child)
			if err != nil {
				return err
			}
			if refl.Kind == schema.BelongsTo {
				m.mu.Lock()
				owner[refl.ForeignKey] = created["id"]
				m.mu.Unlock()
			}
		}
	}
	return nil
}

func (m *Memory) belongsToRecord(ctx context.Context, rec refine.Record, refl *schema.Reflection) (refine.Record, error) {
	if refl == nil || refl.Kind != schema.BelongsTo {
		return nil, fmt.Errorf("through association must be a belongs_to")
	}
	target, err := m.sibling(refl.Target)
	if err != nil {
		return nil, err
	}
	return target.Find(ctx, stringifyID(rec[refl.ForeignKey]))
}

func (m *Memory) sibling(name string) (*Memory, error) {
	target, ok := m.set.Get(name)
	if !ok {
		return nil, fmt.Errorf("no store registered for resource %s", name)
	}
	return target, nil
}

func (m *Memory) bumpNextID(id any) {
	if n, err := strconv.Atoi(stringifyID(id)); err == nil && n >= m.nextID {
		m.nextID = n + 1
	}
}

func childPayloads(name string, payload any) ([]refine.Record, error) {
	switch value := payload.(type) {
	case []any:
		out := make([]refine.Record, 0, len(value))
		for _, item := range value {
			child, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("nested %s payload must contain objects", name)
			}
			out = append(out, copyRecord(child))
		}
		return out, nil
	case []map[string]any:
		out := make([]refine.Record, 0, len(value))
		for _, item := range value {
			out = append(out, copyRecord(item))
		}
		return out, nil
	case map[string]any:
		return []refine.Record{copyRecord(value)}, nil
	default:
		return nil, fmt.Errorf("nested %s payload must be an object or array", name)
	}
}

// memCollection is an immutable chain of refinements over a Memory store.
// Records snapshots the store at materialization time.
type memCollection struct {
	store  *Memory
	scopes []ScopeFunc
	preds  []predicate
	order  []params.OrderColumn
	limit  *int
	offset *int
}

type predicate struct {
	field string
	value any
}

func (c *memCollection) clone() *memCollection {
	next := &memCollection{store: c.store, limit: c.limit, offset: c.offset}
	next.scopes = append(next.scopes, c.scopes...)
	next.preds = append(next.preds, c.preds...)
	next.order = append(next.order, c.order...)
	return next
}

func (c *memCollection) Scope(name string) (refine.Collection, error) {
	fn, ok := c.store.scopes[name]
	if !ok {
		return nil, fmt.Errorf("scope %s declared but not implemented on %s", name, c.store.schema.Name())
	}
	next := c.clone()
	next.scopes = append(next.scopes, fn)
	return next, nil
}

func (c *memCollection) Where(field string, value any) refine.Collection {
	next := c.clone()
	next.preds = append(next.preds, predicate{field: field, value: value})
	return next
}

func (c *memCollection) Order(terms []params.OrderColumn) refine.Collection {
	next := c.clone()
	next.order = append([]params.OrderColumn{}, terms...)
	return next
}

func (c *memCollection) Limit(n int) refine.Collection {
	next := c.clone()
	next.limit = &n
	return next
}

func (c *memCollection) Offset(n int) refine.Collection {
	next := c.clone()
	next.offset = &n
	return next
}

func (c *memCollection) Records(ctx context.Context) ([]refine.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.store.mu.RLock()
	matched := make([]refine.Record, 0, len(c.store.records))
	for _, rec := range c.store.records {
		if c.matches(rec) {
			matched = append(matched, copyRecord(rec))
		}
	}
	c.store.mu.RUnlock()

	if len(c.order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return orderLess(matched[i], matched[j], c.order)
		})
	}

	if c.offset != nil {
		if *c.offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[*c.offset:]
		}
	}
	if c.limit != nil && *c.limit < len(matched) {
		matched = matched[:*c.limit]
	}
	return matched, nil
}

func (c *memCollection) matches(rec refine.Record) bool {
	for _, scope := range c.scopes {
		if !scope(rec) {
			return false
		}
	}
	for _, pred := range c.preds {
		if !looseEqual(rec[pred.field], pred.value) {
			return false
		}
	}
	return true
}

func orderLess(a, b refine.Record, terms []params.OrderColumn) bool {
	for _, term := range terms {
		cmp := compareValues(a[term.Name], b[term.Name])
		if cmp == 0 {
			continue
		}
		if term.Direction == "desc" {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

// compareValues orders numbers numerically and everything else lexically.
// Nils sort first.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}

	sa, sb := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

// looseEqual compares a stored value with a wire value, which arrives as a
// string regardless of the stored type.
func looseEqual(stored, requested any) bool {
	if stored == nil || requested == nil {
		return stored == requested
	}
	if fa, aok := toFloat(stored); aok {
		if fb, bok := toFloat(requested); bok {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", stored) == fmt.Sprintf("%v", requested)
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case string:
		f, err := strconv.ParseFloat(value, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringifyID(id any) string {
	if f, ok := toFloat(id); ok && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return fmt.Sprintf("%v", id)
}

func copyRecord(rec refine.Record) refine.Record {
	out := make(refine.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
