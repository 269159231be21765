package schema

import (
	"fmt"
	"sort"
)

// Registry holds every resource schema known to a client or server. It is
// populated at setup time and read-only afterward.
type Registry struct {
	resources map[string]*Resource
	byPlural  map[string]*Resource
}

// NewRegistry creates a registry from the given schemas. Duplicate singular
// or plural names are rejected, since both index wire paths.
func NewRegistry(resources ...*Resource) (*Registry, error) {
	reg := &Registry{
		resources: make(map[string]*Resource, len(resources)),
		byPlural:  make(map[string]*Resource, len(resources)),
	}
	for _, r := range resources {
		if _, ok := reg.resources[r.Name()]; ok {
			return nil, fmt.Errorf("resource %s is already registered", r.Name())
		}
		if _, ok := reg.byPlural[r.CollectionName()]; ok {
			return nil, fmt.Errorf("collection %s is already registered", r.CollectionName())
		}
		reg.resources[r.Name()] = r
		reg.byPlural[r.CollectionName()] = r
	}
	return reg, nil
}

// MustNewRegistry is NewRegistry for setup paths where duplicates are
// programmer error.
func MustNewRegistry(resources ...*Resource) *Registry {
	reg, err := NewRegistry(resources...)
	if err != nil {
		panic(err)
	}
	return reg
}

// Get retrieves a schema by singular name.
func (r *Registry) Get(name string) (*Resource, bool) {
	res, ok := r.resources[name]
	return res, ok
}

// GetByCollection retrieves a schema by plural name.
func (r *Registry) GetByCollection(name string) (*Resource, bool) {
	res, ok := r.byPlural[name]
	return res, ok
}

// List returns all singular resource names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
