// Package schema defines the frozen resource metadata shared by the client
// and the server: attribute names, reflections, registered scopes, remote
// methods, and the metadata hints carried on the wire (read-only names,
// nested resources, natural key).
//
// Schemas are built once at setup time through a Builder and are immutable
// afterward, so request-time readers need no synchronization.
package schema

import "fmt"

// Kind represents the cardinality of a reflection.
type Kind int

const (
	// BelongsTo points at a single parent record through a foreign key on
	// the owner.
	BelongsTo Kind = iota
	// HasMany points at a sub-collection keyed by the owner's id.
	HasMany
	// HasOne points at a single child record keyed by the owner's id.
	HasOne
	// Remote marks a computed, read-only endpoint rather than a stored
	// association.
	Remote
)

// String returns the string representation of the reflection kind.
func (k Kind) String() string {
	switch k {
	case BelongsTo:
		return "belongs_to"
	case HasMany:
		return "has_many"
	case HasOne:
		return "has_one"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// Reflection describes one association. Created at definition time and
// immutable afterward; shared read-only by every instance of the owning type.
type Reflection struct {
	// Name is the association accessor name, e.g. "comments".
	Name string

	// Kind is the association cardinality.
	Kind Kind

	// Target is the singular name of the associated resource, e.g. "comment".
	Target string

	// ForeignKey is the attribute holding the reference. For belongs_to it
	// lives on the owner; for has_many/has_one it lives on the target.
	ForeignKey string

	// Through names an intermediate belongs_to association. When set, the
	// foreign key is read from and written into the through association's
	// nested attribute payload instead of the owner's top-level attributes.
	Through string
}

// Singular reports whether the reflection resolves to a single record.
func (r *Reflection) Singular() bool {
	return r.Kind == BelongsTo || r.Kind == HasOne
}

// NestedAttributesKey returns the payload key used for nested writes and
// embedded reads, e.g. "comments_attributes".
func (r *Reflection) NestedAttributesKey() string {
	return r.Name + "_attributes"
}

// Resource is the frozen schema for one resource type.
type Resource struct {
	name       string
	collection string

	attributes   []string
	attributeSet map[string]struct{}

	reflections     map[string]*Reflection
	reflectionNames []string

	scopes    []string
	whitelist []string

	remotes     map[string]struct{}
	remoteNames []string

	readOnly        []string
	nestedResources []string
	naturalKey      string
}

// Name returns the singular resource name, e.g. "post".
func (r *Resource) Name() string { return r.name }

// CollectionName returns the plural resource name used in paths, e.g. "posts".
func (r *Resource) CollectionName() string { return r.collection }

// AttributeNames returns the declared attribute names in declaration order.
func (r *Resource) AttributeNames() []string { return copyStrings(r.attributes) }

// HasAttribute reports whether name is a declared attribute.
func (r *Resource) HasAttribute(name string) bool {
	_, ok := r.attributeSet[name]
	return ok
}

// ReflectionNames returns the declared association names in declaration order.
func (r *Resource) ReflectionNames() []string { return copyStrings(r.reflectionNames) }

// Reflection returns the reflection for name, or nil when undeclared.
func (r *Resource) Reflection(name string) *Reflection { return r.reflections[name] }

// FilterableNames is the union of attribute and reflection names, the valid
// key set for filters.
func (r *Resource) FilterableNames() []string {
	names := make([]string, 0, len(r.attributes)+len(r.reflectionNames))
	names = append(names, r.attributes...)
	names = append(names, r.reflectionNames...)
	return names
}

// RegisteredScopes returns every declared scope name in declaration order.
func (r *Resource) RegisteredScopes() []string { return copyStrings(r.scopes) }

// WhitelistedScopes returns the scopes callers may request. Defaults to all
// registered scopes unless the builder narrowed it.
func (r *Resource) WhitelistedScopes() []string {
	if r.whitelist == nil {
		return copyStrings(r.scopes)
	}
	return copyStrings(r.whitelist)
}

// Scoped reports whether name is a registered scope.
func (r *Resource) Scoped(name string) bool {
	for _, s := range r.scopes {
		if s == name {
			return true
		}
	}
	return false
}

// RemoteNames returns every registered remote method name.
func (r *Resource) RemoteNames() []string { return copyStrings(r.remoteNames) }

// Remoted reports whether name may be invoked as a remote method.
func (r *Resource) Remoted(name string) bool {
	_, ok := r.remotes[name]
	return ok
}

// ReadOnly returns the attribute names excluded from writes.
func (r *Resource) ReadOnly() []string { return copyStrings(r.readOnly) }

// NestedResources returns the association names accepting nested writes.
func (r *Resource) NestedResources() []string { return copyStrings(r.nestedResources) }

// NaturalKey returns the alternate lookup attribute, or "" when unset.
func (r *Resource) NaturalKey() string { return r.naturalKey }

// String implements fmt.Stringer.
func (r *Resource) String() string {
	return fmt.Sprintf("schema.Resource(%s)", r.name)
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
