package schema

import (
	"fmt"
	"strings"
)

// Builder assembles a Resource declaratively. All declaration happens before
// any request is served; Build freezes the result.
type Builder struct {
	resource *Resource
	errors   []error
}

// New creates a builder for the named resource. The collection name defaults
// to a naive pluralization and can be overridden with Collection.
func New(name string) *Builder {
	return &Builder{
		resource: &Resource{
			name:         name,
			collection:   pluralize(name),
			attributeSet: make(map[string]struct{}),
			reflections:  make(map[string]*Reflection),
			remotes:      make(map[string]struct{}),
		},
	}
}

// Collection overrides the plural collection name.
func (b *Builder) Collection(name string) *Builder {
	b.resource.collection = name
	return b
}

// Attributes declares attribute names. Duplicates are ignored.
func (b *Builder) Attributes(names ...string) *Builder {
	for _, name := range names {
		if _, ok := b.resource.attributeSet[name]; ok {
			continue
		}
		b.resource.attributeSet[name] = struct{}{}
		b.resource.attributes = append(b.resource.attributes, name)
	}
	return b
}

// Scope registers a named scope. Registration order is preserved.
func (b *Builder) Scope(names ...string) *Builder {
	for _, name := range names {
		if b.resource.Scoped(name) {
			continue
		}
		b.resource.scopes = append(b.resource.scopes, name)
	}
	return b
}

// WhitelistScopes narrows the scopes callers may request. Names not
// registered as scopes are rejected at Build time.
func (b *Builder) WhitelistScopes(names ...string) *Builder {
	b.resource.whitelist = append([]string{}, names...)
	return b
}

// Option customizes a reflection declaration.
type Option func(*Reflection)

// Target overrides the associated resource's singular name, which otherwise
// derives from the association name.
func Target(name string) Option {
	return func(r *Reflection) { r.Target = name }
}

// ForeignKey overrides the derived foreign key attribute name.
func ForeignKey(name string) Option {
	return func(r *Reflection) { r.ForeignKey = name }
}

// Via resolves the association through an intermediate belongs_to
// association rather than a direct foreign key on the owner.
func Via(through string) Option {
	return func(r *Reflection) { r.Through = through }
}

// BelongsTo declares a singular parent association.
func (b *Builder) BelongsTo(name string, opts ...Option) *Builder {
	return b.reflect(name, BelongsTo, opts)
}

// HasMany declares a sub-collection association.
func (b *Builder) HasMany(name string, opts ...Option) *Builder {
	return b.reflect(name, HasMany, opts)
}

// HasOne declares a singular child association.
func (b *Builder) HasOne(name string, opts ...Option) *Builder {
	return b.reflect(name, HasOne, opts)
}

// Remote registers a computed method callable through the remoted endpoint.
// An optional Target names the resource type of the result for
// materialization on the client.
func (b *Builder) Remote(name string, opts ...Option) *Builder {
	if _, ok := b.resource.remotes[name]; ok {
		return b
	}
	b.resource.remotes[name] = struct{}{}
	b.resource.remoteNames = append(b.resource.remoteNames, name)
	return b.reflect(name, Remote, opts)
}

// ReadOnly marks attributes excluded from writes. They are reported in the
// metadata envelope and rejected by client setters.
func (b *Builder) ReadOnly(names ...string) *Builder {
	b.resource.readOnly = append(b.resource.readOnly, names...)
	return b
}

// NestedResources declares which associations accept nested writes.
func (b *Builder) NestedResources(names ...string) *Builder {
	b.resource.nestedResources = append(b.resource.nestedResources, names...)
	return b
}

// NaturalKey sets an alternate lookup attribute used in addition to the
// primary key.
func (b *Builder) NaturalKey(name string) *Builder {
	b.resource.naturalKey = name
	return b
}

// Build validates and freezes the schema.
func (b *Builder) Build() (*Resource, error) {
	r := b.resource

	for _, name := range r.whitelist {
		if !r.Scoped(name) {
			b.errors = append(b.errors,
				fmt.Errorf("whitelisted scope %q is not registered on %s", name, r.name))
		}
	}

	for _, name := range r.reflectionNames {
		refl := r.reflections[name]
		if refl.Through == "" {
			continue
		}
		through := r.reflections[refl.Through]
		if through == nil {
			b.errors = append(b.errors,
				fmt.Errorf("association %q goes through undeclared association %q", name, refl.Through))
		} else if through.Kind != BelongsTo {
			b.errors = append(b.errors,
				fmt.Errorf("association %q must go through a belongs_to, %q is %s",
					name, refl.Through, through.Kind))
		}
	}

	if r.naturalKey != "" && !r.HasAttribute(r.naturalKey) {
		b.errors = append(b.errors,
			fmt.Errorf("natural key %q is not an attribute of %s", r.naturalKey, r.name))
	}

	for _, name := range r.readOnly {
		if !r.HasAttribute(name) {
			b.errors = append(b.errors,
				fmt.Errorf("read-only name %q is not an attribute of %s", name, r.name))
		}
	}

	for _, name := range r.nestedResources {
		if r.reflections[name] == nil {
			b.errors = append(b.errors,
				fmt.Errorf("nested resource %q is not an association of %s", name, r.name))
		}
	}

	if len(b.errors) > 0 {
		return nil, fmt.Errorf("invalid schema for %s: %w", r.name, joinErrors(b.errors))
	}
	return r, nil
}

// MustBuild is Build for setup paths where a broken schema is programmer error.
func (b *Builder) MustBuild() *Resource {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

func (b *Builder) reflect(name string, kind Kind, opts []Option) *Builder {
	if _, ok := b.resource.reflections[name]; ok {
		b.errors = append(b.errors,
			fmt.Errorf("association %q declared twice on %s", name, b.resource.name))
		return b
	}

	refl := &Reflection{Name: name, Kind: kind, Target: singularize(name)}
	for _, opt := range opts {
		opt(refl)
	}
	if refl.ForeignKey == "" && kind != Remote {
		switch kind {
		case BelongsTo:
			// The key follows the association name, not the target type:
			// belongs_to :author, type: user reads author_id.
			refl.ForeignKey = name + "_id"
		case HasMany, HasOne:
			refl.ForeignKey = b.resource.name + "_id"
		}
	}

	b.resource.reflections[name] = refl
	b.resource.reflectionNames = append(b.resource.reflectionNames, name)
	return b
}

func joinErrors(errs []error) error {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// pluralize covers the regular English forms the wire paths need. Irregular
// names should override with Collection.
func pluralize(name string) string {
	switch {
	case strings.HasSuffix(name, "y") && !strings.HasSuffix(name, "ay") &&
		!strings.HasSuffix(name, "ey") && !strings.HasSuffix(name, "oy") &&
		!strings.HasSuffix(name, "uy"):
		return name[:len(name)-1] + "ies"
	case strings.HasSuffix(name, "s") || strings.HasSuffix(name, "x") ||
		strings.HasSuffix(name, "ch") || strings.HasSuffix(name, "sh"):
		return name + "es"
	default:
		return name + "s"
	}
}

// singularize derives a target resource name from an association name.
func singularize(name string) string {
	switch {
	case strings.HasSuffix(name, "ies"):
		return name[:len(name)-3] + "y"
	case strings.HasSuffix(name, "ches"), strings.HasSuffix(name, "shes"),
		strings.HasSuffix(name, "xes"), strings.HasSuffix(name, "sses"):
		return name[:len(name)-2]
	case strings.HasSuffix(name, "s") && !strings.HasSuffix(name, "ss"):
		return name[:len(name)-1]
	default:
		return name
	}
}
