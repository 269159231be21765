package client

import (
	"reflect"

	"github.com/lumen-api/lumen/internal/schema"
)

// Changed reports whether the record, or any accessed association
// subtree, differs from its loaded state. The walk carries a visited set
// so cyclic and diamond-shaped association graphs terminate.
func (r *Record) Changed() bool {
	return r.changed(make(map[*Record]bool))
}

func (r *Record) changed(visited map[*Record]bool) bool {
	if visited[r] {
		return false
	}
	visited[r] = true

	if !r.persisted {
		return true
	}
	if !reflect.DeepEqual(r.attrs, r.snapshot) {
		return true
	}

	for name := range r.accessed {
		switch cached := r.assocCache[name].(type) {
		case *Record:
			if cached.changed(visited) {
				return true
			}
		case []*Record:
			if r.assocCount[name] != len(cached) {
				return true
			}
			for _, rec := range cached {
				if rec.changed(visited) {
					return true
				}
			}
		}
	}
	return false
}

// savePayload builds the outgoing attribute payload: current attributes
// minus read-only names, with every accessed-and-changed association
// staged under its {name}_attributes key. Only the outermost payload is
// root-wrapped; nested payloads stay unrooted so the server reads them
// as nested-attribute writes.
func (r *Record) savePayload(root bool, visited map[*Record]bool) map[string]any {
	visited[r] = true

	attrs := make(map[string]any, len(r.attrs))
	for k, v := range r.attrs {
		if r.ReadOnly(k) {
			continue
		}
		// Embedded nested payloads that came back unchanged are not
		// re-sent; staging below re-adds any changed subtree. A nested
		// payload that differs from the snapshot (the through setter
		// writes there) still goes out.
		if r.isNestedKey(k) && reflect.DeepEqual(v, r.snapshot[k]) {
			continue
		}
		attrs[k] = v
	}

	for _, name := range r.schema.ReflectionNames() {
		refl := r.schema.Reflection(name)
		if refl.Kind == schema.Remote || refl.Through != "" || !r.accessed[name] {
			continue
		}

		switch cached := r.assocCache[name].(type) {
		case *Record:
			if !visited[cached] && cached.changed(map[*Record]bool{r: true}) {
				attrs[refl.NestedAttributesKey()] = cached.savePayload(false, visited)
			}
		case []*Record:
			var staged []map[string]any
			for _, rec := range cached {
				if visited[rec] {
					continue
				}
				if rec.changed(map[*Record]bool{r: true}) {
					staged = append(staged, rec.savePayload(false, visited))
				}
			}
			if len(staged) > 0 {
				attrs[refl.NestedAttributesKey()] = staged
			}
		}
	}

	if root && r.client.config.RequestRootInJSON {
		return map[string]any{r.schema.Name(): attrs}
	}
	return attrs
}

// isNestedKey reports whether k is the {name}_attributes key of a
// declared association.
func (r *Record) isNestedKey(k string) bool {
	for _, name := range r.schema.ReflectionNames() {
		refl := r.schema.Reflection(name)
		if refl.Kind != schema.Remote && refl.NestedAttributesKey() == k {
			return true
		}
	}
	return false
}

// resetSaved marks the saved subtree clean: the record and every staged
// descendant become persisted with fresh snapshots.
func (r *Record) resetSaved(visited map[*Record]bool) {
	if visited[r] {
		return
	}
	visited[r] = true

	r.persisted = true
	r.snapshot = copyAttrs(r.attrs)

	for name := range r.accessed {
		switch cached := r.assocCache[name].(type) {
		case *Record:
			cached.resetSaved(visited)
		case []*Record:
			r.assocCount[name] = len(cached)
			for _, rec := range cached {
				rec.resetSaved(visited)
			}
		}
	}
}
