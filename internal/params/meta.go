package params

// Meta is the metadata side-channel carried under the "meta" key of every
// response. Per-resource entries are keyed by the resource's singular name;
// where_values is flat because it describes the collection that was queried.
type Meta struct {
	ReadOnly        map[string][]string `json:"read_only,omitempty"`
	WhereValues     map[string]any      `json:"where_values,omitempty"`
	NestedResources map[string][]string `json:"nested_resources,omitempty"`
	NaturalKey      map[string]string   `json:"natural_key,omitempty"`
}

// IsZero reports whether the envelope carries nothing.
func (m Meta) IsZero() bool {
	return len(m.ReadOnly) == 0 && len(m.WhereValues) == 0 &&
		len(m.NestedResources) == 0 && len(m.NaturalKey) == 0
}

// For extracts the flattened view for one resource type, merging its nested
// sub-keys up one level for convenient access on records.
func (m Meta) For(singular string) Metadata {
	md := Metadata{NaturalKey: m.NaturalKey[singular]}
	if ro := m.ReadOnly[singular]; len(ro) > 0 {
		md.ReadOnly = append([]string{}, ro...)
	}
	if nested := m.NestedResources[singular]; len(nested) > 0 {
		md.NestedResources = append([]string{}, nested...)
	}
	if len(m.WhereValues) > 0 {
		md.WhereValues = make(map[string]any, len(m.WhereValues))
		for k, v := range m.WhereValues {
			md.WhereValues[k] = v
		}
	}
	return md
}

// Metadata is the per-record view of the envelope kept on materialized
// records. Cleared metadata is legal; the next load re-derives it.
type Metadata struct {
	ReadOnly        []string
	WhereValues     map[string]any
	NestedResources []string
	NaturalKey      string
}

// IsZero reports whether the record carries no metadata.
func (m Metadata) IsZero() bool {
	return len(m.ReadOnly) == 0 && len(m.WhereValues) == 0 &&
		len(m.NestedResources) == 0 && m.NaturalKey == ""
}

// ReadOnlyAttr reports whether name may not be written.
func (m Metadata) ReadOnlyAttr(name string) bool {
	for _, ro := range m.ReadOnly {
		if ro == name {
			return true
		}
	}
	return false
}
