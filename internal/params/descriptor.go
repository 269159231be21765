// Package params defines the request parameter contract shared by the
// client and the server: the query descriptor accumulated by proxy chains,
// its query-string encoding, the metadata envelope, and the error body
// shapes.
package params

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// OrderColumn is one ordering term: a column name and an optional direction
// ("asc" or "desc").
type OrderColumn struct {
	Name      string
	Direction string
}

// Ordering is either a raw delimited string ("published_at, title desc") or
// an explicit column→direction list. Exactly one form is populated.
type Ordering struct {
	Raw     string
	Columns []OrderColumn
}

// OrderString builds an Ordering from the delimited string form.
func OrderString(s string) Ordering { return Ordering{Raw: s} }

// OrderColumns builds an Ordering from explicit column→direction terms.
func OrderColumns(cols ...OrderColumn) Ordering {
	return Ordering{Columns: append([]OrderColumn{}, cols...)}
}

// IsZero reports whether no ordering was requested.
func (o Ordering) IsZero() bool { return o.Raw == "" && len(o.Columns) == 0 }

// Terms normalizes both forms into column/direction pairs, preserving
// requested column order.
func (o Ordering) Terms() []OrderColumn {
	if len(o.Columns) > 0 {
		return append([]OrderColumn{}, o.Columns...)
	}
	var terms []OrderColumn
	for _, part := range strings.Split(o.Raw, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		term := OrderColumn{Name: fields[0]}
		if len(fields) > 1 {
			term.Direction = strings.ToLower(fields[1])
		}
		terms = append(terms, term)
	}
	return terms
}

// ColumnNames returns the bare column names, ignoring direction tokens.
func (o Ordering) ColumnNames() []string {
	terms := o.Terms()
	names := make([]string, len(terms))
	for i, t := range terms {
		names[i] = t.Name
	}
	return names
}

// Descriptor is the accumulated query state of one proxy instance. Values
// are immutable: every With* call returns a copy and never mutates the
// receiver. The `param` tags double as the wire vocabulary and as the
// derivation source for the proxy-only key set (see ProxyKeys).
type Descriptor struct {
	Scopes  []string       `param:"scopes"`
	Filters map[string]any `param:"filters"`
	Order   Ordering       `param:"order"`
	Limit   *int           `param:"limit"`
	Offset  *int           `param:"offset"`

	// From overrides the request path for association sub-collections.
	// It never appears in the query string.
	From string `param:"-"`
}

// WithScope appends a scope, deduplicating while preserving first-seen order.
func (d Descriptor) WithScope(name string) Descriptor {
	next := d.clone()
	for _, s := range next.Scopes {
		if s == name {
			return next
		}
	}
	next.Scopes = append(next.Scopes, name)
	return next
}

// WithFilters merges conditions over the existing filters; new keys win on
// collision.
func (d Descriptor) WithFilters(conditions map[string]any) Descriptor {
	next := d.clone()
	if next.Filters == nil {
		next.Filters = make(map[string]any, len(conditions))
	}
	for k, v := range conditions {
		next.Filters[k] = v
	}
	return next
}

// WithOrder replaces the ordering.
func (d Descriptor) WithOrder(o Ordering) Descriptor {
	next := d.clone()
	next.Order = o
	return next
}

// WithLimit replaces the limit.
func (d Descriptor) WithLimit(n int) Descriptor {
	next := d.clone()
	next.Limit = &n
	return next
}

// WithOffset replaces the offset.
func (d Descriptor) WithOffset(n int) Descriptor {
	next := d.clone()
	next.Offset = &n
	return next
}

// WithFrom replaces the path override.
func (d Descriptor) WithFrom(path string) Descriptor {
	next := d.clone()
	next.From = path
	return next
}

// KnownAttributes returns the filter conditions, the only descriptor field
// carrying record attribute values. first_or_create and first_or_initialize
// seed new records from these.
func (d Descriptor) KnownAttributes() map[string]any {
	out := make(map[string]any, len(d.Filters))
	for k, v := range d.Filters {
		out[k] = v
	}
	return out
}

// clone deep-copies the mutable fields so children never share state with
// their parent descriptor.
func (d Descriptor) clone() Descriptor {
	next := d
	if d.Scopes != nil {
		next.Scopes = append([]string{}, d.Scopes...)
	}
	if d.Filters != nil {
		next.Filters = make(map[string]any, len(d.Filters))
		for k, v := range d.Filters {
			next.Filters[k] = v
		}
	}
	if d.Order.Columns != nil {
		next.Order.Columns = append([]OrderColumn{}, d.Order.Columns...)
	}
	if d.Limit != nil {
		n := *d.Limit
		next.Limit = &n
	}
	if d.Offset != nil {
		n := *d.Offset
		next.Offset = &n
	}
	return next
}

// ProxyKeys returns every wire key owned by the descriptor. The set is
// derived from the Descriptor's own field tags so it cannot drift when the
// descriptor gains fields.
func ProxyKeys() []string {
	t := reflect.TypeOf(Descriptor{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("param")
		if tag == "" || tag == "-" {
			continue
		}
		keys = append(keys, tag)
	}
	return keys
}

// Values encodes the descriptor into GET query parameters:
// filters[attr]=value, scopes[]=name, order / order[col]=dir, limit, offset.
func (d Descriptor) Values() url.Values {
	values := url.Values{}
	for _, scope := range d.Scopes {
		values.Add("scopes[]", scope)
	}

	filterKeys := make([]string, 0, len(d.Filters))
	for k := range d.Filters {
		filterKeys = append(filterKeys, k)
	}
	sort.Strings(filterKeys)
	for _, k := range filterKeys {
		values.Set(fmt.Sprintf("filters[%s]", k), stringify(d.Filters[k]))
	}

	if len(d.Order.Columns) > 0 {
		for _, col := range d.Order.Columns {
			dir := col.Direction
			if dir == "" {
				dir = "asc"
			}
			values.Set(fmt.Sprintf("order[%s]", col.Name), dir)
		}
	} else if d.Order.Raw != "" {
		values.Set("order", d.Order.Raw)
	}

	if d.Limit != nil {
		values.Set("limit", strconv.Itoa(*d.Limit))
	}
	if d.Offset != nil {
		values.Set("offset", strconv.Itoa(*d.Offset))
	}
	return values
}

var (
	filterPattern = regexp.MustCompile(`^filters\[([^\]]+)\]$`)
	orderPattern  = regexp.MustCompile(`^order\[([^\]]+)\]$`)
)

// Decode parses GET query parameters back into a Descriptor. Limit and
// offset must be non-negative integers.
func Decode(values url.Values) (Descriptor, error) {
	var d Descriptor

	scopes := values["scopes[]"]
	if len(scopes) == 0 {
		scopes = values["scopes"]
	}
	for _, scope := range scopes {
		d = d.WithScope(scope)
	}

	var orderCols []OrderColumn
	orderKeys := make([]string, 0)
	for key := range values {
		if orderPattern.MatchString(key) {
			orderKeys = append(orderKeys, key)
		}
	}
	sort.Strings(orderKeys)
	for _, key := range orderKeys {
		name := orderPattern.FindStringSubmatch(key)[1]
		dir := strings.ToLower(values.Get(key))
		if dir != "asc" && dir != "desc" {
			return d, fmt.Errorf("invalid order direction %q for %s", values.Get(key), name)
		}
		orderCols = append(orderCols, OrderColumn{Name: name, Direction: dir})
	}

	filters := make(map[string]any)
	for key := range values {
		matches := filterPattern.FindStringSubmatch(key)
		if len(matches) != 2 {
			continue
		}
		filters[matches[1]] = values.Get(key)
	}
	if len(filters) > 0 {
		d.Filters = filters
	}

	if len(orderCols) > 0 {
		d.Order = OrderColumns(orderCols...)
	} else if raw := values.Get("order"); raw != "" {
		d.Order = OrderString(raw)
	}

	if s := values.Get("limit"); s != "" {
		n, err := parseNonNegative("limit", s)
		if err != nil {
			return d, err
		}
		d.Limit = &n
	}
	if s := values.Get("offset"); s != "" {
		n, err := parseNonNegative("offset", s)
		if err != nil {
			return d, err
		}
		d.Offset = &n
	}
	return d, nil
}

func parseNonNegative(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must be non-negative, got %d", name, n)
	}
	return n, nil
}

func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case fmt.Stringer:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
