// Package sieve partitions requested names into valid and invalid sets.
// It backs validation of scopes, filter keys, and order-by columns so all
// three share one behavior.
package sieve

import "fmt"

// Result holds the outcome of sieving requested names against valid names.
// Requested order is preserved in both partitions.
type Result struct {
	valid   []string
	invalid []string
}

// Sieve compares requested names against the set of valid names. Requested
// values are stringified and empty entries are dropped before comparison.
func Sieve(validNames []string, requested []any) Result {
	valid := make(map[string]struct{}, len(validNames))
	for _, name := range validNames {
		valid[name] = struct{}{}
	}

	var result Result
	for _, name := range flatten(requested) {
		if name == "" {
			continue
		}
		if _, ok := valid[name]; ok {
			result.valid = append(result.valid, name)
		} else {
			result.invalid = append(result.invalid, name)
		}
	}
	return result
}

// Strings is a convenience wrapper for callers that already hold strings.
func Strings(validNames, requested []string) Result {
	values := make([]any, len(requested))
	for i, s := range requested {
		values[i] = s
	}
	return Sieve(validNames, values)
}

// Valid returns the requested names present in the valid set, in request order.
func (r Result) Valid() []string { return r.valid }

// Invalid returns the requested names absent from the valid set, in request order.
func (r Result) Invalid() []string { return r.invalid }

// IsValid reports whether every requested name was valid.
func (r Result) IsValid() bool { return len(r.invalid) == 0 }

// flatten expands nested slices and stringifies scalar values.
func flatten(values []any) []string {
	var out []string
	for _, v := range values {
		switch value := v.(type) {
		case nil:
			continue
		case string:
			out = append(out, value)
		case []string:
			for _, s := range value {
				out = append(out, s)
			}
		case []any:
			out = append(out, flatten(value)...)
		case fmt.Stringer:
			out = append(out, value.String())
		default:
			out = append(out, fmt.Sprintf("%v", value))
		}
	}
	return out
}
