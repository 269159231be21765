package store

import (
	"fmt"
	"sort"
	"strings"
)

// NotFoundError reports a missing record.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("couldn't find %s with id=%s", e.Resource, e.ID)
}

// ValidationError carries field→messages detail for a failed write.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var msgs []string
	for _, name := range names {
		for _, msg := range e.Fields[name] {
			msgs = append(msgs, fmt.Sprintf("%s %s", name, msg))
		}
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, ", "))
}

// UnpermittedParameterError reports write attributes the endpoint does not
// accept.
type UnpermittedParameterError struct {
	Names []string
}

func (e *UnpermittedParameterError) Error() string {
	return fmt.Sprintf("unpermitted parameters: %s", strings.Join(e.Names, ","))
}

// FieldErrors renders the unpermitted names in the 422 field→messages shape.
func (e *UnpermittedParameterError) FieldErrors() map[string][]string {
	fields := make(map[string][]string, len(e.Names))
	for _, name := range e.Names {
		fields[name] = []string{"unpermitted parameter"}
	}
	return fields
}
