package client

import (
	"fmt"
	"sort"
	"strings"
)

// summarize renders the stable human-readable error format: the base
// message, then any root-cause messages, then the request id.
func summarize(base string, messages []string, requestID string) string {
	var sb strings.Builder
	sb.WriteString(base)
	if len(messages) > 0 {
		sb.WriteString("  Root Cause = ")
		sb.WriteString(strings.Join(messages, ", "))
		sb.WriteString(".")
	}
	if requestID != "" {
		sb.WriteString("  Request-Id = ")
		sb.WriteString(requestID)
		sb.WriteString(".")
	}
	return sb.String()
}

// TransportError is a network failure or a non-2xx response that does
// not map to a more specific error. Messages are parsed from the body
// when its content type is JSON or XML.
type TransportError struct {
	Status    int
	Messages  []string
	RequestID string
	Err       error
}

func (e *TransportError) Error() string {
	base := "request failed"
	if e.Status > 0 {
		base = fmt.Sprintf("request failed with status %d.", e.Status)
	} else if e.Err != nil {
		base = e.Err.Error() + "."
	}
	return summarize(base, e.Messages, e.RequestID)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BadRequestError is a 400 response: the server rejected a scope, filter,
// order column, association or remote-method name.
type BadRequestError struct {
	Messages  []string
	RequestID string
}

func (e *BadRequestError) Error() string {
	return summarize("bad request.", e.Messages, e.RequestID)
}

// NotFoundError is a 404 response.
type NotFoundError struct {
	Messages  []string
	RequestID string
}

func (e *NotFoundError) Error() string {
	return summarize("record not found.", e.Messages, e.RequestID)
}

// ValidationError is a 422 response carrying field-level messages.
type ValidationError struct {
	Fields    map[string][]string
	Messages  []string
	RequestID string
}

func (e *ValidationError) Error() string {
	messages := e.Messages
	if len(messages) == 0 {
		messages = flattenFields(e.Fields)
	}
	return summarize("record invalid.", messages, e.RequestID)
}

// ReadOnlyError reports a client-side write to a read-only attribute.
// It is raised before any network call.
type ReadOnlyError struct {
	Resource  string
	Attribute string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("%s attribute %s is read-only", e.Resource, e.Attribute)
}

// UnknownScopeError reports a scope name the schema does not whitelist.
// It is raised when the scope is appended, never reaching the network.
type UnknownScopeError struct {
	Resource string
	Name     string
}

func (e *UnknownScopeError) Error() string {
	return fmt.Sprintf("unknown scope: %s on %s", e.Name, e.Resource)
}

// UnknownAssociationError reports an association name the schema does
// not declare.
type UnknownAssociationError struct {
	Resource string
	Name     string
}

func (e *UnknownAssociationError) Error() string {
	return fmt.Sprintf("unknown association: %s on %s", e.Name, e.Resource)
}

func flattenFields(fields map[string][]string) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var messages []string
	for _, name := range names {
		for _, msg := range fields[name] {
			messages = append(messages, name+" "+msg)
		}
	}
	return messages
}
