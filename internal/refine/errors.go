package refine

import (
	"fmt"
	"strings"
)

// UnknownScopeError reports scope names outside the whitelisted registry.
type UnknownScopeError struct {
	Names []string
}

func (e *UnknownScopeError) Error() string {
	return fmt.Sprintf("unknown scope: %s", strings.Join(e.Names, ","))
}

// UnknownAttributeError reports filter or order keys that are not declared
// attributes or reflections.
type UnknownAttributeError struct {
	Names []string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("unknown attribute: %s", strings.Join(e.Names, ","))
}

// UnknownAssociationError reports an associated target that is not a
// declared reflection.
type UnknownAssociationError struct {
	Name string
}

func (e *UnknownAssociationError) Error() string {
	return fmt.Sprintf("unknown association: %s", e.Name)
}

// UnknownRemoteError reports a remoted target that is not registered.
type UnknownRemoteError struct {
	Name string
}

func (e *UnknownRemoteError) Error() string {
	return fmt.Sprintf("unknown remote: %s", e.Name)
}
