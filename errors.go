package grove

import "errors"

var (
	// ErrNoProvider is returned when no provider is registered for the
	// requested type at the asking container's scope or any wider one.
	ErrNoProvider = errors.New("no provider for requested type")

	// ErrScopeViolation is returned when a dependency can only be satisfied
	// by a provider registered at a scope narrower than the consumer's. A
	// wide-scoped instance must never capture a shorter-lived one.
	ErrScopeViolation = errors.New("scope violation")

	// ErrCircularDependency is returned when the dependency graph contains a
	// cycle. The error message includes the full chain.
	ErrCircularDependency = errors.New("circular dependency detected")

	// ErrDuplicateProvider is returned when two providers for the same type
	// are registered at the same scope.
	ErrDuplicateProvider = errors.New("duplicate provider")

	// ErrClosed is returned by any operation on a container that has been
	// closed, including a second Close.
	ErrClosed = errors.New("container closed")

	// ErrNeedsContext is returned when a context-aware provider is resolved
	// through the blocking [Container.Resolve]. Use
	// [Container.ResolveContext] instead.
	ErrNeedsContext = errors.New("provider requires context-aware resolution")
)
