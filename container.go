package grove

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"
)

// exitFunc is a deferred cleanup registered when a cleanup-returning
// constructor succeeds. Exit functions run in reverse construction order
// when the owning container closes.
type exitFunc func(context.Context) error

// Container is the runtime half of the engine: it is bound to one [Scope]
// level, shares the compiled graph with its ancestors and owns a cache of
// already-built instances plus the cleanup stack for them. Use [New] for the
// root container and [Container.OpenScope] for narrower tiers.
//
// A Container is safe for concurrent use. Construction of a cached instance
// happens at most once per (container, type), even under concurrent
// resolvers.
type Container struct {
	graph  *graph
	level  Scope
	parent *Container // non-owning, used only for the level walk

	mu     sync.Mutex
	cache  map[key]reflect.Value
	exits  []exitFunc
	closed bool

	childMu  sync.Mutex
	children map[*Container]struct{}

	flight singleflight.Group
}

// New compiles the given providers and returns the root container at
// [ScopeApp]. Compilation validates the whole graph up front: duplicate
// registrations, missing dependencies, scope violations and cycles are all
// reported here, before anything is constructed.
func New(providers ...*Provider) (*Container, error) {
	g, err := compile(providers...)
	if err != nil {
		return nil, err
	}
	return newContainer(g, ScopeApp, nil), nil
}

func newContainer(g *graph, level Scope, parent *Container) *Container {
	return &Container{
		graph:    g,
		level:    level,
		parent:   parent,
		cache:    make(map[key]reflect.Value),
		children: make(map[*Container]struct{}),
	}
}

// Level returns the scope level this container is bound to.
func (c *Container) Level() Scope {
	return c.level
}

// OpenScope creates a child container one level below this one, or at the
// explicitly given deeper level to skip unused tiers (for example opening a
// [ScopeRequest] container directly from the root). The child shares the
// compiled graph and starts with an empty cache.
//
// The caller owns the child and should close it before closing the parent;
// children still open when the parent closes are closed for it.
func (c *Container) OpenScope(level ...Scope) (*Container, error) {
	target := c.level + 1
	if len(level) > 1 {
		return nil, errors.New("at most one scope level may be given")
	}
	if len(level) == 1 {
		target = level[0]
	}
	if target <= c.level || target > ScopeAction {
		return nil, fmt.Errorf("cannot open scope %s from %s", target, c.level)
	}

	child := newContainer(c.graph, target, c)
	c.childMu.Lock()
	// close nils the children map; registering after that point would leave
	// the child unreachable by the unwind.
	if c.children == nil {
		c.childMu.Unlock()
		return nil, ErrClosed
	}
	c.children[child] = struct{}{}
	c.childMu.Unlock()
	return child, nil
}

// Close tears the container down: children still open are closed first, then
// the container's own exit functions run in reverse construction order, the
// cache is dropped and the container is marked closed. Any later Resolve or
// OpenScope fails with [ErrClosed], as does a second Close.
//
// A failing exit function does not stop the unwind; all remaining exits
// still run and the individual failures are joined into the returned error.
func (c *Container) Close() error {
	return c.close(context.Background())
}

// CloseContext is [Container.Close] for context-aware cleanups. The context
// is handed to every exit function registered by a constructor with a
// context-aware cleanup; if it expires mid-unwind, remaining exits are
// skipped and the context error is included in the result.
func (c *Container) CloseContext(ctx context.Context) error {
	return c.close(ctx)
}

func (c *Container) close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: already closed", ErrClosed)
	}
	c.closed = true
	exits := c.exits
	c.exits = nil
	c.cache = nil
	c.mu.Unlock()

	if c.parent != nil {
		c.parent.childMu.Lock()
		delete(c.parent.children, c)
		c.parent.childMu.Unlock()
	}

	c.childMu.Lock()
	children := c.children
	c.children = nil
	c.childMu.Unlock()

	var errs []error
	for child := range children {
		if err := child.close(ctx); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, err)
		}
	}

	for i := len(exits) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := exits[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// lookup finds the record for t and the container owning it, walking from c
// toward the root. Unscoped records bind to the asking container. The walk
// cannot see scopes narrower than c's, which is what keeps a wide-scoped
// instance from capturing a shorter-lived dependency.
func (c *Container) lookup(t reflect.Type) (*Container, key, *record, error) {
	k := key{typ: t, gen: 0}
	if rec, ok := c.graph.unscoped[t]; ok {
		return c, k, rec, nil
	}
	for cur := c; cur != nil; cur = cur.parent {
		if rec, ok := c.graph.get(cur.level, k); ok {
			return cur, k, rec, nil
		}
	}
	if ns, ok := c.graph.findNarrower(c.level, t); ok {
		return nil, key{}, nil, fmt.Errorf(
			"%w: %s is provided at scope %s, narrower than %s",
			ErrScopeViolation, t, ns, c.level,
		)
	}
	if ws, ok := c.graph.findAtOrWider(c.level, t); ok {
		return nil, key{}, nil, fmt.Errorf(
			"%w: %s is provided at scope %s but no container at that level is open in this chain",
			ErrNoProvider, t, ws,
		)
	}
	return nil, key{}, nil, fmt.Errorf("%w: %s", ErrNoProvider, t)
}
