package grove

import (
	"context"
	"fmt"
	"reflect"
)

// ---------------------------------------------------------------------------
// Container methods
// ---------------------------------------------------------------------------

// Resolve returns the value for the given type, recursively constructing its
// dependencies as needed. The record may be owned by an ancestor container;
// cached instances are stored at the owning level. Prefer the generic
// [Resolve] helper over calling this method directly.
//
// Resolving a context-aware provider through this blocking form fails with
// [ErrNeedsContext].
func (c *Container) Resolve(t reflect.Type) (reflect.Value, error) {
	return c.resolveType(context.Background(), t, true)
}

// ResolveContext is [Container.Resolve] for graphs with context-aware
// providers. The context is passed to every context-taking constructor on
// the dependency path and bounds the wait on a construction already in
// flight on another goroutine. A cancelled construction never leaves a
// partially-built instance in the cache.
func (c *Container) ResolveContext(ctx context.Context, t reflect.Type) (reflect.Value, error) {
	return c.resolveType(ctx, t, false)
}

func (c *Container) resolveType(ctx context.Context, t reflect.Type, blocking bool) (reflect.Value, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return reflect.Value{}, ErrClosed
	}
	if v, ok := c.cache[key{typ: t, gen: 0}]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	owner, k, rec, err := c.lookup(t)
	if err != nil {
		return reflect.Value{}, err
	}
	return owner.build(ctx, k, rec, blocking)
}

// ---------------------------------------------------------------------------
// Generic helpers
// ---------------------------------------------------------------------------

// Resolve is a generic helper that resolves a typed value from the
// container. It is the recommended way to retrieve values:
//
//	db, err := grove.Resolve[*Database](c)
func Resolve[T any](c *Container) (T, error) {
	var zero T
	val, err := c.Resolve(typeOf[T]())
	if err != nil {
		return zero, err
	}
	return assertResolved[T](val)
}

// ResolveContext is the generic helper for [Container.ResolveContext]:
//
//	db, err := grove.ResolveContext[*Database](ctx, c)
func ResolveContext[T any](ctx context.Context, c *Container) (T, error) {
	var zero T
	val, err := c.ResolveContext(ctx, typeOf[T]())
	if err != nil {
		return zero, err
	}
	return assertResolved[T](val)
}

func assertResolved[T any](val reflect.Value) (T, error) {
	out, ok := val.Interface().(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cannot convert %s to %s", val.Type(), typeOf[T]())
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Internal
// ---------------------------------------------------------------------------

// build produces the value for a record on its owning container o. For
// cached records the construction is deduplicated per key: concurrent
// resolvers for the same key wait for the first one and share its result, so
// a constructor with side effects runs at most once. Non-cached records
// construct on every call by contract.
func (o *Container) build(ctx context.Context, k key, rec *record, blocking bool) (reflect.Value, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return reflect.Value{}, ErrClosed
	}
	if v, ok := o.cache[k]; ok {
		o.mu.Unlock()
		return v, nil
	}
	o.mu.Unlock()

	if rec.withCtx && blocking {
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrNeedsContext, rec.provides)
	}

	if !rec.cache {
		v, cleanup, err := o.construct(ctx, rec, blocking)
		if err != nil {
			return reflect.Value{}, err
		}
		if err := o.commit(ctx, k, rec, v, cleanup); err != nil {
			return reflect.Value{}, err
		}
		return v, nil
	}

	fn := func() (interface{}, error) {
		o.mu.Lock()
		if v, ok := o.cache[k]; ok {
			o.mu.Unlock()
			return v, nil
		}
		o.mu.Unlock()

		v, cleanup, err := o.construct(ctx, rec, blocking)
		if err != nil {
			return nil, err
		}
		if err := o.commit(ctx, k, rec, v, cleanup); err != nil {
			return nil, err
		}
		return v, nil
	}

	if blocking {
		v, err, _ := o.flight.Do(rec.flightKey, fn)
		if err != nil {
			return reflect.Value{}, err
		}
		return v.(reflect.Value), nil
	}

	ch := o.flight.DoChan(rec.flightKey, fn)
	select {
	case <-ctx.Done():
		// The in-flight construction keeps running and, on success, still
		// commits to the cache; only this waiter gives up.
		return reflect.Value{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return reflect.Value{}, res.Err
		}
		return res.Val.(reflect.Value), nil
	}
}

// construct resolves the record's dependencies and invokes its source. The
// dependency walk starts at the owning container o, never at the original
// asker, so a wide-scoped record cannot capture a narrower-scoped instance.
// The returned cleanup is nil unless the record yields one.
func (o *Container) construct(ctx context.Context, rec *record, blocking bool) (reflect.Value, exitFunc, error) {
	if rec.kind == kindValue {
		return rec.value, nil, nil
	}

	args := make([]reflect.Value, 0, len(rec.depKeys)+1)
	if rec.withCtx {
		args = append(args, reflect.ValueOf(ctx))
	}
	for _, dk := range rec.depKeys {
		var dep reflect.Value
		var err error
		if dk.gen > 0 {
			// Decoration chain: the wrapped producer lives at the same
			// scope under an internal generation key.
			inner, ok := o.graph.get(o.level, dk)
			if !ok {
				return reflect.Value{}, nil, fmt.Errorf("missing decorated producer for %s at scope %s", dk.typ, o.level)
			}
			dep, err = o.build(ctx, dk, inner, blocking)
		} else {
			dep, err = o.resolveType(ctx, dk.typ, blocking)
		}
		if err != nil {
			return reflect.Value{}, nil, fmt.Errorf("resolving %s: %w", dk.typ, err)
		}
		args = append(args, dep)
	}

	if rec.identity {
		return args[0], nil, nil
	}

	results := rec.fn.Call(args)
	if rec.hasErr {
		if last := results[len(results)-1]; !last.IsNil() {
			return reflect.Value{}, nil, fmt.Errorf("constructing %s: %w", rec.provides, last.Interface().(error))
		}
	}

	var cleanup exitFunc
	if rec.hasCleanup {
		if cv := results[1]; !cv.IsNil() {
			if rec.ctxCleanup {
				cleanup = cv.Interface().(func(context.Context) error)
			} else {
				f := cv.Interface().(func() error)
				cleanup = func(context.Context) error { return f() }
			}
		}
	}
	return results[0], cleanup, nil
}

// commit stores a successfully built value in the owner's cache and pushes
// its cleanup onto the exit stack. If the container was closed while the
// construction was in flight, the fresh value's cleanup runs immediately and
// the resolve fails instead of leaking the resource.
func (o *Container) commit(ctx context.Context, k key, rec *record, v reflect.Value, cleanup exitFunc) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		if cleanup != nil {
			if err := cleanup(ctx); err != nil {
				return fmt.Errorf("%w: cleanup after late construction: %v", ErrClosed, err)
			}
		}
		return ErrClosed
	}
	if rec.cache {
		o.cache[k] = v
	}
	if cleanup != nil {
		o.exits = append(o.exits, cleanup)
	}
	o.mu.Unlock()
	return nil
}
