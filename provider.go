package grove

import (
	"errors"
	"fmt"
	"reflect"
)

type entryOp int

const (
	opProvide entryOp = iota
	opSupply
	opAlias
	opDecorate
)

// entry is one declaration collected by a Provider, consumed by compile.
type entry struct {
	op  entryOp
	rec *record
	src reflect.Type // alias source type
}

// Provider is a bag of declarations: constructors, precomputed values,
// aliases and decorators. Providers carry no runtime state of their own;
// [New] compiles one or more of them into the immutable graph shared by all
// containers.
//
// Registrations without an explicit [InScope] option use the provider's
// default scope.
type Provider struct {
	defaultScope Scope
	entries      []entry
}

// NewProvider creates an empty [Provider] whose registrations default to the
// given scope.
func NewProvider(defaultScope Scope) *Provider {
	return &Provider{defaultScope: defaultScope}
}

// Provide registers a constructor. Dependencies are expressed as function
// parameters and resolved by type. Accepted signatures are
//
//	func(deps...) T
//	func(deps...) (T, error)
//	func(deps...) (T, func() error)
//	func(deps...) (T, func() error, error)
//
// each optionally taking a context.Context as the first parameter. A
// constructor accepting a context is only resolvable through
// [Container.ResolveContext]; its cleanup function may then also take a
// context. A returned cleanup function runs when the owning container
// closes, in reverse construction order.
func (p *Provider) Provide(ctor any, opts ...Option) error {
	rec, err := p.parseConstructor(ctor)
	if err != nil {
		return err
	}
	for _, opt := range opts {
		opt(rec)
	}
	if err := checkProvides(rec.fn.Type().Out(0), rec.provides); err != nil {
		return err
	}
	p.entries = append(p.entries, entry{op: opProvide, rec: rec})
	return nil
}

// Supply registers a precomputed value. The value is returned as-is on every
// resolve; it has no dependencies and no cleanup.
func (p *Provider) Supply(value any, opts ...Option) error {
	if value == nil {
		return errors.New("supplied value cannot be untyped nil")
	}
	rec := &record{
		provides: reflect.TypeOf(value),
		value:    reflect.ValueOf(value),
		scope:    p.defaultScope,
		kind:     kindValue,
		cache:    true,
	}
	for _, opt := range opts {
		opt(rec)
	}
	if err := checkProvides(reflect.TypeOf(value), rec.provides); err != nil {
		return err
	}
	p.entries = append(p.entries, entry{op: opSupply, rec: rec})
	return nil
}

// Decorate registers a wrapper around an existing provider. The constructor
// follows the same signatures as [Provide]; its first parameter of the
// provided type receives the instance being wrapped. Decoration is invisible
// to consumers: they keep requesting the original type and receive the
// wrapped value. The decorator adopts the scope and cache setting of the
// registration it wraps, so [InScope] and [Unscoped] are rejected here.
//
// If the constructor declares two dependencies of the decorated type, only
// the first occurrence is substituted.
func (p *Provider) Decorate(ctor any, opts ...Option) error {
	rec, err := p.parseConstructor(ctor)
	if err != nil {
		return err
	}
	rec.scopeSet = false
	for _, opt := range opts {
		opt(rec)
	}
	if rec.scopeSet || rec.unscoped {
		return errors.New("decorator scope follows the decorated provider; InScope and Unscoped are not allowed")
	}
	if err := checkProvides(rec.fn.Type().Out(0), rec.provides); err != nil {
		return err
	}
	if !containsType(rec.deps, rec.provides) {
		return fmt.Errorf("decorator for %s must take %s as a parameter", rec.provides, rec.provides)
	}
	p.entries = append(p.entries, entry{op: opDecorate, rec: rec})
	return nil
}

// Alias registers Provides as another name for Source: resolving Provides
// yields the value produced for Source. Source must be assignable to
// Provides. Unless pinned with [InScope], the alias lives at the scope of
// the Source provider.
//
//	grove.Alias[Store, *PostgresStore](p)
func Alias[Provides, Source any](p *Provider, opts ...Option) error {
	provides, source := typeOf[Provides](), typeOf[Source]()
	if !source.AssignableTo(provides) {
		return fmt.Errorf("alias: %s is not assignable to %s", source, provides)
	}
	rec := &record{
		provides: provides,
		deps:     []reflect.Type{source},
		scope:    p.defaultScope,
		kind:     kindFactory,
		cache:    true,
		identity: true,
	}
	for _, opt := range opts {
		opt(rec)
	}
	if rec.provides != provides {
		return errors.New("alias: As is not allowed, the provided type is a type parameter")
	}
	p.entries = append(p.entries, entry{op: opAlias, rec: rec, src: source})
	return nil
}

// parseConstructor inspects a constructor signature and builds the record
// for it, with the provider's default scope and caching enabled. Options are
// applied by the caller.
func (p *Provider) parseConstructor(ctor any) (*record, error) {
	val := reflect.ValueOf(ctor)
	if !val.IsValid() || val.Type().Kind() != reflect.Func {
		return nil, errors.New("constructor must be a function")
	}
	typ := val.Type()
	if typ.IsVariadic() {
		return nil, errors.New("constructor cannot be variadic")
	}

	rec := &record{
		fn:    val,
		scope: p.defaultScope,
		kind:  kindFactory,
		cache: true,
	}

	for i := 0; i < typ.NumIn(); i++ {
		in := typ.In(i)
		if in == ctxType {
			if i != 0 {
				return nil, errors.New("context.Context must be the first parameter")
			}
			rec.withCtx = true
			continue
		}
		rec.deps = append(rec.deps, in)
	}

	if typ.NumOut() == 0 || typ.NumOut() > 3 {
		return nil, errors.New("constructor must return (T), (T, error), (T, func() error) or (T, func() error, error)")
	}
	if typ.Out(0) == errType {
		return nil, errors.New("constructor must return a value before the error")
	}
	rec.provides = typ.Out(0)

	switch typ.NumOut() {
	case 2:
		switch typ.Out(1) {
		case errType:
			rec.hasErr = true
		case cleanupType:
			rec.hasCleanup = true
		case ctxCleanupType:
			rec.hasCleanup = true
			rec.ctxCleanup = true
		default:
			return nil, errors.New("second return value must be an error or a cleanup function")
		}
	case 3:
		switch typ.Out(1) {
		case cleanupType:
			rec.hasCleanup = true
		case ctxCleanupType:
			rec.hasCleanup = true
			rec.ctxCleanup = true
		default:
			return nil, errors.New("second of three return values must be a cleanup function")
		}
		if typ.Out(2) != errType {
			return nil, errors.New("third return value must be an error")
		}
		rec.hasErr = true
	}

	if rec.hasCleanup {
		rec.kind = kindGenerator
	}
	if rec.ctxCleanup && !rec.withCtx {
		return nil, errors.New("a context-aware cleanup requires a context-aware constructor")
	}

	return rec, nil
}

// checkProvides verifies an As override against the constructor's actual
// return type.
func checkProvides(out, provides reflect.Type) error {
	if out == provides {
		return nil
	}
	if !out.AssignableTo(provides) {
		return fmt.Errorf("constructor returns %s, not assignable to provided type %s", out, provides)
	}
	return nil
}

func containsType(deps []reflect.Type, t reflect.Type) bool {
	for _, d := range deps {
		if d == t {
			return true
		}
	}
	return false
}
