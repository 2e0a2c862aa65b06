package grove

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// graph is the compiled provider graph: an immutable mapping from
// (scope, key) to record shared read-only by every container created under
// it. Unscoped records live in their own map and bind to the asking
// container's level at resolve time.
type graph struct {
	scoped   map[Scope]map[key]*record
	unscoped map[reflect.Type]*record
}

// compile freezes a set of providers into a graph. It expands aliases,
// rewrites decorator chains, rejects duplicate registrations, verifies that
// every dependency is satisfiable at the consumer's scope or a wider one and
// that no cycles exist. Records are cloned, so a Provider may be compiled
// into several graphs.
func compile(providers ...*Provider) (*graph, error) {
	g := &graph{
		scoped:   make(map[Scope]map[key]*record),
		unscoped: make(map[reflect.Type]*record),
	}

	var aliases, decorators []entry
	for _, p := range providers {
		for _, e := range p.entries {
			switch e.op {
			case opAlias:
				aliases = append(aliases, entry{op: e.op, rec: e.rec.clone(), src: e.src})
			case opDecorate:
				decorators = append(decorators, entry{op: e.op, rec: e.rec.clone()})
			default:
				if err := g.place(e.rec.clone()); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := g.placeAliases(aliases); err != nil {
		return nil, err
	}
	if err := g.applyDecorators(decorators); err != nil {
		return nil, err
	}

	g.bake()

	if err := g.validate(); err != nil {
		return nil, err
	}
	if err := g.checkCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *graph) place(rec *record) error {
	t := rec.provides
	if rec.unscoped {
		if _, ok := g.unscoped[t]; ok {
			return fmt.Errorf("%w: unscoped %s", ErrDuplicateProvider, t)
		}
		if len(g.scopesOf(t)) > 0 {
			return fmt.Errorf("%w: %s registered both scoped and unscoped", ErrDuplicateProvider, t)
		}
		g.unscoped[t] = rec
		return nil
	}
	if _, ok := g.unscoped[t]; ok {
		return fmt.Errorf("%w: %s registered both scoped and unscoped", ErrDuplicateProvider, t)
	}
	m := g.scoped[rec.scope]
	if m == nil {
		m = make(map[key]*record)
		g.scoped[rec.scope] = m
	}
	k := key{typ: t, gen: 0}
	if _, ok := m[k]; ok {
		return fmt.Errorf("%w: %s at scope %s", ErrDuplicateProvider, t, rec.scope)
	}
	m[k] = rec
	return nil
}

// placeAliases materializes alias entries as identity records. An alias
// without an explicit scope adopts the scope of its source, so aliases that
// point at other aliases are retried until no more progress can be made.
func (g *graph) placeAliases(aliases []entry) error {
	pending := aliases
	for len(pending) > 0 {
		var next []entry
		for _, e := range pending {
			switch {
			case e.rec.scopeSet || e.rec.unscoped:
				if err := g.place(e.rec); err != nil {
					return err
				}
			case g.hasUnscoped(e.src):
				e.rec.unscoped = true
				if err := g.place(e.rec); err != nil {
					return err
				}
			default:
				scopes := g.scopesOf(e.src)
				if len(scopes) == 0 {
					next = append(next, e)
					continue
				}
				for _, s := range scopes {
					rec := e.rec.clone()
					rec.scope = s
					if err := g.place(rec); err != nil {
						return err
					}
				}
			}
		}
		if len(next) == len(pending) {
			e := next[0]
			return fmt.Errorf("alias %s: %w: %s", e.rec.provides, ErrNoProvider, e.src)
		}
		pending = next
	}
	return nil
}

// applyDecorators rewrites each decorated type: the current producer moves
// to a fresh internal generation and the decorator becomes the public
// producer, depending on that generation. Applied in registration order, so
// later decorators wrap earlier ones. A type registered at several scopes is
// decorated at each of them.
func (g *graph) applyDecorators(decorators []entry) error {
	for _, e := range decorators {
		t := e.rec.provides
		if g.hasUnscoped(t) {
			return fmt.Errorf("cannot decorate unscoped provider %s", t)
		}
		scopes := g.scopesOf(t)
		if len(scopes) == 0 {
			return fmt.Errorf("decorating %s: %w", t, ErrNoProvider)
		}
		for _, s := range scopes {
			m := g.scoped[s]
			inner := m[key{typ: t, gen: 0}]
			gen := g.nextGen(s, t)
			m[key{typ: t, gen: gen}] = inner

			wrapped := e.rec.clone()
			wrapped.scope = s
			wrapped.cache = inner.cache
			wrapped.depKeys = make([]key, len(wrapped.deps))
			substituted := false
			for i, d := range wrapped.deps {
				if !substituted && d == t {
					wrapped.depKeys[i] = key{typ: t, gen: gen}
					substituted = true
				} else {
					wrapped.depKeys[i] = key{typ: d, gen: 0}
				}
			}
			m[key{typ: t, gen: 0}] = wrapped
		}
	}
	return nil
}

// bake fills in default dependency keys and assigns every record a unique
// construction-dedup key.
func (g *graph) bake() {
	id := 0
	assign := func(rec *record) {
		if rec.depKeys == nil {
			rec.depKeys = make([]key, len(rec.deps))
			for i, d := range rec.deps {
				rec.depKeys[i] = key{typ: d, gen: 0}
			}
		}
		rec.flightKey = strconv.Itoa(id)
		id++
	}
	for s := ScopeApp; s <= ScopeAction; s++ {
		for _, rec := range g.scoped[s] {
			assign(rec)
		}
	}
	for _, rec := range g.unscoped {
		assign(rec)
	}
}

// validate checks that every dependency edge is satisfiable. A scoped
// consumer may depend on providers at its own scope or wider; a dependency
// that exists only at a narrower scope is a scope violation, not a missing
// provider.
func (g *graph) validate() error {
	for s := ScopeApp; s <= ScopeAction; s++ {
		for _, rec := range g.scoped[s] {
			for _, dk := range rec.depKeys {
				if dk.gen > 0 {
					continue // same-scope decoration chain by construction
				}
				dt := dk.typ
				if g.hasUnscoped(dt) {
					continue
				}
				if _, ok := g.findAtOrWider(s, dt); ok {
					continue
				}
				if ns, ok := g.findNarrower(s, dt); ok {
					return fmt.Errorf(
						"%w: %s at scope %s depends on %s, only provided at narrower scope %s",
						ErrScopeViolation, rec.provides, s, dt, ns,
					)
				}
				return fmt.Errorf("%s depends on %s: %w", rec.provides, dt, ErrNoProvider)
			}
		}
	}
	for _, rec := range g.unscoped {
		for _, dt := range rec.deps {
			if g.hasUnscoped(dt) || len(g.scopesOf(dt)) > 0 {
				continue
			}
			return fmt.Errorf("%s depends on %s: %w", rec.provides, dt, ErrNoProvider)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Cycle detection
// ---------------------------------------------------------------------------

type buildState int

const (
	unvisited buildState = iota
	visiting
	visited
)

// graphNode identifies one producer for the cycle walk. Unscoped records are
// a single node keyed by type.
type graphNode struct {
	un bool
	s  Scope
	k  key
}

func (g *graph) checkCycles() error {
	states := make(map[graphNode]buildState)
	for s := ScopeApp; s <= ScopeAction; s++ {
		for k := range g.scoped[s] {
			n := graphNode{s: s, k: k}
			if err := g.visit(n, states, nil); err != nil {
				return err
			}
		}
	}
	for t := range g.unscoped {
		n := graphNode{un: true, k: key{typ: t}}
		if err := g.visit(n, states, nil); err != nil {
			return err
		}
	}
	return nil
}

// visit walks the dependency edges depth-first using a local state map and
// stack. An unscoped consumer is linked to every scope's producer of its
// dependency, since the owning scope is only known at resolve time.
func (g *graph) visit(n graphNode, states map[graphNode]buildState, stack []string) error {
	switch states[n] {
	case visiting:
		return g.circularError(n, stack)
	case visited:
		return nil
	}
	states[n] = visiting
	stack = append(stack, n.k.typ.String())

	rec := g.nodeRecord(n)
	for i, dk := range rec.depKeys {
		for _, target := range g.depTargets(n, rec, i, dk) {
			if err := g.visit(target, states, stack); err != nil {
				return err
			}
		}
	}

	states[n] = visited
	return nil
}

func (g *graph) nodeRecord(n graphNode) *record {
	if n.un {
		return g.unscoped[n.k.typ]
	}
	return g.scoped[n.s][n.k]
}

func (g *graph) depTargets(n graphNode, rec *record, i int, dk key) []graphNode {
	if dk.gen > 0 {
		return []graphNode{{s: n.s, k: dk}}
	}
	dt := dk.typ
	if g.hasUnscoped(dt) {
		return []graphNode{{un: true, k: key{typ: dt}}}
	}
	if n.un {
		var targets []graphNode
		for _, s := range g.scopesOf(dt) {
			targets = append(targets, graphNode{s: s, k: key{typ: dt, gen: 0}})
		}
		return targets
	}
	if s, ok := g.findAtOrWider(n.s, dt); ok {
		return []graphNode{{s: s, k: key{typ: dt, gen: 0}}}
	}
	return nil // unsatisfiable edges are reported by validate
}

func (g *graph) circularError(n graphNode, stack []string) error {
	chain := make([]string, len(stack)+1)
	copy(chain, stack)
	chain[len(stack)] = n.k.typ.String()
	return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(chain, " -> "))
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func (g *graph) get(s Scope, k key) (*record, bool) {
	m := g.scoped[s]
	if m == nil {
		return nil, false
	}
	rec, ok := m[k]
	return rec, ok
}

func (g *graph) hasUnscoped(t reflect.Type) bool {
	_, ok := g.unscoped[t]
	return ok
}

// scopesOf returns the scopes holding a public producer for t, widest first.
func (g *graph) scopesOf(t reflect.Type) []Scope {
	var out []Scope
	for s := ScopeApp; s <= ScopeAction; s++ {
		if _, ok := g.get(s, key{typ: t, gen: 0}); ok {
			out = append(out, s)
		}
	}
	return out
}

// findAtOrWider returns the nearest scope at or above from (walking toward
// the root) holding a producer for t.
func (g *graph) findAtOrWider(from Scope, t reflect.Type) (Scope, bool) {
	for s := from; s >= ScopeApp; s-- {
		if _, ok := g.get(s, key{typ: t, gen: 0}); ok {
			return s, true
		}
	}
	return 0, false
}

// findNarrower returns the nearest scope strictly below from holding a
// producer for t.
func (g *graph) findNarrower(from Scope, t reflect.Type) (Scope, bool) {
	for s := from + 1; s <= ScopeAction; s++ {
		if _, ok := g.get(s, key{typ: t, gen: 0}); ok {
			return s, true
		}
	}
	return 0, false
}

func (g *graph) nextGen(s Scope, t reflect.Type) int {
	gen := 1
	for k := range g.scoped[s] {
		if k.typ == t && k.gen >= gen {
			gen = k.gen + 1
		}
	}
	return gen
}
