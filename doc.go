// Package grove provides a scoped, reflection-based dependency injection
// runtime for Go.
//
// Grove separates declaration from resolution. Providers declare how values
// are produced — constructors, precomputed values, aliases and decorators —
// and pin every registration to a [Scope] tier. [New] compiles the
// declarations into an immutable graph, validating missing dependencies,
// duplicates, scope violations and cycles up front, and returns the root
// [Container]. Narrower containers are opened per unit of work and closed
// when it ends, releasing everything they built in reverse order.
//
// # Quick Start
//
//	p := grove.NewProvider(grove.ScopeApp)
//	p.Supply(cfg)
//	p.Provide(NewLogger)
//	p.Provide(NewDatabase)
//
//	root, err := grove.New(p)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer root.Close()
//
//	db, err := grove.Resolve[*Database](root)
//
// # Scopes
//
// Scopes form a total order: [ScopeApp] > [ScopeSession] > [ScopeRequest] >
// [ScopeAction]. A provider at a wide scope is visible from every narrower
// container, and its instances are cached at the owning level, so all
// requests share one app-scoped database while each request container gets
// its own request-scoped transaction:
//
//	reqC, _ := root.OpenScope(grove.ScopeRequest)
//	tx, _ := grove.Resolve[*Tx](reqC)
//	...
//	reqC.Close() // rolls back / releases everything request-scoped
//
// The compiler rejects graphs where a wide-scoped provider depends on a
// narrower-scoped one; a singleton must never capture a per-request value.
//
// # Cleanup
//
// A constructor may return a cleanup function alongside its value:
//
//	p.Provide(func(cfg *Config) (*Conn, func() error) {
//		conn := dial(cfg)
//		return conn, conn.Close
//	})
//
// Cleanups run when the owning container closes, in reverse construction
// order, and failures are collected rather than cutting the unwind short.
//
// # Context-aware providers
//
// A constructor whose first parameter is a context.Context is resolved
// through [Container.ResolveContext]; the context flows into every such
// constructor on the dependency path. The blocking [Container.Resolve]
// rejects these providers with [ErrNeedsContext].
package grove
