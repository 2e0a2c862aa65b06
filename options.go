package grove

// Option configures a single registration on a [Provider].
type Option func(*record)

// InScope pins the registration to the given scope instead of the provider's
// default scope.
func InScope(s Scope) Option {
	return func(r *record) {
		r.scope = s
		r.scopeSet = true
		r.unscoped = false
	}
}

// Unscoped detaches the registration from any fixed tier. An unscoped
// provider resolves at the level of the container doing the asking, which
// suits small component-local helpers.
func Unscoped() Option {
	return func(r *record) {
		r.unscoped = true
		r.scopeSet = false
	}
}

// NoCache makes the container construct a fresh instance on every resolve
// instead of caching the first one. The default is to cache.
func NoCache() Option {
	return func(r *record) {
		r.cache = false
	}
}

// As overrides the provided type of a registration, typically to expose a
// concrete constructor under an interface:
//
//	p.Provide(NewPostgresStore, grove.As[Store]())
//
// The constructor's return type must be assignable to T.
func As[T any]() Option {
	return func(r *record) {
		r.provides = typeOf[T]()
	}
}
