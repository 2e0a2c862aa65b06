package grove

import (
	"context"
	"reflect"
)

// factoryKind says how a record produces its value.
type factoryKind int

const (
	// kindFactory is a plain constructor call.
	kindFactory factoryKind = iota

	// kindValue is a precomputed constant registered via [Provider.Supply].
	kindValue

	// kindGenerator is a constructor that also returns a cleanup function.
	// The cleanup is pushed onto the owning container's exit stack when
	// construction succeeds and runs when that container closes.
	kindGenerator
)

// key identifies one producer in the compiled graph. Generation 0 is the
// public producer of a type; decorators push the producer they wrap to
// higher generations, keeping decoration invisible to consumers.
type key struct {
	typ reflect.Type
	gen int
}

func (k key) String() string {
	return k.typ.String()
}

// record is the normalized description of one way to produce a type: the
// constructor (or value), its declared dependencies, the scope it is pinned
// to and whether results are cached. Records are built by [Provider] methods
// and frozen into a graph by compile; after that they are read-only and
// shared by every container.
type record struct {
	provides reflect.Type
	deps     []reflect.Type
	scope    Scope
	kind     factoryKind
	cache    bool

	fn    reflect.Value // constructor, for kindFactory and kindGenerator
	value reflect.Value // precomputed value, for kindValue

	// identity marks the trivial record an alias expands to: it returns its
	// sole dependency unchanged.
	identity bool

	// unscoped records are not pinned to a tier; they resolve and cache at
	// the level of the container doing the asking.
	unscoped bool

	// scopeSet distinguishes an explicit InScope option from the provider
	// default.
	scopeSet bool

	withCtx    bool // constructor takes a context.Context first parameter
	hasErr     bool // last result is an error
	hasCleanup bool // second result is a cleanup function
	ctxCleanup bool // the cleanup function takes a context.Context

	// depKeys is baked by compile: deps with decorated occurrences rewritten
	// to internal generation keys. Same length and order as deps.
	depKeys []key

	// flightKey is a per-record identifier used for construction
	// deduplication. Assigned by compile.
	flightKey string
}

// clone returns a copy whose slices are independent of the original, so one
// Provider can be compiled into several graphs.
func (r *record) clone() *record {
	c := *r
	c.deps = append([]reflect.Type(nil), r.deps...)
	if r.depKeys != nil {
		c.depKeys = append([]key(nil), r.depKeys...)
	}
	return &c
}

var (
	errType        = reflect.TypeOf((*error)(nil)).Elem()
	ctxType        = reflect.TypeOf((*context.Context)(nil)).Elem()
	cleanupType    = reflect.TypeOf((func() error)(nil))
	ctxCleanupType = reflect.TypeOf((func(context.Context) error)(nil))
)

// typeOf returns the reflect.Type for a type parameter.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
