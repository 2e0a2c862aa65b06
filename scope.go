package grove

// Scope is a lifetime tier. Scopes form a total order from the widest
// ([ScopeApp], the root container) to the narrowest ([ScopeAction]). A
// provider bound to a scope is reachable only from containers at that scope
// or a narrower one, and a cached instance lives exactly as long as the
// container that owns it.
type Scope int

const (
	// ScopeApp is the root scope. Instances cached here live for the whole
	// lifetime of the container returned by [New].
	ScopeApp Scope = iota

	// ScopeSession covers a long-lived unit such as a user session or a
	// broker connection.
	ScopeSession

	// ScopeRequest covers one unit of work, typically an HTTP request or a
	// consumed message.
	ScopeRequest

	// ScopeAction is the narrowest tier, for short steps inside a request.
	ScopeAction
)

// String returns the human-readable name of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeApp:
		return "app"
	case ScopeSession:
		return "session"
	case ScopeRequest:
		return "request"
	case ScopeAction:
		return "action"
	default:
		return "unknown"
	}
}
