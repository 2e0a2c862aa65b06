// Package grovechi integrates grove containers with chi HTTP routers. The
// middleware opens a request-scoped child container for every request, stores
// it on the request context and closes it after the handler returns, so
// request-scoped resources (transactions, per-request caches) live exactly as
// long as the request.
package grovechi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grovedi/grove"
)

type containerKey struct{}
type requestKey struct{}

// RequestIDHeader carries the generated request id back to the client.
const RequestIDHeader = "X-Request-Id"

// RequestID identifies a single HTTP request. It is generated by
// [Middleware] and can be injected into request-scoped constructors when
// [RequestProvider] is part of the graph.
type RequestID string

// Middleware returns a chi-compatible middleware that opens a
// [grove.ScopeRequest] child of root for each request and closes it once the
// handler completes. Close failures are logged, not surfaced to the client.
func Middleware(root *grove.Container, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, err := root.OpenScope(grove.ScopeRequest)
			if err != nil {
				log.Error("open request scope", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			id := uuid.NewString()
			w.Header().Set(RequestIDHeader, id)

			ctx := context.WithValue(r.Context(), containerKey{}, scope)
			ctx = context.WithValue(ctx, requestIDKey{}, RequestID(id))
			r = r.WithContext(ctx)
			r = r.WithContext(context.WithValue(ctx, requestKey{}, r))

			defer func() {
				// The request context may already be cancelled by the time
				// the handler returns; cleanup still gets to run.
				if err := scope.CloseContext(context.WithoutCancel(ctx)); err != nil {
					log.Error("close request scope",
						zap.String("request_id", id),
						zap.Error(err),
					)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

// ContainerFrom extracts the request-scoped container placed on the context
// by [Middleware].
func ContainerFrom(ctx context.Context) (*grove.Container, bool) {
	c, ok := ctx.Value(containerKey{}).(*grove.Container)
	return c, ok
}

// Resolve resolves a typed value from the request-scoped container attached
// to the request. The request's context is threaded through, so context-aware
// providers (including [RequestProvider]'s) work from handlers.
func Resolve[T any](r *http.Request) (T, error) {
	var zero T
	c, ok := ContainerFrom(r.Context())
	if !ok {
		return zero, fmt.Errorf("no container on request context; is the middleware installed?")
	}
	return grove.ResolveContext[T](r.Context(), c)
}

// RequestProvider returns a provider exposing the current *http.Request and
// its [RequestID] to request-scoped constructors. Add it to the graph
// alongside your own providers when handlers' dependencies need access to the
// raw request.
func RequestProvider() (*grove.Provider, error) {
	p := grove.NewProvider(grove.ScopeRequest)
	if err := p.Provide(requestFromContext, grove.NoCache()); err != nil {
		return nil, err
	}
	if err := p.Provide(requestIDFromContext, grove.NoCache()); err != nil {
		return nil, err
	}
	return p, nil
}

func requestFromContext(ctx context.Context) (*http.Request, error) {
	r, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok {
		return nil, fmt.Errorf("no request on context; resolve through the middleware")
	}
	return r, nil
}

func requestIDFromContext(ctx context.Context) (RequestID, error) {
	id, ok := ctx.Value(requestIDKey{}).(RequestID)
	if !ok {
		return "", fmt.Errorf("no request id on context; resolve through the middleware")
	}
	return id, nil
}
