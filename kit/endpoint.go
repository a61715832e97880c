// Package kit carries the transport-agnostic request plumbing shared by the
// HTTP and MCP surfaces: the Endpoint abstraction, middleware chaining, and
// per-request context values.
package kit

import "context"

// Endpoint is one request/response operation, independent of transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first argument is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
