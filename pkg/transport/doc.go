// Package transport holds the HTTP-level cross-cutting pieces of the
// shoppinglist service: the mapping from the pkg/api error taxonomy to
// status codes, the JSON error writers used by handlers and middleware
// alike, and the middleware chain (panic recovery, request ID assignment,
// structured request logging via log/slog).
//
// The HTTP surface itself lives in pkg/transport/http. This package uses
// only Go standard library packages; HTTP serving uses net/http with
// Go 1.22+ ServeMux routing patterns.
package transport
