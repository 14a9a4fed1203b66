// Package transport is the request/response collaborator boundary. The
// synchronization core only sees the Transport interface; Client is the
// production implementation. All failures surface as *APIError (or a
// wrapped transport error) and are caught at the mutation boundary, never
// allowed to crash a caller.
package transport

import (
	"context"
	"encoding/json"
)

// Params are query parameters for list endpoints.
type Params map[string]string

// Transport issues requests against the server. Implementations return
// the raw response body on 2xx and an error carrying the status code and
// server message otherwise.
type Transport interface {
	Get(ctx context.Context, path string, params Params) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	Put(ctx context.Context, path string, body any) (json.RawMessage, error)
	Delete(ctx context.Context, path string, body any) (json.RawMessage, error)
}
