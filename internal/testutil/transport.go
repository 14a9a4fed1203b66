// Package testutil provides test doubles shared by the store tests and
// the scenario harness.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/inankarim/feedsync/internal/transport"
)

// Now is a fixed wall clock for deterministic timestamps.
func Now() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

// Call records one request issued through the scripted transport.
type Call struct {
	Method string
	Path   string
	Params transport.Params
	Body   any
}

// Response is one scripted reply. Before, when set, runs while the call
// is "in flight" so tests can observe optimistic state mid-mutation.
type Response struct {
	Body   string
	Err    error
	Before func()
}

// ScriptedTransport replays queued responses per (method, path) and
// records every call. An unscripted call panics: a test that issues more
// requests than it scripted is misconfigured and should fail loudly.
type ScriptedTransport struct {
	mu      sync.Mutex
	calls   []Call
	scripts map[string][]Response
}

// NewTransport creates an empty scripted transport.
func NewTransport() *ScriptedTransport {
	return &ScriptedTransport{scripts: make(map[string][]Response)}
}

// Script queues a response for the given method and path.
func (t *ScriptedTransport) Script(method, path string, resp Response) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := method + " " + path
	t.scripts[key] = append(t.scripts[key], resp)
}

// ScriptError queues an APIError response.
func (t *ScriptedTransport) ScriptError(method, path string, status int, msg string) {
	t.Script(method, path, Response{Err: &transport.APIError{Status: status, Message: msg}})
}

// Calls returns a copy of every recorded call.
func (t *ScriptedTransport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallCount counts calls to one method and path.
func (t *ScriptedTransport) CallCount(method, path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// Get implements transport.Transport.
func (t *ScriptedTransport) Get(_ context.Context, path string, params transport.Params) (json.RawMessage, error) {
	return t.serve(Call{Method: "GET", Path: path, Params: params})
}

// Post implements transport.Transport.
func (t *ScriptedTransport) Post(_ context.Context, path string, body any) (json.RawMessage, error) {
	return t.serve(Call{Method: "POST", Path: path, Body: body})
}

// Put implements transport.Transport.
func (t *ScriptedTransport) Put(_ context.Context, path string, body any) (json.RawMessage, error) {
	return t.serve(Call{Method: "PUT", Path: path, Body: body})
}

// Delete implements transport.Transport.
func (t *ScriptedTransport) Delete(_ context.Context, path string, body any) (json.RawMessage, error) {
	return t.serve(Call{Method: "DELETE", Path: path, Body: body})
}

func (t *ScriptedTransport) serve(call Call) (json.RawMessage, error) {
	t.mu.Lock()
	t.calls = append(t.calls, call)
	key := call.Method + " " + call.Path
	queue := t.scripts[key]
	if len(queue) == 0 {
		t.mu.Unlock()
		panic(fmt.Sprintf("ScriptedTransport: unscripted call %s", key))
	}
	resp := queue[0]
	t.scripts[key] = queue[1:]
	t.mu.Unlock()

	if resp.Before != nil {
		resp.Before()
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	body := resp.Body
	if body == "" {
		body = "{}"
	}
	return json.RawMessage(body), nil
}
