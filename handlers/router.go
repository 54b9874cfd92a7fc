// Package handlers implements the client side of agent-initiated ACP
// requests: permission decisions, sandboxed file access, and terminal
// execution. A Router dispatches by method name and is wired into the
// transport's request callback.
package handlers

import (
	"fmt"

	"github.com/zhubert/acp-core/logger"
	"github.com/zhubert/acp-core/protocol"
)

// HandlerFunc handles one agent-to-client request.
type HandlerFunc func(params map[string]any) (any, *protocol.ErrorObject)

// Router dispatches agent requests to registered handlers.
type Router struct {
	routes map[string]HandlerFunc
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]HandlerFunc)}
}

// Register binds a method name to a handler. Last registration wins.
func (r *Router) Register(method string, fn HandlerFunc) {
	r.routes[method] = fn
}

// Handle dispatches one request. Unknown methods get a method-not-found error.
func (r *Router) Handle(method string, params map[string]any) (any, *protocol.ErrorObject) {
	fn, ok := r.routes[method]
	if !ok {
		logger.WithComponent("handlers").Warn("unhandled agent request", "method", method)
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", method),
		}
	}
	return fn(params)
}

// Param extraction helpers. Agent params are loosely typed maps; these
// tolerate missing keys and wrong types by returning zero values.

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func mapParam(params map[string]any, key string) map[string]any {
	if v, ok := params[key].(map[string]any); ok {
		return v
	}
	return nil
}

func sliceParam(params map[string]any, key string) []any {
	if v, ok := params[key].([]any); ok {
		return v
	}
	return nil
}
