package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/harun/gemchat/pkg/chat"
	"github.com/xeipuuv/gojsonschema"
)

type method struct {
	handler RequestHandler
	schema  *gojsonschema.Schema
}

// RPCRouter handles RPC method registration and request routing
type RPCRouter struct {
	mu      sync.RWMutex
	methods map[string]method
}

// NewRPCRouter creates a new RPC router
func NewRPCRouter() *RPCRouter {
	return &RPCRouter{
		methods: make(map[string]method),
	}
}

// RegisterMethod registers an RPC method handler.
// paramsSchema is an optional JSON schema the params object must satisfy.
func (r *RPCRouter) RegisterMethod(name string, handler RequestHandler, paramsSchema string) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	m := method{handler: handler}
	if paramsSchema != "" {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(paramsSchema))
		if err != nil {
			return fmt.Errorf("invalid params schema for %s: %w", name, err)
		}
		m.schema = schema
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.methods[name] = m
	return nil
}

// ParseRequest parses and validates a request frame
func (r *RPCRouter) ParseRequest(data []byte) (*RPCRequest, error) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{
			Code:    ParseError,
			Message: "Parse error",
			Data:    err.Error(),
		}
	}

	if req.ID == "" {
		return nil, &RPCError{
			Code:    InvalidRequest,
			Message: "Invalid request: missing id field",
		}
	}
	if req.Method == "" {
		return nil, &RPCError{
			Code:    InvalidRequest,
			Message: "Invalid request: missing method field",
		}
	}
	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}

	return &req, nil
}

// RouteRequest validates params and runs the method handler
func (r *RPCRouter) RouteRequest(ctx context.Context, client *Client, req *RPCRequest) *RPCResponse {
	if req == nil {
		return errorResponse("", &RPCError{Code: InvalidRequest, Message: "invalid request"})
	}

	r.mu.RLock()
	m, exists := r.methods[req.Method]
	r.mu.RUnlock()

	if !exists {
		return errorResponse(req.ID, &RPCError{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		})
	}

	params := req.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	if err := validateParams(m.schema, params); err != nil {
		return errorResponse(req.ID, err)
	}

	result, err := m.handler(ctx, client, params)
	if err != nil {
		return errorResponse(req.ID, toRPCError(err))
	}

	return &RPCResponse{
		ID:      req.ID,
		JSONRPC: "2.0",
		Result:  result,
	}
}

// GetMethods returns the registered method names in sorted order
func (r *RPCRouter) GetMethods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]string, 0, len(r.methods))
	for name := range r.methods {
		methods = append(methods, name)
	}
	slices.Sort(methods)
	return methods
}

func validateParams(schema *gojsonschema.Schema, params map[string]interface{}) *RPCError {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return &RPCError{Code: InvalidParams, Message: "Invalid params", Data: err.Error()}
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return &RPCError{
			Code:    InvalidParams,
			Message: "Invalid params: " + strings.Join(details, "; "),
			Data:    details,
		}
	}
	return nil
}

func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if perr, ok := chat.AsProviderError(err); ok {
		return &RPCError{
			Code:    ProviderFailure,
			Message: perr.Error(),
			Data: map[string]interface{}{
				"provider": perr.Provider,
				"kind":     string(perr.Kind),
			},
		}
	}
	return &RPCError{Code: InternalError, Message: err.Error()}
}

func errorResponse(id string, err *RPCError) *RPCResponse {
	return &RPCResponse{
		ID:      id,
		JSONRPC: "2.0",
		Error:   err,
	}
}
