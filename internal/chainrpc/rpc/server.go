package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
)

const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Handler serves a single method
type Handler func(ctx context.Context, params json.RawMessage) (result any, err error)

// Server exposes handlers over JSON-RPC. Used to serve simulated backends and in tests
type Server struct {
	mu      sync.RWMutex
	methods map[string]Handler
	codes   func(err error) (code int)
}

// NewServer creates a server. codes translates handler errors into JSON-RPC error codes, it may be nil
func NewServer(codes func(err error) (code int)) (s *Server) {
	return &Server{
		methods: make(map[string]Handler),
		codes:   codes,
	}
}

func (s *Server) Register(method string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.methods[method] = handler
}

func (s *Server) errorCode(err error) (code int) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	if s.codes != nil {
		if code = s.codes(err); code != 0 {
			return code
		}
	}
	return CodeInternalError
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var request Request
	var response = Response{Version: Version}
	defer func() {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&response)
	}()

	err := json.NewDecoder(r.Body).Decode(&request)
	if err != nil {
		response.Error = &Error{Code: CodeParseError, Message: err.Error()}
		return
	}
	response.Id = request.Id

	s.mu.RLock()
	handler, found := s.methods[request.Method]
	s.mu.RUnlock()
	if !found {
		response.Error = &Error{Code: CodeMethodNotFound, Message: "method not found: " + request.Method}
		return
	}

	result, err := handler(r.Context(), request.Params)
	if err != nil {
		response.Error = &Error{Code: s.errorCode(err), Message: err.Error()}
		return
	}

	response.Result, err = json.Marshal(result)
	if err != nil {
		response.Error = &Error{Code: CodeInternalError, Message: err.Error()}
		return
	}
}

// Method adapts a typed function into a Handler
func Method[Req any, Res any](fn func(ctx context.Context, req Req) (res Res, err error)) (handler Handler) {
	return func(ctx context.Context, params json.RawMessage) (result any, err error) {
		var req Req
		if len(params) > 0 {
			err = json.Unmarshal(params, &req)
			if err != nil {
				return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
			}
		}
		return fn(ctx, req)
	}
}
