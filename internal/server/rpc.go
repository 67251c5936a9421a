package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apierrors "github.com/copyleftdev/nlpbridge/internal/errors"
	"github.com/copyleftdev/nlpbridge/internal/logging"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    *apierrors.Body `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests. Methods:
//
//	nlp.algorithms  -> []AlgorithmView
//	nlp.validate    ValidateRequest -> ValidateResponse
//	nlp.solve       SolveRequest -> JobView
//	nlp.status      JobRef -> JobView
//	nlp.cancel      JobRef -> JobView
//
// Params may be an object or a one-element array holding the object.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, r, apierrors.CodeParseError, "Parse error", nil, nil)
		return
	}
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, r, apierrors.CodeInvalidRequest, "Invalid Request", request.ID, nil)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "nlp.algorithms":
		result = s.algorithms()
	case "nlp.validate":
		var p ValidateRequest
		if err = params(request.Params, &p); err == nil {
			result = s.validate(p)
		}
	case "nlp.solve":
		var p SolveRequest
		if err = params(request.Params, &p); err == nil {
			result, err = s.solve(r.Context(), p)
		}
	case "nlp.status":
		var p JobRef
		if err = params(request.Params, &p); err == nil {
			result, err = s.jobs.Get(p.ID)
		}
	case "nlp.cancel":
		var p JobRef
		if err = params(request.Params, &p); err == nil {
			result, err = s.jobs.Cancel(p.ID)
		}
	default:
		s.respondWithError(w, r, apierrors.CodeMethodNotFound, "Method not found", request.ID, nil)
		return
	}

	if err != nil {
		body := apierrors.Describe(err)
		s.respondWithError(w, r, apierrors.RPCCode(err), body.Error, request.ID, &body)
		return
	}

	respondJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: request.ID, Result: result})
}

// params decodes raw into dst, unwrapping a one-element array.
func params(raw json.RawMessage, dst interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return apierrors.BadRequest("missing required parameters")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return apierrors.BadRequest("invalid parameters: %v", err)
		}
		if len(list) != 1 {
			return apierrors.BadRequest("expected one parameter object, got %d", len(list))
		}
		raw = list[0]
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierrors.BadRequest("invalid parameters: %v", err)
	}
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, code int, message string, id interface{}, data *apierrors.Body) {
	logging.FromContext(r.Context()).Info("rpc error",
		zap.Int("code", code),
		zap.String("message", message),
	)
	respondJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message, Data: data},
	})
}
