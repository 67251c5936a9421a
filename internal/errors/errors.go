// Package errors maps failures of the optimization packages onto HTTP and
// JSON-RPC responses, and provides the server's recovery middleware.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
)

// Server-level failures that have no optimization.Kind.
var (
	ErrBadRequest = stderrors.New("bad request")
	ErrNotFound   = stderrors.New("not found")
	ErrConflict   = stderrors.New("conflict")
	ErrBusy       = stderrors.New("too many jobs")
)

// BadRequest returns an error matching ErrBadRequest.
func BadRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// NotFound returns an error matching ErrNotFound.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflict returns an error matching ErrConflict.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
	CodeNotFound       = -32004
	CodeConflict       = -32009
	CodeBusy           = -32029
)

// Body is the JSON payload describing an error.
type Body struct {
	Error      string   `json:"error"`
	Kind       string   `json:"kind,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
	Choices    []string `json:"choices,omitempty"`
}

// Describe builds the payload for err. Algorithm validation failures carry
// the suggested name or the legal choices.
func Describe(err error) Body {
	b := Body{Error: err.Error()}
	if k := optimization.KindOf(err); k != optimization.KindUnknown {
		b.Kind = k.String()
	}

	var inv *algorithm.InvalidError
	var missing *algorithm.MissingLocalError
	switch {
	case stderrors.As(err, &inv):
		b.Suggestion = string(inv.Suggestion)
		if inv.Suggestion == "" {
			b.Choices = names(inv.Valid)
		}
	case stderrors.As(err, &missing):
		b.Choices = names(missing.Legal)
	}
	return b
}

// StatusCode returns the HTTP status for err.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrConflict):
		return http.StatusConflict
	case stderrors.Is(err, ErrBusy):
		return http.StatusTooManyRequests
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}

	switch optimization.KindOf(err) {
	case optimization.KindInvalidAlgorithm, optimization.KindMissingLocalOptimizer,
		optimization.KindUnknownOption, optimization.KindInvalidModel:
		return http.StatusBadRequest
	case optimization.KindUserFunction:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// RPCCode returns the JSON-RPC error code for err.
func RPCCode(err error) int {
	switch StatusCode(err) {
	case http.StatusBadRequest:
		return CodeInvalidParams
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeBusy
	default:
		return CodeServerError
	}
}

// WriteJSON writes err as a JSON body with its HTTP status.
func WriteJSON(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusCode(err))
	_ = json.NewEncoder(w).Encode(Describe(err))
}

func names(ids []algorithm.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
