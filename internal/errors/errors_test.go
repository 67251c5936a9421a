package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/copyleftdev/nlpbridge/internal/optimization"
	"github.com/copyleftdev/nlpbridge/internal/optimization/algorithm"
)

func TestStatusCode(t *testing.T) {
	local := algorithm.ID("LD_MMA")
	tests := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"bad request", BadRequest("missing %s", "algorithm"), http.StatusBadRequest, CodeInvalidParams},
		{"not found", NotFound("job %s", "x"), http.StatusNotFound, CodeNotFound},
		{"conflict", Conflict("done"), http.StatusConflict, CodeConflict},
		{"busy", fmt.Errorf("queue: %w", ErrBusy), http.StatusTooManyRequests, CodeBusy},
		{"invalid algorithm", algorithm.Validate("LD_MAM", false), http.StatusBadRequest, CodeInvalidParams},
		{"missing local", algorithm.ValidatePair(algorithm.AUGLAG, nil), http.StatusBadRequest, CodeInvalidParams},
		{"valid pair", algorithm.ValidatePair(algorithm.AUGLAG, &local), http.StatusOK, 0},
		{"user function", optimization.WrapError(fmt.Errorf("boom"), optimization.KindUserFunction, "eval"), http.StatusUnprocessableEntity, CodeServerError},
		{"engine", optimization.NewError(optimization.KindEngine, "rejected"), http.StatusInternalServerError, CodeServerError},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, StatusCode(tt.err))
			if tt.err != nil {
				assert.Equal(t, tt.code, RPCCode(tt.err))
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	b := Describe(algorithm.Validate("LD_MAM", false))
	assert.Equal(t, "LD_MMA", b.Suggestion)
	assert.Equal(t, "invalid algorithm", b.Kind)
	assert.Empty(t, b.Choices)

	b = Describe(algorithm.Validate("COMPLETELY_WRONG_NAME", false))
	assert.Empty(t, b.Suggestion)
	assert.Len(t, b.Choices, len(algorithm.All()))

	b = Describe(algorithm.ValidatePair(algorithm.G_MLSL, nil))
	assert.Equal(t, "missing local optimizer", b.Kind)
	assert.Len(t, b.Choices, len(algorithm.Locals()))

	b = Describe(NotFound("job 1"))
	assert.Empty(t, b.Kind)
	assert.Contains(t, b.Error, "job 1")
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, algorithm.Validate("LN_COBYLAA", false))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var b Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, "LN_COBYLA", b.Suggestion)
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("engine exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/solve?x=1", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	entries := logs.FilterMessage("recovered from panic").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "engine exploded", entries[0].ContextMap()["panic"])
	assert.Equal(t, "x=1", entries[0].ContextMap()["query"])
}

func TestErrorHandler(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	mw := ErrorHandler(zap.New(core))

	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusBadGateway} {
		h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, http.StatusBadGateway, entries[0].ContextMap()["status"])
}
