package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/orderengine/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	t.Parallel()

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "trace-1"})

	rec := httptest.NewRecorder()
	WriteError(ctx, rec, NewError("order_not_found", "order\nmissing", http.StatusNotFound).
		WithDetails(map[string]any{"order_id": "o-1"}))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "order_not_found", body["error"])
	require.Equal(t, "order missing", body["message"])
	require.Equal(t, "req-1", body["request_id"])
	require.Equal(t, "trace-1", body["trace_id"])
	require.Equal(t, "o-1", body["order_id"])
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusInternalServerError, NewError("x", "y", 0).Status)
}

func TestWriteJSONNilPayload(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusNoContent, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Zero(t, rec.Body.Len())
}

var errMissing = errors.New("thing missing")

func TestErrorMapperWrite(t *testing.T) {
	t.Parallel()

	mapper := ErrorMapper{
		Subject:  "thing",
		Fallback: "thing_error",
		Rules: []Rule{
			{Targets: []error{errMissing}, Code: "thing_not_found", Status: http.StatusNotFound},
			{Targets: []error{context.DeadlineExceeded, context.Canceled}, Code: "thing_unavailable", Status: http.StatusServiceUnavailable, Message: "retry later"},
		},
	}

	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"wrapped sentinel echoes text", fmt.Errorf("%w: id 7", errMissing), http.StatusNotFound, "thing_not_found", "thing missing: id 7"},
		{"second target with fixed message", context.Canceled, http.StatusServiceUnavailable, "thing_unavailable", "retry later"},
		{"unmatched falls back", errors.New("boom"), http.StatusInternalServerError, "thing_error", "failed to process thing request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mapper.Write(context.Background(), rec, tc.err)

			require.Equal(t, tc.status, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.code, body["error"])
			require.Equal(t, tc.message, body["message"])
		})
	}
}
