// Package httpx renders JSON responses and the engine's error envelope.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hanko-field/orderengine/internal/platform/requestctx"
)

// Error is the JSON error envelope: {"error", "message", "status", "request_id", "trace_id"} plus
// any details merged at the top level.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError constructs an Error; a zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// WithDetails attaches additional JSON-serialisable metadata.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = maps.Clone(details)
	return e
}

// WriteError writes err as JSON, stamping the chi request id and the trace id found on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := make(map[string]any, len(err.Details)+5)
	for k, v := range err.Details {
		payload[k] = v
	}
	payload["error"] = err.Code
	payload["message"] = err.Message
	payload["status"] = status
	if id := sanitize(middleware.GetReqID(ctx), 80); id != "" {
		payload["request_id"] = id
	}
	if id := sanitize(requestctx.TraceID(ctx), 64); id != "" {
		payload["trace_id"] = id
	}

	WriteJSON(w, status, payload)
}

// WriteJSON encodes payload as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// Rule maps errors matching any of Targets (errors.Is) to a response. An empty Message echoes the
// error text.
type Rule struct {
	Targets []error
	Code    string
	Status  int
	Message string
}

// ErrorMapper translates service errors into envelopes. Errors no rule matches are logged and
// answered with Fallback as a 500.
type ErrorMapper struct {
	Rules    []Rule
	Fallback string
	Subject  string
}

// Write renders err using the first matching rule.
func (m ErrorMapper) Write(ctx context.Context, w http.ResponseWriter, err error) {
	for _, rule := range m.Rules {
		for _, target := range rule.Targets {
			if !errors.Is(err, target) {
				continue
			}
			message := rule.Message
			if message == "" {
				message = err.Error()
			}
			WriteError(ctx, w, NewError(rule.Code, message, rule.Status))
			return
		}
	}
	requestctx.Logger(ctx).Error(m.Subject+" request failed", zap.Error(err))
	WriteError(ctx, w, NewError(m.Fallback, "failed to process "+m.Subject+" request", http.StatusInternalServerError))
}

func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
