package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/hanko-field/orderengine/internal/platform/httpx"
)

const maxRequestBodySize = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body exceeds allowed size")

	stateNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)
)

// newValidator returns the request validator with the engine's custom tags registered. It panics
// when a tag cannot be registered, so a broken validator fails at startup.
func newValidator() *validatorv10.Validate {
	v, err := buildValidator()
	if err != nil {
		panic(err)
	}
	return v
}

func buildValidator() (*validatorv10.Validate, error) {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("state_name", func(fl validatorv10.FieldLevel) bool {
		return stateNamePattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("register state_name validation: %w", err)
	}
	return v, nil
}

// decodeRequest reads a JSON body of at most maxRequestBodySize into out and validates it. An
// empty body is accepted when allowEmpty is set. It writes the error response itself and reports
// whether the handler may continue.
func decodeRequest(w http.ResponseWriter, r *http.Request, v *validatorv10.Validate, out any, allowEmpty bool) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxRequestBodySize)
	switch {
	case errors.Is(err, errEmptyBody) && allowEmpty:
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
		return false
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	default:
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(out); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON: "+err.Error(), http.StatusBadRequest))
			return false
		}
	}

	if err := v.Struct(out); err != nil {
		var fieldErrs validatorv10.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return false
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Namespace()] = describeFieldError(fe)
		}
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "request body failed validation", http.StatusBadRequest).
			WithDetails(map[string]any{"fields": fields}))
		return false
	}
	return true
}

func describeFieldError(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "state_name":
		return "must be a state name"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, errEmptyBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}
