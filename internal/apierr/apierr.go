// Package apierr maps domain errors onto HTTP statuses and writes them as
// RFC 7807 problem documents.
package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/beesaferoot/buildops/internal/dealsheet"
	"github.com/beesaferoot/buildops/internal/documents"
	"github.com/beesaferoot/buildops/internal/records"
)

const ContentType = "application/problem+json"

// Error codes carried in problem documents.
const (
	CodeBadRequest      = "bad_request"
	CodeValidation      = "validation_failed"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeGone            = "gone"
	CodePayloadTooLarge = "payload_too_large"
	CodeRateLimited     = "rate_limited"
	CodeTimeout         = "timeout"
	CodeInternal        = "internal"
)

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is an error with the status and code it is reported with.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func New(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

func BadRequest(format string, args ...any) *APIError {
	return New(http.StatusBadRequest, CodeBadRequest, fmt.Sprintf(format, args...))
}

// Problem is an RFC 7807 problem document.
type Problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Errors    any    `json:"errors,omitempty"`
}

// FromError classifies err. Unrecognised errors become a 500 whose message
// does not leak the cause.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, len(verrs))
		for i, fe := range verrs {
			fields[i] = FieldError{Field: fieldPath(fe), Message: describe(fe)}
		}
		return &APIError{Status: http.StatusUnprocessableEntity, Code: CodeValidation, Message: "request validation failed", Details: fields}
	}

	var sheetErrs dealsheet.ValidationErrors
	if errors.As(err, &sheetErrs) {
		fields := make([]FieldError, len(sheetErrs))
		for i, fe := range sheetErrs {
			fields[i] = FieldError{Field: fe.Field, Message: fe.Message}
		}
		return &APIError{Status: http.StatusUnprocessableEntity, Code: CodeValidation, Message: "deal sheet inputs are invalid", Details: fields}
	}

	switch {
	case errors.Is(err, documents.ErrTooLarge):
		return New(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, err.Error())
	case errors.Is(err, documents.ErrExpired):
		return New(http.StatusGone, CodeGone, err.Error())
	case errors.Is(err, records.ErrNotFound):
		return New(http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, records.ErrInvalid):
		return New(http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, records.ErrConflict):
		return New(http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return New(http.StatusGatewayTimeout, CodeTimeout, "the request took too long and was cancelled")
	}
	return New(http.StatusInternalServerError, CodeInternal, "an unexpected error occurred")
}

// ToProblem renders e as a problem document for the request.
func (e *APIError) ToProblem(r *http.Request) Problem {
	p := Problem{
		Type:   "/errors/" + strings.ReplaceAll(e.Code, "_", "-"),
		Title:  http.StatusText(e.Status),
		Status: e.Status,
		Detail: e.Message,
		Code:   e.Code,
		Errors: e.Details,
	}
	if r != nil {
		p.Instance = r.URL.Path
		p.RequestID = middleware.GetReqID(r.Context())
	}
	return p
}

// Write classifies err and writes it as application/problem+json.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	p := FromError(err).ToProblem(r)
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldPath drops the top-level struct name from the namespace, so a
// nested field reads "lines[0].account_id".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	param := fe.Param()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "len":
		return "must be exactly " + param + " characters"
	case "gte":
		return "must be greater than or equal to " + param
	case "gt":
		return "must be greater than " + param
	case "email":
		return "must be a valid email address"
	case "numeric":
		return "must be numeric"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(param, " ", ", ")
	}
	return "failed the " + fe.Tag() + " check"
}
