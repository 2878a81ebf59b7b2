package http

// This file implements a small builder for JSON responses and the mapping
// from service errors to status codes.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"splitter/internal/ledger"
	applog "splitter/internal/log"
	"splitter/internal/remote"
	"splitter/internal/services"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	data, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(data, '\n'))
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error            string `json:"error"`
	AccessRequestURL string `json:"access_request_url,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ErrorFromService maps a service error to a response. docID is used for
// the access-request link when the remote document is unavailable.
func ErrorFromService(ctx context.Context, err error, docID string) *ResponseBuilder {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return UnprocessableEntityError(verr.Error())
	case errors.Is(err, ledger.ErrStorageAccess):
		logServiceError(ctx, "Ledger storage unavailable", err)
		return ErrorResponse(http.StatusServiceUnavailable, "ledger storage unavailable")
	case errors.Is(err, remote.ErrUnavailable):
		body := errorBody{Error: "remote document unavailable"}
		if docID != "" {
			body.AccessRequestURL = remote.AccessRequestURL(docID)
		}
		return NewResponse().Status(http.StatusBadGateway).JSON(body)
	case errors.Is(err, remote.ErrTransient):
		return ErrorResponse(http.StatusServiceUnavailable, "remote store temporarily unavailable").
			Header("Retry-After", "30")
	case errors.Is(err, services.ErrMirrorDisabled), errors.Is(err, services.ErrSheetsDisabled):
		return ErrorResponse(http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse(http.StatusGatewayTimeout, "operation timed out")
	default:
		logServiceError(ctx, "Request failed", err)
		return InternalServerError("internal error")
	}
}

func logServiceError(ctx context.Context, msg string, err error) {
	applog.FromContext(ctx).WithComponent(applog.ComponentHTTP).ErrorContext(ctx, msg, applog.FieldError, err.Error())
}
