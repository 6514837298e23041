package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/middleware/trace"
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = "5"

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes no
// content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response","code":"internal"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

type errorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse maps err onto a status code: validation 422, not found 404,
// data unavailable 503 with Retry-After, anything else 500. Internal error
// details are logged, never returned.
func ErrorResponse(r *http.Request, err error) *JSONResponseBuilder {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return NewJSONResponse().
			Status(http.StatusUnprocessableEntity).
			Body(errorBody{Error: ve.Error(), Field: ve.Field, Code: "validation_error"})
	case errors.Is(err, core.ErrValidation):
		return NewJSONResponse().
			Status(http.StatusUnprocessableEntity).
			Body(errorBody{Error: err.Error(), Code: "validation_error"})
	case errors.Is(err, core.ErrNotFound):
		return NewJSONResponse().
			Status(http.StatusNotFound).
			Body(errorBody{Error: "not found", Code: "not_found"})
	case errors.Is(err, core.ErrDataUnavailable):
		log.FromContext(r.Context()).WarnContext(r.Context(), "Data unavailable",
			"path", r.URL.Path,
			"error", err)
		return NewJSONResponse().
			Status(http.StatusServiceUnavailable).
			Header("Retry-After", retryAfterSeconds).
			Body(errorBody{
				Error:     "data temporarily unavailable, retry later",
				Code:      "data_unavailable",
				RequestID: trace.GetRequestID(r.Context()),
			})
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			"path", r.URL.Path,
			"error", err,
			"error_type", log.ErrorType(err))
		return NewJSONResponse().
			Status(http.StatusInternalServerError).
			Body(errorBody{Error: "internal error", Code: "internal", RequestID: trace.GetRequestID(r.Context())})
	}
}

// BadRequest reports a malformed request that never reached the services.
func BadRequest(message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(http.StatusBadRequest).
		Body(errorBody{Error: message, Code: "bad_request"})
}
