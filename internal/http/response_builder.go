// Package http serves the expense workflow as a JSON API.
//
// This file holds the response side: a small builder for JSON bodies and
// the mapping from workflow error kinds to status codes.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"rimborsi/internal/core"
	applog "rimborsi/internal/log"
)

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       any
}

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

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// Write sends the built response. A nil body writes only the status.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.data == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.data)
	if err != nil {
		http.Error(w, `{"error":{"kind":"internal","message":"encoding failed"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(body, '\n'))
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusFor maps a workflow error kind to an HTTP status.
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindUnauthorized:
		return http.StatusForbidden
	case core.KindInvalidTransition, core.KindValidation:
		return http.StatusBadRequest
	case core.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders err as JSON. Unclassified errors are logged and hidden.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)

	detail := errorDetail{Kind: kind.String(), Message: err.Error()}
	if status == http.StatusInternalServerError {
		detail = errorDetail{Kind: "internal", Message: "internal error"}
		if ctxErr := r.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			detail.Message = "request cancelled"
		}
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op, nil)
	}

	NewJSONResponse().Status(status).Data(errorBody{Error: detail}).Write(w)
}

// writeUnauthenticated is used when no acting user could be resolved.
func writeUnauthenticated(w http.ResponseWriter, message string) {
	NewJSONResponse().
		Status(http.StatusUnauthorized).
		Data(errorBody{Error: errorDetail{Kind: "unauthenticated", Message: message}}).
		Write(w)
}
