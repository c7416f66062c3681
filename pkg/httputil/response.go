package httputil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestIDHeader echoes the chi request id, error bodies carry the same value as trace_id
const RequestIDHeader = "X-Request-ID"

// Envelope wraps every JSON body as {"status": "ok"|"error", "data"|"error": ...}
type Envelope map[string]any

type APIError struct {
	Code    string `json:"code"` // no_iteration, empty_store, iteration_timeout...
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// OK writes 200 with body under "data"
func OK(w http.ResponseWriter, r *http.Request, body any) error {
	return JSON(w, r, http.StatusOK, body)
}

// JSON encodes before writing, so a body that cannot be encoded (NaN stake, Inf weight)
// turns into a 500 envelope instead of a truncated 200.
// Every response is stamped with the request id and is never cached: quotes move between iterations.
func JSON(w http.ResponseWriter, r *http.Request, status int, body any) error {
	reqID := middleware.GetReqID(r.Context())

	h := w.Header()
	h.Set("Cache-Control", "no-store")
	if reqID != "" {
		h.Set(RequestIDHeader, reqID)
	}

	if body == nil && status == http.StatusNoContent {
		w.WriteHeader(status)
		return nil
	}

	buf, err := encode(envelope(body))
	if err != nil {
		fallback, _ := encode(envelope(APIError{
			Code:    "encode_failed",
			Message: "response body could not be encoded",
			TraceID: reqID,
		}))
		h.Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(fallback.Bytes())
		return fmt.Errorf("encode %T: %w", body, err)
	}

	h.Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(buf.Bytes())
	return err
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) error {
	return JSON(w, r, status, APIError{
		Code:    code,
		Message: message,
		Details: details,
		TraceID: middleware.GetReqID(r.Context()),
	})
}

func envelope(body any) Envelope {
	switch body.(type) {
	case *APIError, APIError:
		return Envelope{"status": "error", "error": body}
	default:
		return Envelope{"status": "ok", "data": body}
	}
}

func encode(v any) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return &buf, nil
}
