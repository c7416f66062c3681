package httputil

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== Test Helpers ==========

type body struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

func serve(t *testing.T, h http.HandlerFunc) (*httptest.ResponseRecorder, body) {
	t.Helper()
	rec := httptest.NewRecorder()
	middleware.RequestID(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var b body
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	}
	return rec, b
}

// ========== JSON ==========

func TestOK_WrapsDataAndStampsRequestID(t *testing.T) {
	rec, b := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, OK(w, r, map[string]int{"seq": 7}))
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", b.Status)
	assert.JSONEq(t, `{"seq":7}`, string(b.Data))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestError_TraceIDMatchesHeader(t *testing.T) {
	rec, b := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, Error(w, r, http.StatusServiceUnavailable, "no_iteration", "no iteration yet", nil))
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", b.Status)
	require.NotNil(t, b.Error)
	assert.Equal(t, "no_iteration", b.Error.Code)
	assert.Equal(t, rec.Header().Get(RequestIDHeader), b.Error.TraceID)
}

func TestJSON_UnencodableBodyBecomes500(t *testing.T) {
	rec, b := serve(t, func(w http.ResponseWriter, r *http.Request) {
		err := OK(w, r, map[string]float64{"final_stake": math.Inf(1)})
		assert.Error(t, err)
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, b.Error)
	assert.Equal(t, "encode_failed", b.Error.Code)
	assert.Equal(t, rec.Header().Get(RequestIDHeader), b.Error.TraceID)
}

func TestJSON_NoContent(t *testing.T) {
	rec, _ := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, JSON(w, r, http.StatusNoContent, nil))
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}
