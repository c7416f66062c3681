package mw

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"dexarb/internal/security"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== Test Helpers ==========

func generateTestKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return privateKey, &privateKey.PublicKey
}

func createTestToken(t *testing.T, privateKey *rsa.PrivateKey, sub, aud, iss string, expiry time.Duration) string {
	t.Helper()

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   sub,
		Audience:  jwt.ClaimStrings{aud},
		Issuer:    iss,
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		IssuedAt:  jwt.NewNumericDate(now),
	})
	s, err := token.SignedString(privateKey)
	require.NoError(t, err)
	return s
}

func newTestVerifier(pub *rsa.PublicKey) *security.RS256Verifier {
	return &security.RS256Verifier{PubKey: pub, Aud: "arbscan", Iss: "dexarb-test"}
}

// ========== JWT Middleware Tests ==========

func TestNewJWTMiddleware(t *testing.T) {
	_, err := NewJWTMiddleware(nil)
	assert.Error(t, err)

	_, pub := generateTestKeys(t)
	v := newTestVerifier(pub)
	m, err := NewJWTMiddleware(v)
	require.NoError(t, err)
	assert.Equal(t, v, m.verifier)
}

func TestJWTMiddleware_Handler(t *testing.T) {
	priv, pub := generateTestKeys(t)
	otherPriv, _ := generateTestKeys(t)

	m, err := NewJWTMiddleware(newTestVerifier(pub))
	require.NoError(t, err)

	testCases := []struct {
		name       string
		authHeader string
		wantCode   int
		wantSub    string
	}{
		{
			name:       "valid_token",
			authHeader: "Bearer " + createTestToken(t, priv, "desk-1", "arbscan", "dexarb-test", time.Hour),
			wantCode:   http.StatusOK,
			wantSub:    "desk-1",
		},
		{name: "no_header", authHeader: "", wantCode: http.StatusUnauthorized},
		{name: "missing_bearer_prefix", authHeader: "sometoken", wantCode: http.StatusUnauthorized},
		{name: "bearer_without_token", authHeader: "Bearer   ", wantCode: http.StatusUnauthorized},
		{name: "malformed_token", authHeader: "Bearer not.a.jwt", wantCode: http.StatusUnauthorized},
		{
			name:       "expired",
			authHeader: "Bearer " + createTestToken(t, priv, "desk-1", "arbscan", "dexarb-test", -time.Hour),
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "wrong_audience",
			authHeader: "Bearer " + createTestToken(t, priv, "desk-1", "other", "dexarb-test", time.Hour),
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "wrong_issuer",
			authHeader: "Bearer " + createTestToken(t, priv, "desk-1", "arbscan", "other", time.Hour),
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "wrong_signature",
			authHeader: "Bearer " + createTestToken(t, otherPriv, "desk-1", "arbscan", "dexarb-test", time.Hour),
			wantCode:   http.StatusUnauthorized,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var gotSub string
			called := false
			h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				gotSub = SubjectFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantCode == http.StatusOK, called)
			assert.Equal(t, tc.wantSub, gotSub)
		})
	}
}

func TestJWTMiddleware_NilVerifierPassesThrough(t *testing.T) {
	m := &JWTMiddleware{}

	called := false
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, called)
}

func TestSubjectFromContext(t *testing.T) {
	assert.Equal(t, "s", SubjectFromContext(context.WithValue(context.Background(), claimsCtxKey{}, "s")))
	assert.Empty(t, SubjectFromContext(context.Background()))
	assert.Empty(t, SubjectFromContext(context.WithValue(context.Background(), claimsCtxKey{}, 42)))
}
