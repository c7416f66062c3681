package mw

import (
	"dexarb/internal/config"
	"net/http"
	"slices"
	"strings"
)

type CORSMiddleware struct {
	Origins []string
	Methods string
	Headers string
}

func NewCORS(cfg *config.CORSConfig) *CORSMiddleware {
	if cfg == nil {
		panic("CORS config cannot be nil")
	}
	return &CORSMiddleware{
		Origins: cfg.Origins,
		Methods: joinOrDefault(cfg.Methods, "GET, OPTIONS"),
		Headers: joinOrDefault(cfg.Headers, "Authorization, Content-Type"),
	}
}

func (c *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := c.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", c.Methods)
			w.Header().Set("Access-Control-Allow-Headers", c.Headers)
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowedOrigin echoes a listed origin, an empty list allows any
func (c *CORSMiddleware) allowedOrigin(origin string) string {
	if len(c.Origins) == 0 || slices.Contains(c.Origins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(c.Origins, origin) {
		return origin
	}
	return ""
}

func joinOrDefault(v []string, def string) string {
	parts := make([]string, 0, len(v))
	for _, s := range v {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return def
	}
	return strings.Join(parts, ", ")
}
