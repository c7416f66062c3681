package http

import (
	"dexarb/internal/api/http/handlers"
	"dexarb/internal/api/http/mw"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func BuildRouter(
	h *handlers.Handler,
	metrics http.Handler,
	logMW *mw.LoggingMiddleware,
	gzipMW *mw.GzipMiddleware,
	rateLimitMW *mw.RateLimitMiddleware,
	jwtMW *mw.JWTMiddleware,
	corsMW *mw.CORSMiddleware,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if logMW != nil {
		r.Use(logMW.Handler)
	}
	if corsMW != nil {
		r.Use(corsMW.Handler)
	}

	// tech endpoints, no auth
	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	// read API: rate limit, then auth
	r.Route("/api", func(api chi.Router) {
		if gzipMW != nil {
			api.Use(gzipMW.Handler)
		}
		if rateLimitMW != nil {
			api.Use(rateLimitMW.Handler)
		}
		if jwtMW != nil {
			api.Use(jwtMW.Handler)
		}

		api.Get("/graph", h.Graph)
		api.Get("/arbitrages", h.Arbitrages)
		api.Get("/stats", h.Stats)
	})

	return r
}
