package handlers

import (
	"context"
	"dexarb/pkg/httputil"
	"net/http"
	"time"
)

const readinessTimeout = 5 * time.Second

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := httputil.OK(w, r, map[string]any{}); err != nil {
		h.Log.Errorf("Healthz handler error: %s", err.Error())
	}
}

// Readiness checks every external dependency the scanner was wired with
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := h.Scanner.CheckDependency(ctx); err != nil {
		h.Log.Warnf("Readiness failed: %v", err)
		err = httputil.Error(w, r, http.StatusServiceUnavailable, "dependencies_unhealthy", "dependencies check failed", map[string]any{
			"error": err.Error(),
		})
		if err != nil {
			h.Log.Errorf("Readiness handler error: %s", err.Error())
		}
		return
	}

	if err := httputil.OK(w, r, map[string]string{"dependencies": "healthy"}); err != nil {
		h.Log.Errorf("Readiness handler error: %s", err.Error())
	}
}
