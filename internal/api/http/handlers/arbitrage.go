package handlers

import (
	"dexarb/internal/domain"
	"dexarb/internal/service"
	"dexarb/pkg/httputil"
	"errors"
	"net/http"
	"strconv"
)

type arbitragesResponse struct {
	Seq        uint64             `json:"seq"`
	Total      int                `json:"total"`
	Arbitrages []domain.Arbitrage `json:"arbitrages"`
}

// Arbitrages lists ranked candidates of the current iteration, ?limit=N keeps the top N
func (h *Handler) Arbitrages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, r, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	it, ok := h.current(w, r)
	if !ok {
		return
	}

	arbs := it.Arbitrages
	if arbs == nil {
		arbs = []domain.Arbitrage{}
	}
	if limit > 0 && len(arbs) > limit {
		arbs = arbs[:limit]
	}

	resp := arbitragesResponse{Seq: it.Seq, Total: len(it.Arbitrages), Arbitrages: arbs}
	if err := httputil.OK(w, r, resp); err != nil {
		h.Log.Errorf("Arbitrages handler error: %s", err.Error())
	}
}

type statsResponse struct {
	State string           `json:"state"`
	Mode  string           `json:"mode"`
	Last  *service.Summary `json:"last,omitempty"`
}

// Stats never triggers an iteration, it reports the loop state and the last summary
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{State: h.Scanner.State().String(), Mode: h.Scanner.Mode()}

	it, err := h.Scanner.Last()
	switch {
	case err == nil:
		s := it.Summary()
		resp.Last = &s
	case !errors.Is(err, service.ErrNoIteration):
		h.writeError(w, r, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}

	if err = httputil.OK(w, r, resp); err != nil {
		h.Log.Errorf("Stats handler error: %s", err.Error())
	}
}
