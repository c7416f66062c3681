package handlers

import (
	"context"
	"dexarb/internal/service"
	"dexarb/pkg/httputil"
	"errors"
	"net/http"

	"gitlab.com/nevasik7/alerting/logger"
)

// Scanner is the read side of the orchestrator
type Scanner interface {
	Current(ctx context.Context) (*service.Iteration, error)
	Last() (*service.Iteration, error)
	State() service.State
	Mode() string
	CheckDependency(ctx context.Context) error
}

type Handler struct {
	Log      logger.Logger
	Scanner  Scanner
	Renderer Renderer // nil disables non-DOT graph formats
}

func NewHandler(log logger.Logger, scanner Scanner, renderer Renderer) *Handler {
	if scanner == nil {
		panic("scanner cannot be nil")
	}

	return &Handler{Log: log, Scanner: scanner, Renderer: renderer}
}

// current writes the error response itself when no iteration can be served
func (h *Handler) current(w http.ResponseWriter, r *http.Request) (*service.Iteration, bool) {
	it, err := h.Scanner.Current(r.Context())
	if err == nil {
		return it, true
	}

	status, code := http.StatusInternalServerError, "iteration_failed"
	switch {
	case errors.Is(err, service.ErrNoIteration):
		status, code = http.StatusServiceUnavailable, "no_iteration"
	case errors.Is(err, service.ErrEmptyStore):
		status, code = http.StatusServiceUnavailable, "empty_store"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status, code = http.StatusGatewayTimeout, "iteration_timeout"
	}

	if werr := httputil.Error(w, r, status, code, err.Error(), nil); werr != nil {
		h.Log.Errorf("Failed to write error response: %v", werr)
	}
	return nil, false
}
