package handlers

import (
	"bytes"
	"context"
	"dexarb/internal/graph"
	"dexarb/pkg/httputil"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// Renderer turns DOT source into an image format
type Renderer interface {
	Render(ctx context.Context, format string, dot []byte) ([]byte, error)
}

// DotRenderer shells out to the Graphviz binary
type DotRenderer struct {
	Binary  string
	Timeout time.Duration
}

func (d DotRenderer) Render(ctx context.Context, format string, dot []byte) ([]byte, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.Binary, "-T"+format)
	cmd.Stdin = bytes.NewReader(dot)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s -T%s: %w: %s", d.Binary, format, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

var graphContentTypes = map[string]string{
	"dot": "text/vnd.graphviz; charset=utf-8",
	"svg": "image/svg+xml",
	"png": "image/png",
}

// Graph serves the exchange-rate graph of the current iteration with detected cycles
// highlighted: ?format=dot|svg|png, ?highlight=false draws it plain
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "dot"
	}
	contentType, ok := graphContentTypes[format]
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "bad_format", fmt.Sprintf("unsupported format %q", format))
		return
	}
	if format != "dot" && h.Renderer == nil {
		h.writeError(w, r, http.StatusNotImplemented, "renderer_disabled", "only dot output is available")
		return
	}

	it, ok := h.current(w, r)
	if !ok {
		return
	}

	highlight := it.Cycles
	if r.URL.Query().Get("highlight") == "false" {
		highlight = nil
	}

	var buf bytes.Buffer
	if err := graph.WriteDOT(&buf, it.Graph, it.Index, highlight); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "render_failed", err.Error())
		return
	}

	body := buf.Bytes()
	if format != "dot" {
		out, err := h.Renderer.Render(r.Context(), format, body)
		if err != nil {
			h.Log.Errorf("Graph render failed, format=%s error=%v", format, err)
			h.writeError(w, r, http.StatusBadGateway, "render_failed", err.Error())
			return
		}
		body = out
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Iteration-Seq", fmt.Sprint(it.Seq))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.Log.Errorf("Graph handler write error: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	if err := httputil.Error(w, r, status, code, msg, nil); err != nil {
		h.Log.Errorf("Failed to write error response: %v", err)
	}
}
