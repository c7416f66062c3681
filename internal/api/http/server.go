package http

import (
	"context"
	"dexarb/internal/api/http/handlers"
	"dexarb/internal/api/http/mw"
	"dexarb/internal/config"
	"dexarb/internal/security"
	rdb "dexarb/internal/stores/redis"
	"errors"
	"net"
	"net/http"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

const renderTimeout = 10 * time.Second

type ServerDeps struct {
	Logger   logger.Logger
	Cfg      *config.Config
	Rdb      *rdb.Client             // nil disables rate limiting
	Verifier *security.RS256Verifier // nil disables auth on /api
	Scanner  handlers.Scanner
	Metrics  http.Handler
}

type Server struct {
	log logger.Logger
	srv *http.Server
}

func NewServer(d *ServerDeps) (*Server, error) {
	if d == nil || d.Cfg == nil || d.Scanner == nil {
		return nil, errors.New("http server requires config and scanner")
	}

	httpCfg := d.Cfg.API.HTTP

	var renderer handlers.Renderer
	if httpCfg.DotBinary != "" {
		renderer = handlers.DotRenderer{Binary: httpCfg.DotBinary, Timeout: renderTimeout}
	}
	h := handlers.NewHandler(d.Logger, d.Scanner, renderer)

	var corsMW *mw.CORSMiddleware
	if httpCfg.CORS.Enabled {
		corsMW = mw.NewCORS(&httpCfg.CORS)
	}

	var jwtMW *mw.JWTMiddleware
	if d.Verifier != nil {
		var err error
		if jwtMW, err = mw.NewJWTMiddleware(d.Verifier); err != nil {
			return nil, err
		}
	}

	var rateLimitMW *mw.RateLimitMiddleware
	if d.Cfg.RateLimit.Enabled && d.Rdb != nil {
		rateLimitMW = mw.NewRateLimit(&d.Cfg.RateLimit, d.Rdb, d.Verifier)
	}

	router := BuildRouter(h, d.Metrics,
		mw.NewLogging(d.Logger),
		mw.NewGzip(0, d.Logger),
		rateLimitMW,
		jwtMW,
		corsMW,
	)

	return &Server{
		log: d.Logger,
		srv: &http.Server{
			Addr:              httpCfg.Addr,
			Handler:           router,
			ReadTimeout:       httpCfg.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      httpCfg.WriteTimeout,
			IdleTimeout:       httpCfg.IdleTimeout,
		},
	}, nil
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start blocks until the listener fails or Shutdown is called
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Infof("HTTP server listening on %s", ln.Addr())
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
