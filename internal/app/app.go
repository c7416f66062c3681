package app

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"gitlab.com/nevasik7/alerting/logger"
)

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// Worker is a long running loop bound to the app lifetime
type Worker struct {
	Name string
	Run  func(ctx context.Context) error
}

type App struct {
	log     logger.Logger
	httpSrv HTTPServer
	workers []Worker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(log logger.Logger, httpSrv HTTPServer, workers ...Worker) *App {
	return &App{log: log, httpSrv: httpSrv, workers: workers}
}

func (a *App) Start() error {
	a.log.Debug("App started begin...")

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	for _, w := range a.workers {
		a.wg.Add(1)
		go func(w Worker) {
			defer a.wg.Done()
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				a.log.Errorf("Worker %s stopped with error=%v", w.Name, err)
				return
			}
			a.log.Infof("Worker %s stopped", w.Name)
		}(w)
	}

	if a.httpSrv != nil {
		go func() {
			if err := a.httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Fatalf("Start HTTP server is error=%v", err)
			}
		}()
	}

	a.log.Infof("App started, workers=%d", len(a.workers))
	return nil
}

// Shutdown stops accepting requests first, then cancels the workers and waits for them
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debug("App stopped begin...")

	var errs []error
	if a.httpSrv != nil {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, errors.New("workers did not stop before the shutdown deadline"))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	a.log.Info("App stopped")
	return nil
}
