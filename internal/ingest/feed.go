package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gitlab.com/nevasik7/alerting/logger"
)

type FeedConfig struct {
	URL            string
	ChainID        uint32
	IDMode         string
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	ReadLimitBytes int64
}

// FeedSource consumes pool updates pushed over a websocket
type FeedSource struct {
	log    logger.Logger
	cfg    FeedConfig
	dialer *websocket.Dialer
	now    func() time.Time
}

func NewFeedSource(log logger.Logger, cfg FeedConfig) (*FeedSource, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed url is required")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 3 * cfg.PingInterval
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 500 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.ReadLimitBytes <= 0 {
		cfg.ReadLimitBytes = 4 << 20
	}

	return &FeedSource{
		log:    log,
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		now:    time.Now,
	}, nil
}

// Run reconnects with exponential backoff until ctx is done
func (f *FeedSource) Run(ctx context.Context, sink Sink) error {
	delay := f.cfg.ReconnectMin

	for {
		connected, err := f.session(ctx, sink)
		if ctx.Err() != nil {
			return nil
		}

		if connected {
			delay = f.cfg.ReconnectMin
		}
		f.log.Warnf("Feed connection lost, reconnect in %s, error=%v", delay, err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		if !connected {
			delay *= 2
			if delay > f.cfg.ReconnectMax {
				delay = f.cfg.ReconnectMax
			}
		}
	}
}

// session serves one connection; connected reports whether the handshake succeeded
func (f *FeedSource) session(ctx context.Context, sink Sink) (connected bool, err error) {
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	f.log.Infof("Connected to feed, url=%s", f.cfg.URL)

	conn.SetReadLimit(f.cfg.ReadLimitBytes)
	_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	})

	var writeMu sync.Mutex
	var wg sync.WaitGroup
	defer wg.Wait()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.keepalive(connCtx, conn, &writeMu)
	}()

	// unblock ReadMessage on shutdown
	go func() {
		<-connCtx.Done()
		writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		writeMu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, rerr := conn.ReadMessage()
		if rerr != nil {
			return true, rerr
		}
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))

		pools, derr := DecodePools(data)
		if derr != nil {
			f.log.Warnf("Skip feed message, error=%v", derr)
			continue
		}
		Feed(f.log, sink, pools, f.cfg.IDMode, f.cfg.ChainID, f.now())
	}
}

func (f *FeedSource) keepalive(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) {
	t := time.NewTicker(f.cfg.PingInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			writeMu.Unlock()
			if err != nil {
				f.log.Debugf("Feed ping failed, error=%v", err)
				return
			}
		}
	}
}
