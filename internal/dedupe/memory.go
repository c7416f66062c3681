package dedupe

import (
	"context"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

var _ Deduper = (*Memory)(nil)

// Memory is a single instance cooldown table
type Memory struct {
	log   logger.Logger
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
	until map[string]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// janitorEvery=0 disables background eviction, expired ids are then
// overwritten lazily on the next Seen
func NewMemory(log logger.Logger, ttl, janitorEvery time.Duration) *Memory {
	m := &Memory{
		log:    log,
		ttl:    ttl,
		now:    time.Now,
		until:  make(map[string]time.Time, 256),
		stopCh: make(chan struct{}),
	}

	if janitorEvery > 0 {
		go m.janitor(janitorEvery)
	}

	return m
}

func (m *Memory) Seen(_ context.Context, id string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.until[id]; ok && exp.After(now) {
		return true, nil
	}
	m.until[id] = now.Add(m.ttl)

	return false, nil
}

func (m *Memory) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.until, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.until)
}

func (m *Memory) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.evict()
		}
	}
}

func (m *Memory) evict() {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, exp := range m.until {
		if !exp.After(now) {
			delete(m.until, id)
			evicted++
		}
	}
	if evicted > 0 {
		m.log.Debugf("Cooldown janitor evicted %d ids", evicted)
	}
}

// Close stops the janitor, safe to call twice
func (m *Memory) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
