package quotes

import (
	"dexarb/internal/domain"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"gitlab.com/nevasik7/alerting/logger"
)

/*
	Latest quote per pool plus a "protocol|asset" secondary index
	Writers (ingestion) and readers (orchestrator) only contend on a shard;
	the gate is write-locked by Clear alone, so readers see either the old or the empty state
*/

type Store interface {
	Upsert(q domain.Quote) error
	Snapshot() []domain.Quote
	IndexBy(protocol, asset string) []domain.Quote
	Clear()
	Len() int
}

const defaultShards = 32

type quoteShard struct {
	mu    sync.RWMutex
	items map[string]domain.Quote // key = quote id
}

type indexShard struct {
	mu    sync.RWMutex
	items map[string]map[string]struct{} // key = "protocol|asset" -> quote ids
}

type ShardedStore struct {
	log    logger.Logger
	scheme domain.KeyScheme

	gate   sync.RWMutex
	mask   uint32
	quotes []*quoteShard
	index  []*indexShard
}

// shards is rounded up to a power of two
func NewShardedStore(log logger.Logger, scheme domain.KeyScheme, shards int) *ShardedStore {
	if shards <= 0 {
		shards = defaultShards
	}
	n := 1
	for n < shards {
		n <<= 1
	}

	s := &ShardedStore{
		log:    log,
		scheme: scheme,
		mask:   uint32(n - 1),
		quotes: make([]*quoteShard, n),
		index:  make([]*indexShard, n),
	}
	for i := 0; i < n; i++ {
		s.quotes[i] = &quoteShard{items: make(map[string]domain.Quote, 64)}
		s.index[i] = &indexShard{items: make(map[string]map[string]struct{}, 64)}
	}

	return s
}

func (s *ShardedStore) Scheme() domain.KeyScheme {
	return s.scheme
}

// Upsert inserts or overwrites by quote id, malformed quotes never get in
func (s *ShardedStore) Upsert(q domain.Quote) error {
	if err := q.Validate(); err != nil {
		return fmt.Errorf("upsert rejected: %w", err)
	}

	s.gate.RLock()
	defer s.gate.RUnlock()

	qs := s.quotes[s.shardOf(q.ID)]
	qs.mu.Lock()
	prev, existed := qs.items[q.ID]
	qs.items[q.ID] = q
	qs.mu.Unlock()

	newKeys := s.indexKeys(&q)
	if existed {
		for _, k := range s.indexKeys(&prev) {
			if k != newKeys[0] && k != newKeys[1] {
				s.unindex(k, q.ID)
			}
		}
	}
	for _, k := range newKeys {
		s.addIndex(k, q.ID)
	}

	return nil
}

// Snapshot copies every current quote, not linearizable with concurrent upserts
func (s *ShardedStore) Snapshot() []domain.Quote {
	s.gate.RLock()
	defer s.gate.RUnlock()

	out := make([]domain.Quote, 0, s.lenLocked())
	for _, qs := range s.quotes {
		qs.mu.RLock()
		for _, q := range qs.items {
			out = append(out, q)
		}
		qs.mu.RUnlock()
	}

	return out
}

// IndexBy returns the quotes of protocol where asset is token0 or token1
func (s *ShardedStore) IndexBy(protocol, asset string) []domain.Quote {
	key := makeIndexKey(protocol, normalizeAsset(s.scheme, asset))

	s.gate.RLock()
	defer s.gate.RUnlock()

	is := s.index[s.shardOf(key)]
	is.mu.RLock()
	ids := make([]string, 0, len(is.items[key]))
	for id := range is.items[key] {
		ids = append(ids, id)
	}
	is.mu.RUnlock()

	out := make([]domain.Quote, 0, len(ids))
	for _, id := range ids {
		qs := s.quotes[s.shardOf(id)]
		qs.mu.RLock()
		q, ok := qs.items[id]
		qs.mu.RUnlock()

		// index entry may lag behind a concurrent re-pairing of the same id
		if ok && s.touches(&q, key) {
			out = append(out, q)
		}
	}

	return out
}

// Clear empties quotes and index in one step for every reader
func (s *ShardedStore) Clear() {
	s.gate.Lock()
	defer s.gate.Unlock()

	for i := range s.quotes {
		s.quotes[i].items = make(map[string]domain.Quote, 64)
		s.index[i].items = make(map[string]map[string]struct{}, 64)
	}

	s.log.Debug("Quote store cleared")
}

func (s *ShardedStore) Len() int {
	s.gate.RLock()
	defer s.gate.RUnlock()
	return s.lenLocked()
}

func (s *ShardedStore) lenLocked() int {
	n := 0
	for _, qs := range s.quotes {
		qs.mu.RLock()
		n += len(qs.items)
		qs.mu.RUnlock()
	}
	return n
}

func (s *ShardedStore) addIndex(key, id string) {
	is := s.index[s.shardOf(key)]
	is.mu.Lock()
	set, ok := is.items[key]
	if !ok {
		set = make(map[string]struct{}, 4)
		is.items[key] = set
	}
	set[id] = struct{}{}
	is.mu.Unlock()
}

func (s *ShardedStore) unindex(key, id string) {
	is := s.index[s.shardOf(key)]
	is.mu.Lock()
	if set, ok := is.items[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(is.items, key)
		}
	}
	is.mu.Unlock()
}

func (s *ShardedStore) indexKeys(q *domain.Quote) [2]string {
	return [2]string{
		makeIndexKey(q.Protocol, q.Token0.Key(s.scheme)),
		makeIndexKey(q.Protocol, q.Token1.Key(s.scheme)),
	}
}

func (s *ShardedStore) touches(q *domain.Quote, key string) bool {
	keys := s.indexKeys(q)
	return keys[0] == key || keys[1] == key
}

func (s *ShardedStore) shardOf(key string) uint32 {
	return uint32(xxhash.Sum64String(key)) & s.mask
}

func makeIndexKey(protocol, asset string) string {
	return protocol + "|" + asset
}

func normalizeAsset(scheme domain.KeyScheme, asset string) string {
	if scheme == domain.KeyBySymbol {
		return domain.Asset{Symbol: asset}.Key(scheme)
	}
	return domain.Asset{Address: asset}.Key(scheme)
}
