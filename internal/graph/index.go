package graph

import "dexarb/internal/domain"

// Dense bijection between asset identity and [0, N), in discovery order
type VertexIndex struct {
	pos    map[string]int
	keys   []string
	assets []domain.Asset // first asset seen for each key
}

func NewVertexIndex(capacity int) *VertexIndex {
	return &VertexIndex{
		pos:    make(map[string]int, capacity),
		keys:   make([]string, 0, capacity),
		assets: make([]domain.Asset, 0, capacity),
	}
}

// add returns the index of key, assigning the next one if key is new
func (vi *VertexIndex) add(key string, a domain.Asset) int {
	if i, ok := vi.pos[key]; ok {
		return i
	}
	i := len(vi.keys)
	vi.pos[key] = i
	vi.keys = append(vi.keys, key)
	vi.assets = append(vi.assets, a)
	return i
}

func (vi *VertexIndex) Index(key string) (int, bool) {
	i, ok := vi.pos[key]
	return i, ok
}

func (vi *VertexIndex) Key(i int) string {
	return vi.keys[i]
}

func (vi *VertexIndex) Asset(i int) domain.Asset {
	return vi.assets[i]
}

func (vi *VertexIndex) Len() int {
	return len(vi.keys)
}

func (vi *VertexIndex) Keys() []string {
	out := make([]string, len(vi.keys))
	copy(out, vi.keys)
	return out
}
