package ridbag

import "sync"

// Resolver maps placeholders of newly saved records to their RIDs.
type Resolver interface {
	Resolve(ph Placeholder) (RID, bool)
}

type ResolverFunc func(ph Placeholder) (RID, bool)

func (f ResolverFunc) Resolve(ph Placeholder) (RID, bool) {
	return f(ph)
}

// IdentityMap is a Resolver filled by the owning engine as records are saved.
// RIDs live in an append-only arena indexed by placeholder. Safe for
// concurrent use.
type IdentityMap struct {
	mu    sync.RWMutex
	index map[Placeholder]int
	arena []RID
}

func NewIdentityMap() *IdentityMap {
	return &IdentityMap{index: make(map[Placeholder]int)}
}

// Assign records that ph has been saved as rid. Reassigning a placeholder
// replaces its RID.
func (m *IdentityMap) Assign(ph Placeholder, rid RID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.index[ph]; ok {
		m.arena[i] = rid
		return
	}
	m.index[ph] = len(m.arena)
	m.arena = append(m.arena, rid)
}

func (m *IdentityMap) Resolve(ph Placeholder) (RID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i, ok := m.index[ph]; ok {
		return m.arena[i], true
	}
	return RID{}, false
}

// Forget removes ph, so that it no longer resolves.
func (m *IdentityMap) Forget(ph Placeholder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.index, ph)
}

func (m *IdentityMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index)
}

// Reset forgets every placeholder and releases the arena.
func (m *IdentityMap) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.index)
	m.arena = nil
}
