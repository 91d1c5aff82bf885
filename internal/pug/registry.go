// internal/pug/registry.go
package pug

import (
	"sync"
)

// Registry is the single owner of every live Match. It hands out snapshots
// only; mutation goes through Service, which holds the match lock.
//
// Lock order is match, then registry. The registry lock is never held
// while a match lock is taken.
type Registry struct {
	mu      sync.RWMutex
	matches map[int64]*Match
	order   []int64

	// members maps each seated player to the match they sit in. A pending
	// create holds id 0 until the store hands back a real id.
	members map[string]int64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		matches: make(map[int64]*Match),
		members: make(map[string]int64),
	}
}

// Lookup returns the latest committed state of match id.
func (r *Registry) Lookup(id int64) (Snapshot, bool) {
	m := r.get(id)
	if m == nil {
		return Snapshot{}, false
	}
	return m.view()
}

// FindByPlayer returns the unresolved match playerID is seated in.
func (r *Registry) FindByPlayer(playerID string) (Snapshot, bool) {
	id, ok := r.MatchOf(playerID)
	if !ok {
		return Snapshot{}, false
	}
	snap, ok := r.Lookup(id)
	if !ok || snap.Status.Terminal() || !snap.Has(playerID) {
		return Snapshot{}, false
	}
	return snap, true
}

// FindByHost returns the first unresolved match, in creation order, hosted
// by playerID.
func (r *Registry) FindByHost(playerID string) (Snapshot, bool) {
	var found Snapshot
	ok := false
	r.ForEachActive(func(s Snapshot) bool {
		if s.Host == playerID {
			found, ok = s, true
			return false
		}
		return true
	})
	return found, ok
}

// ForEachActive calls fn with a snapshot of every unresolved match in
// creation order until fn returns false.
func (r *Registry) ForEachActive(fn func(Snapshot) bool) {
	for _, m := range r.list() {
		snap, ok := m.view()
		if !ok || snap.Status.Terminal() {
			continue
		}
		if !fn(snap) {
			return
		}
	}
}

// Active returns snapshots of every unresolved match.
func (r *Registry) Active() []Snapshot {
	var out []Snapshot
	r.ForEachActive(func(s Snapshot) bool {
		out = append(out, s)
		return true
	})
	return out
}

// MatchOf returns the id of the match playerID is seated in.
func (r *Registry) MatchOf(playerID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.members[playerID]
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// Len counts registered matches, resolved ones still on display included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

func (r *Registry) get(id int64) *Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.matches[id]
}

func (r *Registry) list() []*Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Match, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.matches[id])
	}
	return out
}

func (r *Registry) insert(id int64, m *Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.matches[id]; !exists {
		r.order = append(r.order, id)
	}
	r.matches[id] = m
}

func (r *Registry) remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.matches[id]; !ok {
		return
	}
	delete(r.matches, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for p, mid := range r.members {
		if mid == id {
			delete(r.members, p)
		}
	}
}

// claim seats playerID in matchID. It fails if the player is already
// seated in a different match, or if matchID is 0 and the player already
// holds a seat of any kind: two pending creates never share the
// placeholder.
func (r *Registry) claim(playerID string, matchID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.members[playerID]; ok && (cur != matchID || matchID == 0) {
		return ErrAlreadyInLobby
	}
	r.members[playerID] = matchID
	return nil
}

// rebind moves a pending claim onto the id the store assigned.
func (r *Registry) rebind(playerID string, from, to int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[playerID] == from {
		r.members[playerID] = to
	}
}

// release frees playerID's seat if it still belongs to matchID.
func (r *Registry) release(playerID string, matchID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.members[playerID]; ok && cur == matchID {
		delete(r.members, playerID)
	}
}

func (m *Match) view() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return Snapshot{}, false
	}
	return m.st.snapshot(), true
}
