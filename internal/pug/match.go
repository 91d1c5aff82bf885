// internal/pug/match.go
package pug

import (
	"sync"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// TotalSlots is the width of the in-memory slot array, four per team.
const TotalSlots = 2 * models.SlotsPerTeam

// MaxNoteLen caps the free-text note shown on a lobby.
const MaxNoteLen = 24

// Match is one live lobby. Its state is only touched while mu is held, and
// callers outside the package only ever see a Snapshot.
type Match struct {
	mu      sync.Mutex
	st      state
	removed bool
}

// state is the mutable part of a Match. Operations mutate a clone and
// swap it in once the store has accepted the change.
type state struct {
	id       int64
	mode     string
	capacity int
	host     string
	status   models.Status
	players  [TotalSlots]string

	ready   playerSet
	mutiny  playerSet
	needSub playerSet

	mapName string
	note    string
	handle  Handle
}

type playerSet map[string]struct{}

func (s playerSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

// toggle flips membership and reports whether id is now present.
func (s playerSet) toggle(id string) bool {
	if s.has(id) {
		delete(s, id)
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s playerSet) clone() playerSet {
	out := make(playerSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

func newState(id int64, mode string, capacity int, host, note string) state {
	st := state{
		id:       id,
		mode:     mode,
		capacity: capacity,
		host:     host,
		status:   models.StatusLobby,
		ready:    playerSet{},
		mutiny:   playerSet{},
		needSub:  playerSet{},
		note:     truncateNote(note),
	}
	st.players[0] = host
	return st
}

func (st state) clone() state {
	out := st
	out.ready = st.ready.clone()
	out.mutiny = st.mutiny.clone()
	out.needSub = st.needSub.clone()
	return out
}

func slotIndex(team models.Team, i int) int {
	return (int(team)-1)*models.SlotsPerTeam + i
}

func teamOf(idx int) models.Team {
	if idx < models.SlotsPerTeam {
		return models.TeamA
	}
	return models.TeamB
}

func (st *state) occupants() int {
	n := 0
	for _, p := range st.players {
		if p != "" {
			n++
		}
	}
	return n
}

func (st *state) full() bool {
	return st.occupants() == 2*st.capacity
}

func (st *state) slotOf(playerID string) int {
	if playerID == "" {
		return -1
	}
	for i, p := range st.players {
		if p == playerID {
			return i
		}
	}
	return -1
}

func (st *state) teamCount(team models.Team) int {
	n := 0
	for i := 0; i < st.capacity; i++ {
		if st.players[slotIndex(team, i)] != "" {
			n++
		}
	}
	return n
}

// firstEmpty returns the lowest empty slot of team within capacity, or -1.
func (st *state) firstEmpty(team models.Team) int {
	for i := 0; i < st.capacity; i++ {
		if idx := slotIndex(team, i); st.players[idx] == "" {
			return idx
		}
	}
	return -1
}

// vacate empties slot idx and drops its occupant from every vote set.
// It returns the former occupant.
func (st *state) vacate(idx int) string {
	p := st.players[idx]
	st.players[idx] = ""
	delete(st.ready, p)
	delete(st.mutiny, p)
	delete(st.needSub, p)
	return p
}

func (st *state) lowestOccupied() string {
	for _, p := range st.players {
		if p != "" {
			return p
		}
	}
	return ""
}

func (st *state) mutinyThreshold() int {
	return st.occupants()/2 + 1
}

func (st *state) members() []string {
	var out []string
	for _, p := range st.players {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (st *state) teamSlots(team models.Team) models.TeamSlots {
	var ts models.TeamSlots
	copy(ts[:], st.players[slotIndex(team, 0):slotIndex(team, models.SlotsPerTeam)])
	return ts
}

// resolveSlot converts a 1-based display slot into an index of players.
// Team A shows as 1..capacity and team B continues from capacity+1.
func (st *state) resolveSlot(display int) (int, error) {
	idx := display - 1
	if idx < 0 || idx >= 2*st.capacity {
		return -1, ErrInvalidSlot
	}
	if idx >= st.capacity {
		idx += models.SlotsPerTeam - st.capacity
	}
	return idx, nil
}

// inOrder lists set members in slot order.
func (st *state) inOrder(set playerSet) []string {
	var out []string
	for _, p := range st.players {
		if p != "" && set.has(p) {
			out = append(out, p)
		}
	}
	return out
}

func (st *state) snapshot() Snapshot {
	return Snapshot{
		ID:       st.id,
		Mode:     st.mode,
		Capacity: st.capacity,
		Host:     st.host,
		Status:   st.status,
		Players:  st.players,
		Ready:    st.inOrder(st.ready),
		Mutiny:   st.inOrder(st.mutiny),
		NeedSub:  st.inOrder(st.needSub),
		Map:      st.mapName,
		Note:     st.note,
		Handle:   st.handle,
	}
}

func truncateNote(note string) string {
	r := []rune(note)
	if len(r) > MaxNoteLen {
		return string(r[:MaxNoteLen])
	}
	return note
}

// Snapshot is an immutable copy of a match taken under its lock.
type Snapshot struct {
	ID       int64              `json:"id"`
	Mode     string             `json:"mode"`
	Capacity int                `json:"capacity"`
	Host     string             `json:"host"`
	Status   models.Status      `json:"status"`
	Players  [TotalSlots]string `json:"players"`
	Ready    []string           `json:"ready"`
	Mutiny   []string           `json:"mutiny"`
	NeedSub  []string           `json:"need_sub"`
	Map      string             `json:"map,omitempty"`
	Note     string             `json:"note,omitempty"`
	Handle   Handle             `json:"-"`

	dropped bool // cancelled out from under its occupants
}

// Occupants counts filled slots.
func (s Snapshot) Occupants() int {
	n := 0
	for _, p := range s.Players {
		if p != "" {
			n++
		}
	}
	return n
}

// MaxPlayers is the number of slots the mode allows across both teams.
func (s Snapshot) MaxPlayers() int { return 2 * s.Capacity }

// Has reports whether playerID occupies a slot.
func (s Snapshot) Has(playerID string) bool {
	for _, p := range s.Players {
		if p != "" && p == playerID {
			return true
		}
	}
	return false
}

// MutinyThreshold is the vote count that cancels a live match.
func (s Snapshot) MutinyThreshold() int { return s.Occupants()/2 + 1 }

// Cancelled reports whether the header should read as cancelled.
func (s Snapshot) Cancelled() bool {
	return s.dropped || s.Occupants() == 0 || len(s.Mutiny) >= s.MutinyThreshold()
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
