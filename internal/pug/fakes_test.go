package pug

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/pugbot/internal/config"
	"github.com/jason-s-yu/pugbot/internal/cooldown"
	"github.com/jason-s-yu/pugbot/internal/database/memstore"
	"github.com/jason-s-yu/pugbot/internal/models"
)

const (
	lobbyChan = "lobby"
	brdChan   = "broadcast"
)

// fakePresenter records everything the service shows.
type fakePresenter struct {
	mu      sync.Mutex
	next    int
	posts   map[string][]string // channel -> texts
	texts   map[string]string   // message id -> latest text
	marks   map[string][]string // message id -> symbols
	deleted map[string]bool

	failPost bool
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{
		posts:   make(map[string][]string),
		texts:   make(map[string]string),
		marks:   make(map[string][]string),
		deleted: make(map[string]bool),
	}
}

func (p *fakePresenter) Post(_ context.Context, channelID, text string) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failPost && channelID == lobbyChan {
		return Handle{}, errors.New("post failed")
	}
	p.next++
	h := Handle{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", p.next)}
	p.posts[channelID] = append(p.posts[channelID], text)
	p.texts[h.MessageID] = text
	return h, nil
}

func (p *fakePresenter) Edit(_ context.Context, h Handle, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts[h.MessageID] = text
	return nil
}

func (p *fakePresenter) ClearMarks(_ context.Context, h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[h.MessageID] = nil
	return nil
}

func (p *fakePresenter) AddMark(_ context.Context, h Handle, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[h.MessageID] = append(p.marks[h.MessageID], symbol)
	return nil
}

func (p *fakePresenter) Delete(_ context.Context, h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted[h.MessageID] = true
	return nil
}

func (p *fakePresenter) text(h Handle) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[h.MessageID]
}

func (p *fakePresenter) markList(h Handle) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.marks[h.MessageID]...)
}

func (p *fakePresenter) broadcasts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.posts[brdChan]...)
}

func (p *fakePresenter) wasDeleted(h Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deleted[h.MessageID]
}

// fakeRoles grants roles from a fixed table.
type fakeRoles map[string][]string

func (r fakeRoles) HasRole(_ context.Context, playerID, roleID string) (bool, error) {
	for _, role := range r[playerID] {
		if role == roleID {
			return true, nil
		}
	}
	return false, nil
}

// manualDeferrer holds tasks until the test runs them.
type manualDeferrer struct {
	mu    sync.Mutex
	tasks []deferred
}

type deferred struct {
	name string
	d    time.Duration
	fn   func()
}

func (d *manualDeferrer) After(name string, delay time.Duration, fn func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, deferred{name, delay, fn})
	return nil
}

// fire runs and drops every pending task whose name starts with prefix.
func (d *manualDeferrer) fire(prefix string) int {
	d.mu.Lock()
	var run []func()
	kept := d.tasks[:0]
	for _, t := range d.tasks {
		if strings.HasPrefix(t.name, prefix) {
			run = append(run, t.fn)
		} else {
			kept = append(kept, t)
		}
	}
	d.tasks = kept
	d.mu.Unlock()

	for _, fn := range run {
		fn()
	}
	return len(run)
}

// recordingSink keeps published events.
type recordingSink struct {
	mu     sync.Mutex
	events []models.LobbyEvent
}

func (r *recordingSink) Publish(_ context.Context, ev models.LobbyEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// failingStore wraps a store and fails the named methods. Stores handed
// out by Atomic share the same faults, so a failure partway through an
// operation can be staged.
type failingStore struct {
	RecordStore
	*faults
}

// faults maps a method to the call that fails, counting from 1 after the
// fault is set. Zero fails every call.
type faults struct {
	mu    sync.Mutex
	fail  map[string]int
	calls map[string]int
}

var errStoreDown = errors.New("store down")

func newFailingStore() *failingStore {
	return &failingStore{faults: &faults{fail: map[string]int{}, calls: map[string]int{}}}
}

func (f *faults) failOn(method string, call int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = call
	f.calls[method] = 0
}

func (f *faults) heal(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fail, method)
}

func (f *faults) hit(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.fail[method]
	if !ok {
		return false
	}
	f.calls[method]++
	return n == 0 || f.calls[method] == n
}

func (f *failingStore) Atomic(ctx context.Context, fn func(tx RecordStore) error) error {
	return f.RecordStore.Atomic(ctx, func(tx RecordStore) error {
		return fn(&failingStore{RecordStore: tx, faults: f.faults})
	})
}

func (f *failingStore) AddPlayerToTeam(ctx context.Context, id int64, p string, t models.Team, c int) (int, error) {
	if f.hit("AddPlayerToTeam") {
		return -1, errStoreDown
	}
	return f.RecordStore.AddPlayerToTeam(ctx, id, p, t, c)
}

func (f *failingStore) SetWinner(ctx context.Context, id int64, code models.Status) error {
	if f.hit("SetWinner") {
		return errStoreDown
	}
	return f.RecordStore.SetWinner(ctx, id, code)
}

func (f *failingStore) SetHost(ctx context.Context, id int64, p string) error {
	if f.hit("SetHost") {
		return errStoreDown
	}
	return f.RecordStore.SetHost(ctx, id, p)
}

func (f *failingStore) RemovePlayer(ctx context.Context, id int64, p string) (bool, error) {
	if f.hit("RemovePlayer") {
		return false, errStoreDown
	}
	return f.RecordStore.RemovePlayer(ctx, id, p)
}

func (f *failingStore) RecordResult(ctx context.Context, p string, won bool) error {
	if f.hit("RecordResult") {
		return errStoreDown
	}
	return f.RecordStore.RecordResult(ctx, p, won)
}

func (f *failingStore) RecordRuinedMatch(ctx context.Context, p string) error {
	if f.hit("RecordRuinedMatch") {
		return errStoreDown
	}
	return f.RecordStore.RecordRuinedMatch(ctx, p)
}

func (f *failingStore) WriteTeamSlots(ctx context.Context, id int64, t models.Team, s models.TeamSlots) error {
	if f.hit("WriteTeamSlots") {
		return errStoreDown
	}
	return f.RecordStore.WriteTeamSlots(ctx, id, t, s)
}

func (f *failingStore) DeleteMatch(ctx context.Context, id int64) error {
	if f.hit("DeleteMatch") {
		return errStoreDown
	}
	return f.RecordStore.DeleteMatch(ctx, id)
}

// slowStore stalls match creation so concurrent creates overlap.
type slowStore struct {
	RecordStore
	delay time.Duration
}

func (s slowStore) CreateMatch(ctx context.Context, hostID, mode string) (int64, error) {
	time.Sleep(s.delay)
	return s.RecordStore.CreateMatch(ctx, hostID, mode)
}

// misseatStore seats the player but reports a slot past the team's
// capacity.
type misseatStore struct {
	RecordStore
}

func (m misseatStore) AddPlayerToTeam(ctx context.Context, id int64, p string, t models.Team, c int) (int, error) {
	if _, err := m.RecordStore.AddPlayerToTeam(ctx, id, p, t, c); err != nil {
		return -1, err
	}
	return c, nil
}

func (m misseatStore) Atomic(ctx context.Context, fn func(tx RecordStore) error) error {
	return m.RecordStore.Atomic(ctx, func(tx RecordStore) error {
		return fn(misseatStore{tx})
	})
}

// seatlessStore reports every removal as a player it had no seat for.
type seatlessStore struct {
	RecordStore
}

func (seatlessStore) RemovePlayer(context.Context, int64, string) (bool, error) {
	return false, nil
}

func (s seatlessStore) Atomic(ctx context.Context, fn func(tx RecordStore) error) error {
	return s.RecordStore.Atomic(ctx, func(tx RecordStore) error {
		return fn(seatlessStore{tx})
	})
}

// warned reports whether a warning with msg was logged.
func (h *harness) warned(msg string) bool {
	for _, e := range h.logs.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == msg {
			return true
		}
	}
	return false
}

type harness struct {
	svc      *Service
	store    *memstore.Store
	pres     *fakePresenter
	deferrer *manualDeferrer
	sink     *recordingSink
	settings *config.Settings
	logs     *test.Hook
}

type harnessOpt func(*harness, *Options)

func withSettings(fn func(*config.Settings)) harnessOpt {
	return func(h *harness, _ *Options) { fn(h.settings) }
}

func withStore(wrap func(RecordStore) RecordStore) harnessOpt {
	return func(_ *harness, o *Options) { o.Store = wrap(o.Store) }
}

func withRoles(r RoleChecker) harnessOpt {
	return func(_ *harness, o *Options) { o.Roles = r }
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	logger, logs := test.NewNullLogger()
	logger.SetLevel(logrus.WarnLevel)

	s := config.DefaultSettings()
	s.LobbyChannel = lobbyChan
	s.BroadChannel = brdChan
	s.Verbosity = 4

	h := &harness{
		store:    memstore.New(),
		pres:     newFakePresenter(),
		deferrer: &manualDeferrer{},
		sink:     &recordingSink{},
		settings: &s,
		logs:     logs,
	}
	o := Options{
		Store:     h.store,
		Presenter: h.pres,
		Events:    h.sink,
		Deferrer:  h.deferrer,
		Settings:  h.settings,
		Grace:     time.Second,
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(h, &o)
	}
	o.Cooldowns = cooldown.NewScheduler(h.deferrer, time.Minute, logger)
	h.svc = NewService(o)
	h.svc.pick = func(int) int { return 0 }
	return h
}

// lobby creates a match hosted by host and seats the others with auto
// team selection.
func (h *harness) lobby(t *testing.T, mode, host string, others ...string) Snapshot {
	t.Helper()
	ctx := context.Background()
	snap, err := h.svc.Create(ctx, host, mode, "")
	require.NoError(t, err)
	for _, p := range others {
		require.NoError(t, h.svc.Join(ctx, snap.ID, p, 0))
	}
	snap, ok := h.svc.Registry().Lookup(snap.ID)
	require.True(t, ok)
	return snap
}

func (h *harness) lookup(t *testing.T, id int64) Snapshot {
	t.Helper()
	snap, ok := h.svc.Registry().Lookup(id)
	require.True(t, ok, "match %d should be registered", id)
	return snap
}

// checkInvariants asserts the registry-wide slot and vote set rules.
func checkInvariants(t *testing.T, r *Registry) {
	t.Helper()
	seen := map[string]int64{}
	for _, m := range r.list() {
		snap, ok := m.view()
		if !ok {
			continue
		}
		require.Len(t, snap.Players, TotalSlots)
		for i, p := range snap.Players {
			if p == "" {
				continue
			}
			if !snap.Status.Terminal() {
				prev, dup := seen[p]
				require.False(t, dup, "player %s in match %d and %d", p, prev, snap.ID)
				seen[p] = snap.ID
			}
			team := teamOf(i)
			require.Less(t, i-slotIndex(team, 0), snap.Capacity, "slot %d beyond capacity", i)
		}
		for _, set := range [][]string{snap.Ready, snap.Mutiny, snap.NeedSub} {
			for _, p := range set {
				require.True(t, snap.Has(p), "%s in a vote set but not seated", p)
			}
		}
		if snap.Occupants() > 0 {
			require.True(t, snap.Has(snap.Host), "host %s not seated", snap.Host)
		}
	}
}
