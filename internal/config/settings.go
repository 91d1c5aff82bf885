// internal/config/settings.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// EveryoneRole is the participation role value that lets anyone play.
const EveryoneRole = "@everyone"

// Shortcut names understood by the reaction binding.
const (
	ShortcutJoinA  = "join_blue"
	ShortcutJoinB  = "join_red"
	ShortcutEndA   = "end_blue"
	ShortcutEndB   = "end_red"
	ShortcutReady  = "ready"
	ShortcutCancel = "cancel"
	ShortcutLeave  = "leave"
)

// Settings is the per-community configuration persisted as JSON.
type Settings struct {
	Prefix       string              `json:"prefix"`
	LobbyChannel string              `json:"pug_chan"`
	BroadChannel string              `json:"brd_chan"`
	PugRole      string              `json:"pug_role"`
	ModRole      string              `json:"mod_role"`
	Verbosity    int                 `json:"verbosity"`
	RequireReady bool                `json:"require_ready"`
	AutoKick     bool                `json:"auto_kick"`
	Modes        map[string]int      `json:"modes"`
	Maps         map[string][]string `json:"maps"`
	Teams        TeamAliases         `json:"teams"`
	Emojis       map[string]string   `json:"emojis"`
}

// TeamAliases lists accepted names per team. The first alias is the
// display name.
type TeamAliases struct {
	A []string `json:"team1"`
	B []string `json:"team2"`
}

// DefaultSettings returns a fresh copy of the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		Prefix:       "!",
		Verbosity:    3,
		RequireReady: false,
		AutoKick:     true,
		Modes: map[string]int{
			"duel": 1,
			"2v2":  2,
			"3v3":  3,
			"tdm":  4,
			"sac":  4,
		},
		Maps: map[string][]string{
			"Awoken":             {"duel", "2v2", "tdm", "3v3"},
			"Blood Covenant":     {"duel", "2v2", "tdm", "sac", "3v3"},
			"Blood Run":          {"duel", "2v2", "3v3"},
			"Burial Chamber":     {"tdm", "sac", "3v3"},
			"Church of Azathoth": {"tdm", "sac", "3v3"},
			"Corrupted Keep":     {"duel", "2v2", "3v3"},
			"Lockbox":            {"tdm", "sac", "3v3"},
			"Ruins of Sarnath":   {"duel", "2v2", "tdm", "sac", "3v3"},
			"Tempest Shrine":     {"tdm", "sac", "3v3"},
			"Vale of Pnath":      {"duel", "2v2", "3v3"},
		},
		Teams: TeamAliases{
			A: []string{"Blue Team", "blue", "blu", "bot", "bottom", "team1", "1"},
			B: []string{"Red Team", "red", "top", "team2", "2"},
		},
		Emojis: map[string]string{
			ShortcutJoinA:  "\U0001F535",
			ShortcutJoinB:  "\U0001F534",
			ShortcutEndA:   "\U0001F535",
			ShortcutEndB:   "\U0001F534",
			ShortcutReady:  "✅",
			ShortcutCancel: "❌",
			ShortcutLeave:  "\U0001F6AA",
		},
	}
}

// LoadSettings reads the settings file at path. A missing file is created
// with the defaults.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s := DefaultSettings()
		if err := s.Save(path); err != nil {
			return nil, err
		}
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes the settings as indented JSON.
func (s *Settings) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the lobby engine cannot honour.
func (s *Settings) Validate() error {
	if len(s.Modes) == 0 {
		return fmt.Errorf("settings: no modes configured")
	}
	for mode, c := range s.Modes {
		if c < 1 || c > models.SlotsPerTeam {
			return fmt.Errorf("settings: mode %q has capacity %d, want 1..%d", mode, c, models.SlotsPerTeam)
		}
	}
	if len(s.Teams.A) == 0 || len(s.Teams.B) == 0 {
		return fmt.Errorf("settings: both teams need at least a display name")
	}
	if s.Verbosity < 0 || s.Verbosity > 4 {
		return fmt.Errorf("settings: verbosity %d out of range 0..4", s.Verbosity)
	}
	return nil
}

// Capacity returns the per-team capacity for mode.
func (s *Settings) Capacity(mode string) (int, bool) {
	c, ok := s.Modes[mode]
	return c, ok
}

// ModeNames returns the configured modes sorted by name.
func (s *Settings) ModeNames() []string {
	out := make([]string, 0, len(s.Modes))
	for m := range s.Modes {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// MapPool returns the maps playable in mode, sorted by name.
func (s *Settings) MapPool(mode string) []string {
	var pool []string
	for name, modes := range s.Maps {
		for _, m := range modes {
			if m == mode {
				pool = append(pool, name)
				break
			}
		}
	}
	sort.Strings(pool)
	return pool
}

// ResolveTeam maps a user supplied alias to a team, case-insensitively.
func (s *Settings) ResolveTeam(alias string) (models.Team, bool) {
	alias = strings.TrimSpace(alias)
	for _, a := range s.Teams.A {
		if strings.EqualFold(a, alias) {
			return models.TeamA, true
		}
	}
	for _, a := range s.Teams.B {
		if strings.EqualFold(a, alias) {
			return models.TeamB, true
		}
	}
	return 0, false
}

// TeamName returns the display name of team t.
func (s *Settings) TeamName(t models.Team) string {
	if t == models.TeamB {
		return s.Teams.B[0]
	}
	return s.Teams.A[0]
}

// Shortcut returns the emoji bound to a shortcut name.
func (s *Settings) Shortcut(name string) string {
	return s.Emojis[name]
}
