// internal/pug/interfaces.go
package pug

import (
	"context"
	"time"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// RecordStore is the durable source of truth for matches and player stats.
type RecordStore = models.RecordStore

// Handle points at a posted lobby message.
type Handle struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Presenter displays lobbies to players.
type Presenter interface {
	Post(ctx context.Context, channelID, text string) (Handle, error)
	Edit(ctx context.Context, h Handle, text string) error
	ClearMarks(ctx context.Context, h Handle) error
	AddMark(ctx context.Context, h Handle, symbol string) error
	Delete(ctx context.Context, h Handle) error
}

// RoleChecker answers whether a player holds a community role.
type RoleChecker interface {
	HasRole(ctx context.Context, playerID, roleID string) (bool, error)
}

// EventSink receives lobby events for the history log.
type EventSink interface {
	Publish(ctx context.Context, ev models.LobbyEvent) error
}

// Deferrer runs a task once after a delay.
type Deferrer interface {
	After(name string, d time.Duration, fn func()) error
}

// Presence is the online status a chat platform reports for a player.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceIdle    Presence = "idle"
	PresenceDND     Presence = "dnd"
	PresenceOffline Presence = "offline"
)

// Away reports whether the player cannot be expected to respond.
func (p Presence) Away() bool {
	return p == PresenceIdle || p == PresenceDND || p == PresenceOffline
}
