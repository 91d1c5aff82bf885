package models

import "github.com/google/uuid"

// Lobby event types published to the event queue.
const (
	EventCreated   = "lobby_created"
	EventJoined    = "lobby_joined"
	EventLeft      = "lobby_left"
	EventStarted   = "lobby_started"
	EventEnded     = "lobby_ended"
	EventCancelled = "lobby_cancelled"
	EventKicked    = "lobby_kicked"
	EventSubbed    = "lobby_subbed"
)

// LobbyEvent is the record pushed to the event queue and persisted by the historian.
type LobbyEvent struct {
	ID        uuid.UUID              `json:"id"`
	MatchID   int64                  `json:"match_id"`
	Type      string                 `json:"type"`
	ActorID   string                 `json:"actor_id"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp int64                  `json:"timestamp"` // epoch millis
}
