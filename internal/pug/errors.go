// internal/pug/errors.go
package pug

import (
	"errors"
	"fmt"
)

// MatchError is a rule violation that is shown to the player verbatim.
type MatchError struct {
	Msg string
}

func (e *MatchError) Error() string { return e.Msg }

var (
	ErrAlreadyInLobby   = &MatchError{"You cannot be in more than one lobby at a time."}
	ErrLobbyFull        = &MatchError{"That team or lobby is full."}
	ErrAlreadyStarted   = &MatchError{"That game has already started."}
	ErrNotEnoughPlayers = &MatchError{"Not enough players to start the match."}
	ErrNotAllReady      = &MatchError{"All players must be ready before starting the match."}
	ErrNotStarted       = &MatchError{"Match has not started yet."}
	ErrMatchEnded       = &MatchError{"That match has already ended."}
	ErrKickAfterEnd     = &MatchError{"You cannot kick people after the match has ended."}
	ErrKickAfterStart   = &MatchError{"You cannot kick people after the match has started."}
	ErrKickSelf         = &MatchError{"You cannot kick yourself."}
	ErrSlotEmpty        = &MatchError{"Slot is empty."}
	ErrInvalidSlot      = &MatchError{"Invalid slot number."}
	ErrSwapAfterStart   = &MatchError{"You cannot swap people after the match has started."}
	ErrAwayReady        = &MatchError{"You cannot ready up while offline/AFK/DND."}
	ErrLobbyNotFound    = &MatchError{"Lobby not found."}
	ErrInvalidTeam      = &MatchError{"Invalid team specified."}
	ErrNoTeamToSwap     = &MatchError{"No valid team to swap to."}
	ErrTeamFull         = &MatchError{"That team is full."}
	ErrMissingRole      = &MatchError{"You do not have the role required to play."}
	ErrNotHost          = &MatchError{"You are not hosting a lobby."}
	ErrNotInLobby       = &MatchError{"You are not in a lobby."}
	ErrNoSubNeeded      = &MatchError{"Nobody in that match needs a sub."}
	ErrUnknownMode      = &MatchError{"Unknown game mode."}
	ErrInvalidHandle    = &MatchError{"Handles must be 1-14 letters or spaces."}
)

// CooldownError rejects a player who is serving a temporary ban. Minutes is
// the length the ban was issued with.
type CooldownError struct {
	Reason  string
	Minutes int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("User is on cooldown. Reason: \"%s\" Duration: %d min", e.Reason, e.Minutes)
}

// InputError is a malformed command. Usage, when set, is shown with it.
type InputError struct {
	Msg   string
	Usage string
}

func (e *InputError) Error() string {
	if e.Usage == "" {
		return e.Msg
	}
	return e.Msg + " Usage: " + e.Usage
}

// IsUserFacing reports whether err should be rendered back to the player
// rather than logged as an internal failure.
func IsUserFacing(err error) bool {
	var me *MatchError
	var ce *CooldownError
	var ie *InputError
	return errors.As(err, &me) || errors.As(err, &ce) || errors.As(err, &ie)
}
