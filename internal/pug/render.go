// internal/pug/render.go
package pug

import (
	"fmt"
	"strings"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// Labels carries the community specific text Render needs.
type Labels struct {
	TeamA  string
	TeamB  string
	Prefix string
}

// Render formats a lobby message from a snapshot.
func Render(s Snapshot, l Labels) string {
	var header, body strings.Builder
	occ := s.Occupants()

	writeTeam := func(team models.Team, icon, name string, offset int) {
		fmt.Fprintf(&body, "%s %s\n", icon, name)
		for i := 0; i < s.Capacity; i++ {
			fmt.Fprintf(&body, "        %d. %s\n", offset+i+1, playerLine(s, s.Players[slotIndex(team, i)], l.Prefix))
		}
	}
	writeTeam(models.TeamA, "\U0001F535", l.TeamA, 0)
	writeTeam(models.TeamB, "\U0001F534", l.TeamB, s.Capacity)

	fmt.Fprintf(&header, "#%d **%s [%d/%d]** ", s.ID, s.Mode, occ, s.MaxPlayers())
	switch {
	case s.Cancelled():
		header.WriteString("(cancelled)\n")
	case s.Status == models.StatusLobby:
		if occ == s.MaxPlayers() {
			header.WriteString("(waiting for host to start)\n")
		} else {
			header.WriteString("(waiting for players)\n")
		}
	case s.Status == models.StatusWonA:
		fmt.Fprintf(&header, "(post-game | %s won)\n", l.TeamA)
	case s.Status == models.StatusWonB:
		fmt.Fprintf(&header, "(post-game | %s won)\n", l.TeamB)
	default:
		header.WriteString("❗ LIVE ❗\n")
		if len(s.Mutiny) > 0 {
			fmt.Fprintf(&body, "[%d/%d] cancel votes.\n", len(s.Mutiny), s.MutinyThreshold())
		}
		if s.Map != "" {
			fmt.Fprintf(&body, "Suggested map: %s\n", s.Map)
		}
	}

	if s.Note != "" {
		fmt.Fprintf(&header, "*%s*\n", s.Note)
	}
	return header.String() + body.String()
}

func playerLine(s Snapshot, p, prefix string) string {
	if p == "" {
		return ""
	}
	line := "<@" + p + ">"
	switch {
	case p == s.Host:
		line += "\U0001F451"
	case contains(s.Ready, p):
		line += " <- ready!"
	case contains(s.NeedSub, p):
		line += fmt.Sprintf(" <- NEEDS SUB! Type \"%ssub %d\"", prefix, s.ID)
	}
	return line
}
