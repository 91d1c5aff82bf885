package pug

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jason-s-yu/pugbot/internal/models"
)

var testLabels = Labels{TeamA: "Blue Team", TeamB: "Red Team", Prefix: "!"}

func TestRenderLobbyWaitingForHost(t *testing.T) {
	snap := Snapshot{
		ID:       1,
		Mode:     "duel",
		Capacity: 1,
		Host:     "H",
		Status:   models.StatusLobby,
		Players:  [TotalSlots]string{"H", "", "", "", "P"},
		Note:     "hi",
	}

	want := "#1 **duel [2/2]** (waiting for host to start)\n" +
		"*hi*\n" +
		"\U0001F535 Blue Team\n" +
		"        1. <@H>\U0001F451\n" +
		"\U0001F534 Red Team\n" +
		"        2. <@P>\n"
	assert.Equal(t, want, Render(snap, testLabels))
}

func TestRenderLobbyWaitingForPlayers(t *testing.T) {
	snap := Snapshot{
		ID:       2,
		Mode:     "2v2",
		Capacity: 2,
		Host:     "H",
		Status:   models.StatusLobby,
		Players:  [TotalSlots]string{"H", "r", "", "", "", "", "", ""},
		Ready:    []string{"r"},
	}

	want := "#2 **2v2 [2/4]** (waiting for players)\n" +
		"\U0001F535 Blue Team\n" +
		"        1. <@H>\U0001F451\n" +
		"        2. <@r> <- ready!\n" +
		"\U0001F534 Red Team\n" +
		"        3. \n" +
		"        4. \n"
	assert.Equal(t, want, Render(snap, testLabels))
}

func TestRenderLive(t *testing.T) {
	snap := Snapshot{
		ID:       3,
		Mode:     "2v2",
		Capacity: 2,
		Host:     "a",
		Status:   models.StatusLive,
		Players:  [TotalSlots]string{"a", "b", "", "", "c", "d", "", ""},
		Mutiny:   []string{"b"},
		NeedSub:  []string{"c"},
		Map:      "Awoken",
	}

	want := "#3 **2v2 [4/4]** ❗ LIVE ❗\n" +
		"\U0001F535 Blue Team\n" +
		"        1. <@a>\U0001F451\n" +
		"        2. <@b>\n" +
		"\U0001F534 Red Team\n" +
		"        3. <@c> <- NEEDS SUB! Type \"!sub 3\"\n" +
		"        4. <@d>\n" +
		"[1/3] cancel votes.\n" +
		"Suggested map: Awoken\n"
	assert.Equal(t, want, Render(snap, testLabels))
}

func TestRenderHeaderStates(t *testing.T) {
	base := Snapshot{
		ID:       4,
		Mode:     "duel",
		Capacity: 1,
		Host:     "H",
		Players:  [TotalSlots]string{"H", "", "", "", "P"},
	}

	won := base
	won.Status = models.StatusWonB
	assert.Contains(t, Render(won, testLabels), "(post-game | Red Team won)")

	empty := base
	empty.Players = [TotalSlots]string{}
	assert.Contains(t, Render(empty, testLabels), "(cancelled)")

	voted := base
	voted.Status = models.StatusLive
	voted.Mutiny = []string{"H", "P"}
	assert.Contains(t, Render(voted, testLabels), "(cancelled)")

	dropped := base
	dropped.dropped = true
	assert.Contains(t, Render(dropped, testLabels), "(cancelled)")
}
