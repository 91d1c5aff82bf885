package discord

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/pugbot/internal/command"
	"github.com/jason-s-yu/pugbot/internal/config"
	"github.com/jason-s-yu/pugbot/internal/cooldown"
	"github.com/jason-s-yu/pugbot/internal/database/memstore"
	"github.com/jason-s-yu/pugbot/internal/pug"
)

type fakeAPI struct {
	mu        sync.Mutex
	next      int
	texts     map[string]string
	reactions map[string][]string
	members   map[string][]string
	failSend  bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		texts:     map[string]string{},
		reactions: map[string][]string{},
		members:   map[string][]string{},
	}
}

func (f *fakeAPI) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return nil, errors.New("discord down")
	}
	f.next++
	id := strconv.Itoa(f.next)
	f.texts[id] = content
	return &discordgo.Message{ID: id, ChannelID: channelID, Content: content}, nil
}

func (f *fakeAPI) ChannelMessageEdit(_, messageID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[messageID] = content
	return &discordgo.Message{ID: messageID, Content: content}, nil
}

func (f *fakeAPI) ChannelMessageDelete(_, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.texts, messageID)
	return nil
}

func (f *fakeAPI) MessageReactionAdd(_, messageID, emojiID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[messageID] = append(f.reactions[messageID], emojiID)
	return nil
}

func (f *fakeAPI) MessageReactionsRemoveAll(_, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reactions, messageID)
	return nil
}

func (f *fakeAPI) GuildMember(_, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roles, ok := f.members[userID]
	if !ok {
		return nil, errors.New("unknown member")
	}
	return &discordgo.Member{Roles: roles}, nil
}

func (f *fakeAPI) text(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[id]
}

type idleDeferrer struct{}

func (idleDeferrer) After(string, time.Duration, func()) error { return nil }

type testBot struct {
	bot     *Bot
	api     *fakeAPI
	svc     *pug.Service
	replies []string
	away    map[string]pug.Presence
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s := config.DefaultSettings()
	s.LobbyChannel = "lobby"
	s.BroadChannel = "broadcast"
	s.AutoKick = true

	api := newFakeAPI()
	store := memstore.New()
	svc := pug.NewService(pug.Options{
		Store:     store,
		Presenter: NewPresenter(api),
		Roles:     NewRoles(api, "guild"),
		Cooldowns: cooldown.NewScheduler(idleDeferrer{}, time.Minute, logger),
		Deferrer:  idleDeferrer{},
		Settings:  &s,
		Grace:     time.Second,
		Logger:    logger,
	})
	tb := &testBot{api: api, svc: svc, away: map[string]pug.Presence{}}
	tb.bot = &Bot{
		svc:      svc,
		commands: command.NewDispatcher(svc, store, logger),
		guildID:  "guild",
		logger:   logger,
		selfID:   func() string { return "bot" },
		presence: func(_, userID string) pug.Presence {
			if p, ok := tb.away[userID]; ok {
				return p
			}
			return pug.PresenceOnline
		},
		reply: func(_, text string) { tb.replies = append(tb.replies, text) },
	}
	return tb
}

func (tb *testBot) say(author, content string) {
	tb.bot.onMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID:   "guild",
		ChannelID: "lobby",
		Author:    &discordgo.User{ID: author},
		Content:   content,
	}})
}

func (tb *testBot) react(user, messageID, emoji string) {
	tb.bot.onReaction(&discordgo.MessageReactionAdd{MessageReaction: &discordgo.MessageReaction{
		GuildID:   "guild",
		ChannelID: "lobby",
		MessageID: messageID,
		UserID:    user,
		Emoji:     discordgo.Emoji{Name: emoji},
	}})
}

func TestCommandCreatesLobbyMessage(t *testing.T) {
	tb := newTestBot(t)
	tb.say("host", "!create duel")

	snap, ok := tb.svc.Registry().FindByPlayer("host")
	require.True(t, ok)
	assert.Contains(t, tb.api.text(snap.Handle.MessageID), "#1 **duel [1/2]**")
	assert.Empty(t, tb.replies)
}

func TestCommandErrorsAreReplied(t *testing.T) {
	tb := newTestBot(t)
	tb.say("p", "!start")
	tb.say("p", "!notacommand")
	tb.say("p", "just chatting")
	require.Len(t, tb.replies, 1)
	assert.Equal(t, pug.ErrNotHost.Msg, tb.replies[0])
}

func TestBotMessagesIgnored(t *testing.T) {
	tb := newTestBot(t)
	tb.bot.onMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "guild",
		Author:  &discordgo.User{ID: "other-bot", Bot: true},
		Content: "!create duel",
	}})
	assert.Zero(t, tb.svc.Registry().Len())
}

func TestReactionJoins(t *testing.T) {
	tb := newTestBot(t)
	tb.say("host", "!create duel")
	snap, _ := tb.svc.Registry().FindByPlayer("host")
	settings := tb.svc.Settings()

	tb.react("bot", snap.Handle.MessageID, settings.Shortcut(config.ShortcutJoinB))
	tb.react("p2", snap.Handle.MessageID, settings.Shortcut(config.ShortcutJoinB))

	snap, _ = tb.svc.Registry().Lookup(snap.ID)
	assert.Equal(t, 2, snap.Occupants())
	assert.Equal(t, "p2", snap.Players[pug.TotalSlots/2])
}

func TestPresenceAutoKicks(t *testing.T) {
	tb := newTestBot(t)
	tb.say("host", "!create 2v2")
	tb.say("afk", "!join 1")

	tb.bot.onPresence(&discordgo.PresenceUpdate{
		GuildID:  "guild",
		Presence: discordgo.Presence{User: &discordgo.User{ID: "afk"}, Status: discordgo.StatusIdle},
	})
	_, ok := tb.svc.Registry().FindByPlayer("afk")
	assert.False(t, ok)
}

func TestRolesFromMembers(t *testing.T) {
	api := newFakeAPI()
	api.members["u"] = []string{"r1", "r2"}
	roles := NewRoles(api, "guild")

	ok, err := roles.HasRole(context.Background(), "u", "r2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = roles.HasRole(context.Background(), "u", "r3")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = roles.HasRole(context.Background(), "ghost", "r1")
	assert.Error(t, err)
}

func TestPresenterPostFailure(t *testing.T) {
	api := newFakeAPI()
	api.failSend = true
	_, err := NewPresenter(api).Post(context.Background(), "c", "x")
	assert.Error(t, err)
}

func TestPresenceMapping(t *testing.T) {
	assert.Equal(t, pug.PresenceOnline, presenceOf(discordgo.StatusOnline))
	assert.Equal(t, pug.PresenceIdle, presenceOf(discordgo.StatusIdle))
	assert.Equal(t, pug.PresenceDND, presenceOf(discordgo.StatusDoNotDisturb))
	assert.Equal(t, pug.PresenceOffline, presenceOf(discordgo.StatusInvisible))
}
