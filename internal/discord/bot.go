package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/command"
	"github.com/jason-s-yu/pugbot/internal/pug"
)

// Intents needed for commands, reactions and presence tracking.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsMessageContent

// handlerTimeout bounds the work done for one gateway event.
const handlerTimeout = 10 * time.Second

// Session opens a gateway session for token.
func Session(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	return s, nil
}

// Bot routes gateway events to the lobby service.
type Bot struct {
	svc      *pug.Service
	commands *command.Dispatcher
	guildID  string
	selfID   func() string
	presence func(guildID, userID string) pug.Presence
	reply    func(channelID, text string)
	logger   *logrus.Logger
}

// NewBot wires a Bot to a live session.
func NewBot(s *discordgo.Session, svc *pug.Service, commands *command.Dispatcher, guildID string, logger *logrus.Logger) *Bot {
	return &Bot{
		svc:      svc,
		commands: commands,
		guildID:  guildID,
		logger:   logger,
		selfID: func() string {
			if s.State == nil || s.State.User == nil {
				return ""
			}
			return s.State.User.ID
		},
		presence: func(guildID, userID string) pug.Presence {
			p, err := s.State.Presence(guildID, userID)
			if err != nil {
				return pug.PresenceOffline
			}
			return presenceOf(p.Status)
		},
		reply: func(channelID, text string) {
			if _, err := s.ChannelMessageSend(channelID, text); err != nil {
				logger.WithError(err).WithField("channel", channelID).Warn("failed to send reply")
			}
		},
	}
}

// Register adds the event handlers to s.
func (b *Bot) Register(s *discordgo.Session) {
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) { b.onMessage(m) })
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) { b.onReaction(r) })
	s.AddHandler(func(_ *discordgo.Session, p *discordgo.PresenceUpdate) { b.onPresence(p) })
}

func (b *Bot) inGuild(guildID string) bool {
	return b.guildID == "" || guildID == b.guildID
}

func (b *Bot) onMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || !b.inGuild(m.GuildID) || m.GuildID == "" {
		return
	}
	name, args, ok := command.Parse(b.svc.Settings().Prefix, m.Content)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	reply, err := b.commands.Dispatch(ctx, command.Request{
		Actor:    m.Author.ID,
		Presence: b.presence(m.GuildID, m.Author.ID),
		Name:     name,
		Args:     args,
	})
	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		return
	case err != nil && pug.IsUserFacing(err):
		b.reply(m.ChannelID, err.Error())
	case err != nil:
		b.reply(m.ChannelID, "Something went wrong, try again.")
	case reply != "":
		b.reply(m.ChannelID, reply)
	}
}

func (b *Bot) onReaction(r *discordgo.MessageReactionAdd) {
	if r.UserID == b.selfID() || !b.inGuild(r.GuildID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	h := pug.Handle{ChannelID: r.ChannelID, MessageID: r.MessageID}
	err := b.svc.React(ctx, h, r.UserID, r.Emoji.Name, b.presence(r.GuildID, r.UserID))
	if err != nil && !pug.IsUserFacing(err) {
		b.logger.WithError(err).WithField("player", r.UserID).Error("reaction failed")
	}
}

func (b *Bot) onPresence(p *discordgo.PresenceUpdate) {
	if p.User == nil || !b.inGuild(p.GuildID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := b.svc.PresenceChanged(ctx, p.User.ID, presenceOf(p.Status)); err != nil {
		b.logger.WithError(err).WithField("player", p.User.ID).Error("presence update failed")
	}
}

func presenceOf(s discordgo.Status) pug.Presence {
	switch s {
	case discordgo.StatusOnline:
		return pug.PresenceOnline
	case discordgo.StatusIdle:
		return pug.PresenceIdle
	case discordgo.StatusDoNotDisturb:
		return pug.PresenceDND
	}
	return pug.PresenceOffline
}
