// Package discord binds the lobby service to a Discord guild: lobby messages
// are channel messages, shortcuts are reactions, roles come from the guild.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/jason-s-yu/pugbot/internal/pug"
)

// restAPI is the slice of *discordgo.Session used here.
type restAPI interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	MessageReactionsRemoveAll(channelID, messageID string, options ...discordgo.RequestOption) error
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
}

// Presenter shows lobbies as guild channel messages.
type Presenter struct {
	api restAPI
}

func NewPresenter(api restAPI) *Presenter {
	return &Presenter{api: api}
}

func (p *Presenter) Post(ctx context.Context, channelID, text string) (pug.Handle, error) {
	msg, err := p.api.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return pug.Handle{}, fmt.Errorf("failed to send message to %s: %w", channelID, err)
	}
	return pug.Handle{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

func (p *Presenter) Edit(ctx context.Context, h pug.Handle, text string) error {
	if _, err := p.api.ChannelMessageEdit(h.ChannelID, h.MessageID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to edit message %s: %w", h.MessageID, err)
	}
	return nil
}

func (p *Presenter) ClearMarks(ctx context.Context, h pug.Handle) error {
	return p.api.MessageReactionsRemoveAll(h.ChannelID, h.MessageID, discordgo.WithContext(ctx))
}

func (p *Presenter) AddMark(ctx context.Context, h pug.Handle, symbol string) error {
	return p.api.MessageReactionAdd(h.ChannelID, h.MessageID, symbol, discordgo.WithContext(ctx))
}

func (p *Presenter) Delete(ctx context.Context, h pug.Handle) error {
	return p.api.ChannelMessageDelete(h.ChannelID, h.MessageID, discordgo.WithContext(ctx))
}

// Roles answers role membership from the guild member list.
type Roles struct {
	api     restAPI
	guildID string
}

func NewRoles(api restAPI, guildID string) *Roles {
	return &Roles{api: api, guildID: guildID}
}

func (r *Roles) HasRole(ctx context.Context, playerID, roleID string) (bool, error) {
	member, err := r.api.GuildMember(r.guildID, playerID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to fetch member %s: %w", playerID, err)
	}
	for _, id := range member.Roles {
		if id == roleID {
			return true, nil
		}
	}
	return false, nil
}
