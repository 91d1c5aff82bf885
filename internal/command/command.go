// Package command turns prefixed chat commands into lobby operations. The
// Discord binding and the websocket socket both feed it.
package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/models"
	"github.com/jason-s-yu/pugbot/internal/pug"
	"github.com/jason-s-yu/pugbot/internal/rating"
)

var (
	// ErrUnknownCommand is returned for a name no command answers to. Chat
	// bindings ignore it so ordinary prefixed chatter stays silent.
	ErrUnknownCommand = &pug.InputError{Msg: "Unknown command."}
	ErrNotModerator   = &pug.InputError{Msg: "That command is for moderators."}
	errNotEnoughArgs  = "Not enough arguments."
)

// Reporter serves the read-only stats commands and handle changes.
type Reporter interface {
	GetPlayerRecord(ctx context.Context, playerID string) (models.PlayerRecord, bool, error)
	GetTopPlayers(ctx context.Context, limit int) ([]models.PlayerRecord, error)
	GetRecentMatches(ctx context.Context, limit int) ([]models.RecentMatch, error)
	SetHandle(ctx context.Context, playerID, handle string) error
}

// Request is one decoded command.
type Request struct {
	Actor    string
	Presence pug.Presence
	Name     string
	Args     []string
}

type handler func(ctx context.Context, req Request) (string, error)

type entry struct {
	usage string
	mod   bool
	run   handler
}

type Dispatcher struct {
	svc      *pug.Service
	reports  Reporter
	logger   *logrus.Logger
	commands map[string]entry
}

func NewDispatcher(svc *pug.Service, reports Reporter, logger *logrus.Logger) *Dispatcher {
	d := &Dispatcher{svc: svc, reports: reports, logger: logger}
	d.commands = map[string]entry{
		"help":    {run: d.help},
		"modes":   {run: d.modes},
		"lobbies": {run: d.lobbies},

		"create":    {usage: "<gamemode> <label>", run: d.create},
		"join":      {usage: "<lobby #> <team>", run: d.join},
		"leave":     {run: d.leave},
		"start":     {run: d.start},
		"end":       {usage: "<winning team>", run: d.end},
		"cancel":    {run: d.cancel},
		"kick":      {usage: "<slot #>", run: d.kick},
		"swap":      {usage: "<slot #> <slot #>", run: d.swap},
		"give_host": {usage: "<slot #>", run: d.giveHost},
		"promote":   {run: d.promote},
		"ready":     {run: d.ready},
		"unready":   {run: d.unready},
		"needsub":   {run: d.needSub},
		"sub":       {usage: "<lobby #>", run: d.sub},

		"handle":   {usage: "<name>", run: d.handle},
		"pugstats": {usage: "<@name>", run: d.stats},
		"top":      {usage: "<num (max:10)>", run: d.top},
		"recent":   {usage: "<num (max:10)>", run: d.recent},

		"ban":          {usage: "<@name> <minutes> <reason>", mod: true, run: d.ban},
		"forgive":      {usage: "<@name>", mod: true, run: d.forgive},
		"bans":         {mod: true, run: d.bans},
		"force_cancel": {usage: "<lobby #>", mod: true, run: d.forceCancel},
		"force_start":  {usage: "<lobby #>", mod: true, run: d.forceStart},
		"force_end":    {usage: "<lobby #> <winning team>", mod: true, run: d.forceEnd},
		"force_kick":   {usage: "<lobby #> <slot #>", mod: true, run: d.forceKick},
		"force_swap":   {usage: "<lobby #> <slot #> <slot #>", mod: true, run: d.forceSwap},
	}
	return d
}

// Parse splits a chat line into a command name and its arguments. ok is
// false when the line does not start with prefix.
func Parse(prefix, line string) (name string, args []string, ok bool) {
	line = strings.TrimSpace(line)
	if prefix == "" || !strings.HasPrefix(line, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(line, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// Dispatch runs req and returns the text to reply with, if any. Lobby
// changes themselves are shown through the presenter.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (string, error) {
	e, ok := d.commands[req.Name]
	if !ok {
		return "", ErrUnknownCommand
	}
	if e.mod {
		mod, err := d.svc.IsModerator(ctx, req.Actor)
		if err != nil {
			return "", err
		}
		if !mod {
			return "", ErrNotModerator
		}
	}
	reply, err := e.run(ctx, req)
	if err != nil && !pug.IsUserFacing(err) {
		d.logger.WithFields(logrus.Fields{
			"command": req.Name,
			"actor":   req.Actor,
		}).WithError(err).Error("command failed")
	}
	return reply, err
}

// Usage returns the usage line for name.
func (d *Dispatcher) Usage(name string) string {
	e := d.commands[name]
	return strings.TrimSpace(d.svc.Settings().Prefix + name + " " + e.usage)
}

func (d *Dispatcher) inputErr(name, msg string) error {
	return &pug.InputError{Msg: msg, Usage: d.Usage(name)}
}

func (d *Dispatcher) help(_ context.Context, _ Request) (string, error) {
	names := make([]string, 0, len(d.commands))
	for n, e := range d.commands {
		if !e.mod {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("```")
	for _, n := range names {
		b.WriteString(d.Usage(n))
		b.WriteString("\n")
	}
	b.WriteString("```")
	return b.String(), nil
}

func (d *Dispatcher) modes(_ context.Context, _ Request) (string, error) {
	return "Available modes: `" + strings.Join(d.svc.Settings().ModeNames(), " ") + "`", nil
}

func (d *Dispatcher) lobbies(_ context.Context, _ Request) (string, error) {
	active := d.svc.Registry().Active()
	if len(active) == 0 {
		return "No open lobbies.", nil
	}
	parts := make([]string, 0, len(active))
	for _, snap := range active {
		parts = append(parts, d.svc.Render(snap))
	}
	return strings.Join(parts, "\n"), nil
}

func (d *Dispatcher) create(ctx context.Context, req Request) (string, error) {
	if len(req.Args) < 1 {
		return "", d.inputErr(req.Name, errNotEnoughArgs)
	}
	if _, ok := d.svc.Settings().Capacity(req.Args[0]); !ok {
		return "", d.inputErr(req.Name, "Invalid gamemode.")
	}
	_, err := d.svc.Create(ctx, req.Actor, req.Args[0], strings.Join(req.Args[1:], " "))
	return "", err
}

func (d *Dispatcher) join(ctx context.Context, req Request) (string, error) {
	if len(req.Args) < 1 {
		return "", d.inputErr(req.Name, errNotEnoughArgs)
	}
	id, err := lobbyArg(req.Args[0])
	if err != nil {
		return "", d.inputErr(req.Name, "Invalid lobby number.")
	}
	var team models.Team
	if len(req.Args) > 1 {
		t, ok := d.svc.Settings().ResolveTeam(req.Args[1])
		if !ok {
			return "", d.inputErr(req.Name, "Invalid team.")
		}
		team = t
	}
	return "", d.svc.Join(ctx, id, req.Actor, team)
}

func (d *Dispatcher) leave(ctx context.Context, req Request) (string, error) {
	return "", d.svc.LeaveSearch(ctx, req.Actor)
}

func (d *Dispatcher) start(ctx context.Context, req Request) (string, error) {
	return "", d.svc.StartSearch(ctx, req.Actor)
}

func (d *Dispatcher) end(ctx context.Context, req Request) (string, error) {
	if len(req.Args) < 1 {
		return "", d.inputErr(req.Name, errNotEnoughArgs)
	}
	team, ok := d.svc.Settings().ResolveTeam(req.Args[0])
	if !ok {
		return "", d.inputErr(req.Name, "Invalid team.")
	}
	return "", d.svc.EndSearch(ctx, req.Actor, team)
}

func (d *Dispatcher) cancel(ctx context.Context, req Request) (string, error) {
	return "", d.svc.MutinySearch(ctx, req.Actor)
}

func (d *Dispatcher) kick(ctx context.Context, req Request) (string, error) {
	slot, err := d.slotArgs(req, 1)
	if err != nil {
		return "", err
	}
	return "", d.svc.Kick(ctx, req.Actor, slot[0])
}

func (d *Dispatcher) swap(ctx context.Context, req Request) (string, error) {
	slots, err := d.slotArgs(req, 2)
	if err != nil {
		return "", err
	}
	return "", d.svc.Swap(ctx, req.Actor, slots[0], slots[1])
}

func (d *Dispatcher) giveHost(ctx context.Context, req Request) (string, error) {
	slot, err := d.slotArgs(req, 1)
	if err != nil {
		return "", err
	}
	return "", d.svc.GiveHost(ctx, req.Actor, slot[0])
}

func (d *Dispatcher) promote(ctx context.Context, req Request) (string, error) {
	return "", d.svc.Promote(ctx, req.Actor)
}

func (d *Dispatcher) ready(ctx context.Context, req Request) (string, error) {
	return "", d.svc.ReadySearch(ctx, req.Actor, req.Presence)
}

func (d *Dispatcher) unready(ctx context.Context, req Request) (string, error) {
	id, ok := d.svc.Registry().MatchOf(req.Actor)
	if !ok {
		return "", pug.ErrNotInLobby
	}
	return "", d.svc.Unready(ctx, id, req.Actor)
}

func (d *Dispatcher) needSub(ctx context.Context, req Request) (string, error) {
	return "", d.svc.NeedSub(ctx, req.Actor)
}

func (d *Dispatcher) sub(ctx context.Context, req Request) (string, error) {
	if len(req.Args) < 1 {
		return "", d.inputErr(req.Name, errNotEnoughArgs)
	}
	id, err := lobbyArg(req.Args[0])
	if err != nil {
		return "", d.inputErr(req.Name, "Invalid lobby number.")
	}
	return "", d.svc.Sub(ctx, id, req.Actor)
}

func (d *Dispatcher) handle(ctx context.Context, req Request) (string, error) {
	if len(req.Args) < 1 {
		return "", d.inputErr(req.Name, errNotEnoughArgs)
	}
	name := strings.Join(req.Args, " ")
	if err := pug.ValidateHandle(name); err != nil {
		return "", err
	}
	if err := d.reports.SetHandle(ctx, req.Actor, name); err != nil {
		return "", err
	}
	return "Your in-game handle has been changed to " + name, nil
}

func (d *Dispatcher) stats(ctx context.Context, req Request) (string, error) {
	who := req.Actor
	if len(req.Args) > 0 {
		who = playerArg(req.Args[0])
	}
	rec, ok, err := d.reports.GetPlayerRecord(ctx, who)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("No record for <@%s>", who), nil
	}
	return fmt.Sprintf("`%s: %d played | %.2f W/L | %d ruined`",
		rec.Handle, rec.Matches, rating.Ratio(rec.Wins, rec.Losses()), rec.Ruins), nil
}

func (d *Dispatcher) top(ctx context.Context, req Request) (string, error) {
	limit, err := d.limitArg(req)
	if err != nil {
		return "", err
	}
	players, err := d.reports.GetTopPlayers(ctx, limit)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("TOP LADS:\n```")
	for i, p := range players {
		fmt.Fprintf(&b, "%d. %s | %d played | %.2f W/L | %d ruined\n",
			i+1, p.Handle, p.Matches, rating.Ratio(p.Wins, p.Losses()), p.Ruins)
	}
	b.WriteString("```")
	return b.String(), nil
}

func (d *Dispatcher) recent(ctx context.Context, req Request) (string, error) {
	limit, err := d.limitArg(req)
	if err != nil {
		return "", err
	}
	matches, err := d.reports.GetRecentMatches(ctx, limit)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Most recent games:\n```")
	for _, m := range matches {
		fmt.Fprintf(&b, "#%d %s | winner(s): ", m.ID, m.Mode)
		for _, p := range m.Winners {
			b.WriteString(d.displayName(ctx, p))
			b.WriteString(" ")
		}
		b.WriteString("\n")
	}
	b.WriteString("```")
	return b.String(), nil
}

func (d *Dispatcher) displayName(ctx context.Context, playerID string) string {
	rec, ok, err := d.reports.GetPlayerRecord(ctx, playerID)
	if err != nil || !ok {
		return playerID
	}
	return rec.Handle
}

func (d *Dispatcher) ban(ctx context.Context, req Request) (string, error) {
	if len(req.Args) < 2 {
		return "", d.inputErr(req.Name, errNotEnoughArgs)
	}
	target := playerArg(req.Args[0])
	minutes, err := strconv.Atoi(req.Args[1])
	if err != nil || minutes < 0 {
		return "", d.inputErr(req.Name, "Invalid number of minutes.")
	}
	if target == req.Actor {
		return "", &pug.InputError{Msg: "You cannot ban yourself."}
	}
	mod, err := d.svc.IsModerator(ctx, target)
	if err != nil {
		return "", err
	}
	if mod {
		return "", &pug.InputError{Msg: "You cannot ban moderators."}
	}
	reason := strings.Join(req.Args[2:], " ")
	banned, err := d.svc.Ban(target, minutes, reason)
	if err != nil || !banned {
		return "", err
	}
	return fmt.Sprintf("<@%s> has been banned for %d minutes. Reason: %s", target, minutes, reason), nil
}

func (d *Dispatcher) forgive(_ context.Context, req Request) (string, error) {
	if len(req.Args) < 1 {
		return "", d.inputErr(req.Name, errNotEnoughArgs)
	}
	target := playerArg(req.Args[0])
	if !d.svc.Forgive(target) {
		return "", nil
	}
	return fmt.Sprintf("<@%s> has been unbanned.", target), nil
}

func (d *Dispatcher) bans(_ context.Context, _ Request) (string, error) {
	entries := d.svc.Cooldowns().List()
	if len(entries) == 0 {
		return "Nobody is on cooldown.", nil
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "<@%s> %d min: %s\n", e.PlayerID, e.Minutes, e.Reason)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (d *Dispatcher) forceCancel(ctx context.Context, req Request) (string, error) {
	id, err := d.lobbyOnly(req)
	if err != nil {
		return "", err
	}
	return "", d.svc.ForceCancel(ctx, id, req.Actor)
}

func (d *Dispatcher) forceStart(ctx context.Context, req Request) (string, error) {
	id, err := d.lobbyOnly(req)
	if err != nil {
		return "", err
	}
	return "", d.svc.ForceStart(ctx, id, req.Actor)
}

func (d *Dispatcher) forceEnd(ctx context.Context, req Request) (string, error) {
	if len(req.Args) < 2 {
		return "", d.inputErr(req.Name, errNotEnoughArgs)
	}
	id, err := lobbyArg(req.Args[0])
	if err != nil {
		return "", d.inputErr(req.Name, "Invalid lobby number.")
	}
	team, ok := d.svc.Settings().ResolveTeam(req.Args[1])
	if !ok {
		return "", d.inputErr(req.Name, "Invalid team.")
	}
	return "", d.svc.ForceEnd(ctx, id, req.Actor, team)
}

func (d *Dispatcher) forceKick(ctx context.Context, req Request) (string, error) {
	if len(req.Args) < 2 {
		return "", d.inputErr(req.Name, errNotEnoughArgs)
	}
	id, err := lobbyArg(req.Args[0])
	if err != nil {
		return "", d.inputErr(req.Name, "Invalid lobby number.")
	}
	slot, err := strconv.Atoi(req.Args[1])
	if err != nil {
		return "", d.inputErr(req.Name, "Invalid slot number.")
	}
	return "", d.svc.ForceKick(ctx, id, req.Actor, slot, "Force-kicked by moderator.")
}

func (d *Dispatcher) forceSwap(ctx context.Context, req Request) (string, error) {
	if len(req.Args) < 3 {
		return "", d.inputErr(req.Name, errNotEnoughArgs)
	}
	id, err := lobbyArg(req.Args[0])
	if err != nil {
		return "", d.inputErr(req.Name, "Invalid lobby number.")
	}
	a, errA := strconv.Atoi(req.Args[1])
	b, errB := strconv.Atoi(req.Args[2])
	if errA != nil || errB != nil {
		return "", d.inputErr(req.Name, "Must provide two valid slot positions to swap.")
	}
	return "", d.svc.ForceSwap(ctx, id, a, b)
}

func (d *Dispatcher) lobbyOnly(req Request) (int64, error) {
	if len(req.Args) < 1 {
		return 0, d.inputErr(req.Name, errNotEnoughArgs)
	}
	id, err := lobbyArg(req.Args[0])
	if err != nil {
		return 0, d.inputErr(req.Name, "Invalid lobby number.")
	}
	return id, nil
}

func (d *Dispatcher) slotArgs(req Request, n int) ([]int, error) {
	if len(req.Args) < n {
		return nil, d.inputErr(req.Name, errNotEnoughArgs)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		v, err := strconv.Atoi(req.Args[i])
		if err != nil {
			return nil, d.inputErr(req.Name, "Invalid slot number.")
		}
		out[i] = v
	}
	return out, nil
}

// limitArg reads an optional count. Out of range values are clamped by the
// store.
func (d *Dispatcher) limitArg(req Request) (int, error) {
	if len(req.Args) == 0 {
		return 5, nil
	}
	n, err := strconv.Atoi(req.Args[0])
	if err != nil {
		return 0, d.inputErr(req.Name, "Invalid arguments.")
	}
	return n, nil
}

func lobbyArg(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
}

// playerArg strips mention syntax: <@123>, <@!123>.
func playerArg(s string) string {
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimPrefix(s, "!")
	return strings.TrimSuffix(s, ">")
}
