package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/auth"
	"github.com/jason-s-yu/pugbot/internal/board"
	"github.com/jason-s-yu/pugbot/internal/command"
	"github.com/jason-s-yu/pugbot/internal/middleware"
	"github.com/jason-s-yu/pugbot/internal/pug"
)

// Subprotocol spoken on the board socket.
const Subprotocol = "pug"

// Incoming message types.
const (
	msgCommand = "command"
	msgReact   = "react"
)

// ClientMessage is a frame sent by a board client.
type ClientMessage struct {
	Type string `json:"type"`
	// Line is a chat style command, with or without the prefix.
	Line   string     `json:"line,omitempty"`
	Handle pug.Handle `json:"handle"`
	Symbol string     `json:"symbol,omitempty"`
}

type helloMessage struct {
	Type     string          `json:"type"`
	PlayerID string          `json:"player_id,omitempty"`
	Messages []board.Message `json:"messages"`
}

type replyMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var errSignIn = &pug.InputError{Msg: "Sign in to send commands."}

// BoardWSHandler streams the lobby board and accepts commands from a
// signed-in player. Clients without a token get a read-only stream.
func BoardWSHandler(logger *logrus.Logger, b *board.Board, signer *auth.Signer, svc *pug.Service, commands *command.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := ""
		if tok := requestToken(r); tok != "" {
			id, err := signer.AuthenticateJWT(tok)
			if err != nil {
				http.Error(w, "invalid token", http.StatusForbidden)
				return
			}
			playerID = id
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the pug subprotocol")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		subID, current, updates := b.Subscribe()
		defer b.Unsubscribe(subID)

		out := make(chan interface{}, 16)
		hello := helloMessage{Type: "hello", PlayerID: playerID, Messages: current}

		go writePump(ctx, cancel, c, hello, updates, out, logger)
		err = readPump(ctx, c, playerID, svc, commands, out, logger)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
		if err == nil {
			c.Close(websocket.StatusNormalClosure, "")
		}
	}
}

// DecodeClientMessage validates a client frame. Malformed frames come back
// as *pug.InputError.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, &pug.InputError{Msg: "Invalid JSON format."}
	}
	switch msg.Type {
	case msgCommand:
		msg.Line = strings.TrimSpace(msg.Line)
		if msg.Line == "" {
			return ClientMessage{}, &pug.InputError{Msg: "Empty command."}
		}
	case msgReact:
		if msg.Handle.MessageID == "" || msg.Symbol == "" {
			return ClientMessage{}, &pug.InputError{Msg: "A reaction needs a handle and a symbol."}
		}
	default:
		return ClientMessage{}, &pug.InputError{Msg: "Unknown message type: " + msg.Type}
	}
	return msg, nil
}

// readPump handles frames until the client goes away. A normal close
// returns nil.
func readPump(ctx context.Context, c *websocket.Conn, playerID string, svc *pug.Service, commands *command.Dispatcher, out chan<- interface{}, logger *logrus.Logger) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		msg, err := DecodeClientMessage(data)
		if err == nil && playerID == "" {
			err = errSignIn
		}
		var reply string
		if err == nil {
			reply, err = handleClientMessage(ctx, msg, playerID, svc, commands)
		}

		switch {
		case err != nil && pug.IsUserFacing(err):
			send(ctx, out, replyMessage{Type: "error", Text: err.Error()})
		case err != nil:
			logger.WithError(err).WithField("player", playerID).Error("board command failed")
			send(ctx, out, replyMessage{Type: "error", Text: "Something went wrong, try again."})
		case reply != "":
			send(ctx, out, replyMessage{Type: "reply", Text: reply})
		}
	}
}

func handleClientMessage(ctx context.Context, msg ClientMessage, playerID string, svc *pug.Service, commands *command.Dispatcher) (string, error) {
	if msg.Type == msgReact {
		return "", svc.React(ctx, msg.Handle, playerID, msg.Symbol, pug.PresenceOnline)
	}
	prefix := svc.Settings().Prefix
	line := msg.Line
	if !strings.HasPrefix(line, prefix) {
		line = prefix + line
	}
	name, args, ok := command.Parse(prefix, line)
	if !ok {
		return "", command.ErrUnknownCommand
	}
	return commands.Dispatch(ctx, command.Request{
		Actor:    playerID,
		Presence: pug.PresenceOnline,
		Name:     name,
		Args:     args,
	})
}

func send(ctx context.Context, out chan<- interface{}, msg interface{}) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}

// writePump sends hello, then serializes board updates and replies onto the
// socket and keeps the connection alive with pings.
func writePump(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, hello helloMessage, updates <-chan board.Update, out <-chan interface{}, logger *logrus.Logger) {
	defer cancel()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	write := func(v interface{}) bool {
		data, err := json.Marshal(v)
		if err != nil {
			logger.Warnf("failed to marshal outgoing message: %v", err)
			return true
		}
		writeCtx, writeCancel := context.WithTimeout(ctx, 5*time.Second)
		err = c.Write(writeCtx, websocket.MessageText, data)
		writeCancel()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warnf("failed to write to websocket: %v", err)
			}
			return false
		}
		return true
	}

	if !write(hello) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok || !write(u) {
				return
			}
		case m := <-out:
			if !write(m) {
				return
			}
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			pingCancel()
			if err != nil {
				logger.Warnf("failed to send ping: %v", err)
				return
			}
		}
	}
}
