package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/auth"
	"github.com/jason-s-yu/pugbot/internal/board"
	"github.com/jason-s-yu/pugbot/internal/command"
	"github.com/jason-s-yu/pugbot/internal/middleware"
	"github.com/jason-s-yu/pugbot/internal/pug"
)

// Deps are the collaborators the HTTP surface needs. Board may be nil when
// lobbies are shown elsewhere; the socket route is then not mounted.
type Deps struct {
	Logger    *logrus.Logger
	Service   *pug.Service
	Commands  *command.Dispatcher
	Reports   command.Reporter
	Board     *board.Board
	Signer    *auth.Signer
	DevTokens bool
}

// Routes builds the server mux with request logging on every route.
func Routes(d Deps) http.Handler {
	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(d.Logger)

	mux.Handle("GET /lobbies", logged(ListLobbiesHandler(d.Logger, d.Service)))
	mux.Handle("GET /stats/player/{id}", logged(PlayerStatsHandler(d.Logger, d.Reports)))
	mux.Handle("GET /stats/top", logged(TopPlayersHandler(d.Logger, d.Reports)))
	mux.Handle("GET /stats/recent", logged(RecentMatchesHandler(d.Logger, d.Reports)))

	if d.Board != nil {
		mux.Handle("GET /pug/ws", logged(BoardWSHandler(d.Logger, d.Board, d.Signer, d.Service, d.Commands)))
	}
	if d.DevTokens {
		mux.Handle("POST /auth/token", logged(TokenHandler(d.Logger, d.Signer)))
	}
	return mux
}
