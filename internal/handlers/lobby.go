// internal/handlers/lobby.go
package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/pug"
)

// LobbyView is a lobby as served over HTTP: the snapshot plus its rendered
// text.
type LobbyView struct {
	pug.Snapshot
	Text string `json:"text"`
}

// ListLobbiesHandler returns every unresolved lobby.
func ListLobbiesHandler(logger *logrus.Logger, svc *pug.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := svc.Registry().Active()
		out := make([]LobbyView, 0, len(active))
		for _, snap := range active {
			out = append(out, LobbyView{Snapshot: snap, Text: svc.Render(snap)})
		}
		writeJSON(logger, w, out)
	}
}
