package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/auth"
)

type tokenRequest struct {
	PlayerID string `json:"player_id"`
}

// TokenHandler mints a token for any player id. It is only mounted when dev
// tokens are enabled.
func TokenHandler(logger *logrus.Logger, signer *auth.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad token request payload", http.StatusBadRequest)
			return
		}
		req.PlayerID = strings.TrimSpace(req.PlayerID)
		if req.PlayerID == "" {
			http.Error(w, "missing player_id", http.StatusBadRequest)
			return
		}
		token, err := signer.CreateJWT(req.PlayerID)
		if err != nil {
			http.Error(w, "failed to create token", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(logger, w, map[string]string{"token": token})
	}
}
