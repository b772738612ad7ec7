package handlers

import (
	"net/http"
	"strings"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/notify"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
)

type registerDeviceRequest struct {
	Token string `json:"token"`
}

// HandleRegisterDevice stores an FCM registration token for the caller.
func HandleRegisterDevice(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		var req registerDeviceRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		token := strings.TrimSpace(req.Token)
		if token == "" {
			writeError(w, r, game.InvalidArgument("token is required"))
			return
		}
		if err := notify.RegisterToken(r.Context(), repository, claims.UID, token); err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, nil)
	}
}
