package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/lobby"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/messages"
)

type quickMatchRequest struct {
	Stance types.Stance `json:"stance"`
}

func HandleQuickMatch(l *lobby.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		var req quickMatchRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := l.FindQuickMatch(r.Context(), claims.UID, req.Stance)
		if err != nil {
			writeError(w, r, err)
			return
		}
		fields := map[string]interface{}{
			"matchId":   res.MatchID,
			"isWaiting": res.IsWaiting,
		}
		if res.QueueEntryID != "" {
			fields["queueEntryId"] = res.QueueEntryID
		}
		writeSuccess(w, fields)
	}
}

func HandleCancelMatchmaking(l *lobby.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		if err := l.CancelMatchmaking(r.Context(), claims.UID, mux.Vars(r)["entryId"]); err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, nil)
	}
}

// HandleWatchQueue pushes a "matched" message once the caller's queue entry is paired.
func HandleWatchQueue(l *lobby.Service, opts StreamOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		entryID := mux.Vars(r)["entryId"]
		qw, err := l.WatchQueue(r.Context(), claims.UID, entryID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer qw.Close()

		serveStream(w, r, opts, qw.C(), func(matchID string) (*messages.Message, error) {
			msg, err := messages.NewMessage(messages.MessageTypeMatched, map[string]string{"matchId": matchID})
			if err != nil {
				return nil, err
			}
			msg.Collection = types.QueueCollection
			msg.ID = entryID
			return msg, nil
		})
	}
}
