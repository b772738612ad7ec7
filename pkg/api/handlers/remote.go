package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/messages"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/remote"
)

func HandleCreateRemoteGame(rs *remote.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		view, err := rs.Create(r.Context(), claims.UID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, map[string]interface{}{"gameId": view.Game.ID, "game": view.Game})
	}
}

func HandleFindRandomGame(rs *remote.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		res, err := rs.FindRandomGame(r.Context(), claims.UID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, map[string]interface{}{
			"gameId":  res.Game.ID,
			"created": res.Created,
			"game":    res.Game,
			"round":   res.Round,
		})
	}
}

func HandleGetRemoteGame(rs *remote.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		view, err := rs.Get(r.Context(), claims.UID, mux.Vars(r)["gameId"])
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, map[string]interface{}{"game": view.Game, "round": view.Round})
	}
}

type remoteActionRequest struct {
	Result types.RoundResult `json:"result"`
}

// HandleRemoteAction dispatches POST /api/remote-skate/{gameId}/{action}.
func HandleRemoteAction(rs *remote.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		var req remoteActionRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		vars := mux.Vars(r)
		ctx, uid, gameID := r.Context(), claims.UID, vars["gameId"]
		var (
			view     *remote.GameView
			disputed bool
			err      error
		)
		switch vars["action"] {
		case "join":
			view, err = rs.Join(ctx, uid, gameID)
		case "cancel":
			view, err = rs.Cancel(ctx, uid, gameID)
		case "resolve":
			view, err = rs.Resolve(ctx, uid, gameID, req.Result)
		case "confirm":
			view, disputed, err = rs.Confirm(ctx, uid, gameID, req.Result)
		case "adjudicate":
			view, err = rs.Adjudicate(ctx, uid, claims.Moderator, gameID, req.Result)
		case "notify":
			if err = rs.Notify(ctx, uid, gameID); err == nil {
				writeSuccess(w, nil)
				return
			}
		default:
			err = game.NotFound("unknown remote game action %q", vars["action"])
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		fields := map[string]interface{}{"game": view.Game, "round": view.Round}
		if vars["action"] == "confirm" {
			fields["disputed"] = disputed
		}
		writeSuccess(w, fields)
	}
}

// HandleUploadVideo accepts the raw video as the request body.
func HandleUploadVideo(rs *remote.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		durationMs, err := strconv.ParseInt(q.Get("durationMs"), 10, 64)
		if err != nil {
			writeError(w, r, game.InvalidArgument("durationMs must be an integer"))
			return
		}
		video, err := rs.UploadVideo(r.Context(), claims.UID, remote.UploadRequest{
			GameID:      mux.Vars(r)["gameId"],
			Role:        types.VideoRole(q.Get("role")),
			ContentType: r.Header.Get("Content-Type"),
			DurationMs:  durationMs,
			Body:        r.Body,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, map[string]interface{}{"videoId": video.ID, "video": video})
	}
}

func HandleGetVideo(rs *remote.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		vars := mux.Vars(r)
		video, err := rs.GetVideo(r.Context(), claims.UID, vars["gameId"], vars["videoId"])
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, map[string]interface{}{"video": video})
	}
}

func HandleWatchRemoteGame(rs *remote.Service, opts StreamOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		gameID := mux.Vars(r)["gameId"]
		gw, err := rs.Watch(r.Context(), claims.UID, gameID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer gw.Close()

		serveStream(w, r, opts, gw.C(), func(view remote.GameView) (*messages.Message, error) {
			return snapshotMessage(types.RemoteGamesCollection, gameID, 0, view, true)
		})
	}
}
