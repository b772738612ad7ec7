package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/lobby"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/matches"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/messages"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/watch"
)

type challengeRequest struct {
	OpponentID string       `json:"opponentId"`
	Stance     types.Stance `json:"stance"`
}

func HandleChallenge(l *lobby.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		var req challengeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		m, err := l.Challenge(r.Context(), claims.UID, req.OpponentID, req.Stance)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, map[string]interface{}{"matchId": m.ID, "match": m})
	}
}

func HandleGetMatch(ms *matches.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		m, err := ms.Get(r.Context(), claims.UID, mux.Vars(r)["matchId"])
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, map[string]interface{}{"match": m})
	}
}

// matchActionRequest is the union of the bodies of every match action.
type matchActionRequest struct {
	Stance      types.Stance `json:"stance"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	ClipURL     string       `json:"clipUrl"`
	Landed      *bool        `json:"landed"`
}

// HandleMatchAction dispatches POST /api/matches/{matchId}/{action}.
func HandleMatchAction(l *lobby.Service, ms *matches.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		var req matchActionRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		vars := mux.Vars(r)
		ctx, uid, matchID := r.Context(), claims.UID, vars["matchId"]
		var (
			m   *types.Match
			err error
		)
		switch vars["action"] {
		case "accept":
			m, err = l.Accept(ctx, uid, matchID, req.Stance)
		case "decline":
			m, err = l.Decline(ctx, uid, matchID)
		case "abandon":
			m, err = l.Abandon(ctx, uid, matchID)
		case "set":
			m, err = ms.Set(ctx, uid, matchID, matches.SetTrick{
				Name:        req.Name,
				Description: req.Description,
				ClipURL:     req.ClipURL,
			})
		case "land":
			m, err = ms.Land(ctx, uid, matchID)
		case "bail":
			m, err = ms.Bail(ctx, uid, matchID)
		case "attempt":
			m, err = ms.Attempt(ctx, uid, matchID, req.ClipURL)
		case "judge":
			if req.Landed == nil {
				err = game.InvalidArgument("landed is required")
				break
			}
			m, err = ms.Judge(ctx, uid, matchID, *req.Landed)
		case "forfeit":
			m, err = ms.Forfeit(ctx, uid, matchID)
		default:
			err = game.NotFound("unknown match action %q", vars["action"])
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, map[string]interface{}{"match": m})
	}
}

func HandleWatchMatch(ms *matches.Service, opts StreamOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		matchID := mux.Vars(r)["matchId"]
		stream, err := ms.Watch(r.Context(), claims.UID, matchID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer stream.Close()

		serveStream(w, r, opts, stream.C(), func(ev watch.Event[types.Match]) (*messages.Message, error) {
			return snapshotMessage(types.MatchesCollection, matchID, ev.Version, ev.Value, ev.Exists)
		})
	}
}
