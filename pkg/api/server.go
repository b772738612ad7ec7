package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/api/handlers"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/api/middleware"
	authproviders "github.com/myhuemungusD/skatehubba-sub002/pkg/auth/providers"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/lobby"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/matches"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/remote"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port int
	TLS  *TLSConfig
	// AllowOrigin is sent as Access-Control-Allow-Origin and used to check websocket origins.
	AllowOrigin  string
	AuthProvider authproviders.AuthProvider
	Repository   repositories.Repository
	Lobby        *lobby.Service
	Matches      *matches.Service
	Remote       *remote.Service
}

// NewAPIServer creates a new http.Server for handling API requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts),
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// NewRouter builds the API routes. Everything under /api requires a verified ID token.
func NewRouter(opts NewAPIServerOptions) http.Handler {
	allowOrigin := opts.AllowOrigin
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	streams := handlers.StreamOptions{OriginPatterns: []string{originPattern(allowOrigin)}}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", handlers.HandleHealth()).Methods(http.MethodGet)

	a := r.PathPrefix("/api").Subrouter()
	a.Use(middleware.NewAuthMiddleware(opts.AuthProvider, opts.Repository))

	a.HandleFunc("/devices", handlers.HandleRegisterDevice(opts.Repository)).Methods(http.MethodPost)

	a.HandleFunc("/matchmaking/quick-match", handlers.HandleQuickMatch(opts.Lobby)).Methods(http.MethodPost)
	a.HandleFunc("/matchmaking/{entryId}/cancel", handlers.HandleCancelMatchmaking(opts.Lobby)).Methods(http.MethodPost)
	a.HandleFunc("/matchmaking/{entryId}/watch", handlers.HandleWatchQueue(opts.Lobby, streams)).Methods(http.MethodGet)

	a.HandleFunc("/matches/challenge", handlers.HandleChallenge(opts.Lobby)).Methods(http.MethodPost)
	a.HandleFunc("/matches/{matchId}", handlers.HandleGetMatch(opts.Matches)).Methods(http.MethodGet)
	a.HandleFunc("/matches/{matchId}/watch", handlers.HandleWatchMatch(opts.Matches, streams)).Methods(http.MethodGet)
	a.HandleFunc("/matches/{matchId}/{action}", handlers.HandleMatchAction(opts.Lobby, opts.Matches)).Methods(http.MethodPost)

	a.HandleFunc("/remote-skate/create", handlers.HandleCreateRemoteGame(opts.Remote)).Methods(http.MethodPost)
	a.HandleFunc("/remote-skate/find-or-create", handlers.HandleFindRandomGame(opts.Remote)).Methods(http.MethodPost)
	a.HandleFunc("/remote-skate/{gameId}", handlers.HandleGetRemoteGame(opts.Remote)).Methods(http.MethodGet)
	a.HandleFunc("/remote-skate/{gameId}/watch", handlers.HandleWatchRemoteGame(opts.Remote, streams)).Methods(http.MethodGet)
	a.HandleFunc("/remote-skate/{gameId}/videos", handlers.HandleUploadVideo(opts.Remote)).Methods(http.MethodPost)
	a.HandleFunc("/remote-skate/{gameId}/videos/{videoId}", handlers.HandleGetVideo(opts.Remote)).Methods(http.MethodGet)
	a.HandleFunc("/remote-skate/{gameId}/{action}", handlers.HandleRemoteAction(opts.Remote)).Methods(http.MethodPost)

	// CORS wraps the router so preflight requests are answered before method matching.
	return middleware.RequestLogger(middleware.NewCORSMiddleware(allowOrigin)(r))
}

// originPattern turns an allowed origin such as https://skatehubba.com into the host
// pattern the websocket handshake checks.
func originPattern(allowOrigin string) string {
	u, err := url.Parse(allowOrigin)
	if err != nil || u.Host == "" {
		return allowOrigin
	}
	return u.Host
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
