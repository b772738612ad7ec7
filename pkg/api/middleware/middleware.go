package middleware

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	authproviders "github.com/myhuemungusD/skatehubba-sub002/pkg/auth/providers"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
	"go.uber.org/zap"
)

type ContextKey int

const (
	// ClaimsContextKey is the key used to store the verified token claims in the request context
	ClaimsContextKey ContextKey = iota
)

// Claims returns the verified caller of the request, if any.
func Claims(ctx context.Context) (*authproviders.TokenClaims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*authproviders.TokenClaims)
	return c, ok && c != nil
}

// WithClaims stores c in ctx the way the auth middleware does.
func WithClaims(ctx context.Context, c *authproviders.TokenClaims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, c)
}

// NewAuthMiddleware verifies the caller's ID token and keeps their profile in sync with its claims.
func NewAuthMiddleware(authProvider authproviders.AuthProvider, repository repositories.Repository) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearerToken, err := parseBearerToken(r)
			if err != nil {
				log.Debug("failed to parse bearer token: %v", err)
				writeUnauthenticated(w, "missing or malformed bearer token")
				return
			}

			claims, err := authProvider.VerifyToken(r.Context(), bearerToken)
			if err != nil {
				log.Warn("failed to verify ID token: %v", err)
				writeUnauthenticated(w, "invalid ID token")
				return
			}

			if err := SyncProfile(r.Context(), repository, claims); err != nil {
				log.Error("failed to sync profile of %s: %v", claims.UID, err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"code":"internal","message":"failed to load profile"}`)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func writeUnauthenticated(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"code":"unauthenticated","message":%q}`, message)
}

// SyncProfile creates the caller's profile or refreshes its name and photo from the token.
func SyncProfile(ctx context.Context, repository repositories.Repository, claims *authproviders.TokenClaims) error {
	return repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		now := time.Now().UTC()
		doc, err := tx.Get(ctx, types.UsersCollection, claims.UID)
		if err != nil && !repositories.IsNotFound(err) {
			return err
		}
		user := &types.User{ID: claims.UID, CreatedAt: now}
		if doc != nil {
			if user, err = repositories.Decode[types.User](doc); err != nil {
				return err
			}
		}

		name := claims.Name
		if name == "" {
			name = user.DisplayName
		}
		if name == "" {
			name = claims.UID
		}
		photo := claims.Picture
		if photo == "" {
			photo = user.PhotoURL
		}
		if doc != nil && name == user.DisplayName && photo == user.PhotoURL {
			return nil
		}
		user.DisplayName = name
		user.PhotoURL = photo
		user.UpdatedAt = now
		return tx.Set(ctx, types.UsersCollection, claims.UID, user)
	})
}

// parseBearerToken reads the token from the Authorization header, falling back to the
// access_token query parameter that browsers must use on websocket upgrades.
func parseBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if t := r.URL.Query().Get("access_token"); t != "" {
			return t, nil
		}
		return "", fmt.Errorf("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	return parts[1], nil
}

// NewCORSMiddleware answers preflight requests and tags responses for allowOrigin.
func NewCORSMiddleware(allowOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder remembers the response status. It keeps Hijack so websocket upgrades pass through.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// RequestLogger logs the path, status and latency of every request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		log.With(
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)),
		).Debug("request")
	})
}
