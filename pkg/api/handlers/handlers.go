package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/api/middleware"
	authproviders "github.com/myhuemungusD/skatehubba-sub002/pkg/auth/providers"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/version"
)

// MaxJSONBodyBytes bounds the JSON bodies accepted by the API.
const MaxJSONBodyBytes = 64 << 10

type errorResponse struct {
	Code    game.Code `json:"code"`
	Message string    `json:"message"`
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code game.Code) int {
	switch code {
	case game.CodeUnauthenticated:
		return http.StatusUnauthorized
	case game.CodePermissionDenied, game.CodeIllegalTransition:
		return http.StatusForbidden
	case game.CodeNotFound:
		return http.StatusNotFound
	case game.CodeConflict:
		return http.StatusConflict
	case game.CodeInvalidArgument:
		return http.StatusBadRequest
	case game.CodeUploadFailure:
		return http.StatusBadGateway
	case game.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// classify turns any service error into a code and a message safe to show the caller.
func classify(err error) errorResponse {
	var e *game.Error
	switch {
	case errors.As(err, &e):
		if e.Code == game.CodeInternal {
			return errorResponse{Code: game.CodeInternal, Message: "internal error"}
		}
		return errorResponse{Code: e.Code, Message: e.Message}
	case repositories.IsNotFound(err):
		return errorResponse{Code: game.CodeNotFound, Message: "not found"}
	case repositories.IsConflict(err), repositories.IsAlreadyExists(err):
		return errorResponse{Code: game.CodeConflict, Message: "concurrent update, try again"}
	default:
		return errorResponse{Code: game.CodeInternal, Message: "internal error"}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := classify(err)
	status := StatusFor(resp.Code)
	if status >= http.StatusInternalServerError {
		log.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
	} else {
		log.Debug("%s %s rejected: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, resp)
}

// writeSuccess writes {"success": true} merged with the given fields.
func writeSuccess(w http.ResponseWriter, fields map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// decodeBody reads an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxJSONBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return game.InvalidArgument("malformed request body: %v", err)
	}
	return nil
}

// caller returns the verified claims placed on the request by the auth middleware.
func caller(w http.ResponseWriter, r *http.Request) (*authproviders.TokenClaims, bool) {
	claims, ok := middleware.Claims(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: game.CodeUnauthenticated, Message: "not signed in"})
		return nil, false
	}
	return claims, true
}

func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version.Get(),
		})
	}
}
