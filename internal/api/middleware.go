// Package api implements the idea board REST API using chi.
package api

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/webdevcody/youtube-video-suggestions/internal/ideaservice"
	"github.com/webdevcody/youtube-video-suggestions/internal/ratelimit"
)

// Auth modes.
const (
	AuthModeProxy = "proxy"
	AuthModeToken = "token"
)

// Request headers understood by the API.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderSessionID = "X-Session-ID"
)

// Identity is a user known to token mode.
type Identity struct {
	UserID string
	Email  string
}

// AuthSettings controls how callers are identified.
//
// In proxy mode an identity-aware proxy in front of the server sets
// X-User-ID and X-User-Email. In token mode a Bearer token is looked up in
// Tokens; an unknown token is rejected, a missing one is anonymous.
type AuthSettings struct {
	Mode        string
	Tokens      map[string]Identity
	AdminEmails []string
}

type callerKey struct{}

// CallerFrom returns the caller attached by IdentityMiddleware.
func CallerFrom(ctx context.Context) ideaservice.Caller {
	c, _ := ctx.Value(callerKey{}).(ideaservice.Caller)
	return c
}

// IdentityMiddleware resolves the caller of every request.
func IdentityMiddleware(auth AuthSettings) func(http.Handler) http.Handler {
	admins := make(map[string]struct{}, len(auth.AdminEmails))
	for _, e := range auth.AdminEmails {
		admins[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	isAdmin := func(email string) bool {
		if email == "" {
			return false
		}
		_, ok := admins[strings.ToLower(email)]
		return ok
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id Identity
			switch auth.Mode {
			case AuthModeToken:
				header := r.Header.Get("Authorization")
				if header != "" {
					token, ok := strings.CutPrefix(header, "Bearer ")
					known, found := auth.Tokens[token]
					if !ok || !found {
						writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
						return
					}
					id = known
				}
			default:
				id = Identity{
					UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
					Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
				}
			}

			caller := ideaservice.Caller{UserID: id.UserID, Email: id.Email}
			caller.Admin = caller.UserID != "" && isAdmin(caller.Email)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
		})
	}
}

// RequireUser rejects anonymous callers with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CallerFrom(r.Context()).Anonymous() {
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous callers with 401 and non-admins with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := CallerFrom(r.Context())
		switch {
		case c.Anonymous():
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
		case !c.Admin:
			writeJSON(w, http.StatusForbidden, errorBody("forbidden"))
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// RateLimitMiddleware limits requests per caller, falling back to the
// client address for anonymous requests. It answers 429 with Retry-After.
func RateLimitMiddleware(limiter *ratelimit.KeyedRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := CallerFrom(r.Context()).UserID
			if key == "" {
				key = "addr:" + r.RemoteAddr
			}
			if ok, wait := limiter.Allow(key); !ok {
				slog.Warn("rate limit exceeded", slog.String("key", key), slog.String("path", r.URL.Path))
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeJSON(w, http.StatusTooManyRequests, errorBody("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sessionID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderSessionID))
}
