package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Strob0t/leadgate/internal/domain"
	"github.com/Strob0t/leadgate/internal/domain/actor"
	"github.com/Strob0t/leadgate/internal/logger"
	"github.com/Strob0t/leadgate/internal/port/directory"
)

// HeaderUserID carries the acting user. Authentication happens upstream;
// the gate only resolves the id into roles and pipeline permissions.
const HeaderUserID = "X-User-ID"

type actorCtxKey struct{}

// publicPaths are served without an actor.
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// Identify resolves X-User-ID through dir and stores the actor in the
// request context. Missing or unknown users get 401.
func Identify(dir directory.Directory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			id := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if id == "" {
				writeError(w, http.StatusUnauthorized, "X-User-ID header required")
				return
			}

			a, err := dir.Lookup(r.Context(), id)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, "unknown user")
					return
				}
				slog.ErrorContext(r.Context(), "directory lookup failed", "user_id", id, "error", err)
				writeError(w, http.StatusServiceUnavailable, "directory unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
		})
	}
}

// WithActor stores a in ctx. The CLI uses it for in-process calls.
func WithActor(ctx context.Context, a actor.Actor) context.Context {
	ctx = logger.WithActorID(ctx, a.ID)
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// ActorFromContext returns the resolved actor, if any.
func ActorFromContext(ctx context.Context) (actor.Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(actor.Actor)
	return a, ok
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
