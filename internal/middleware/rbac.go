package middleware

import (
	"net/http"

	"github.com/Strob0t/leadgate/internal/domain/actor"
)

// RequireManager restricts a route to team leads and privileged actors.
func RequireManager(policy actor.Policy) func(http.Handler) http.Handler {
	return require(policy.CanManageAssignments)
}

// RequirePrivileged restricts a route to privileged actors.
func RequirePrivileged(policy actor.Policy) func(http.Handler) http.Handler {
	return require(policy.Privileged)
}

func require(allowed func(actor.Actor) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authorization required")
				return
			}
			if !allowed(a) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
