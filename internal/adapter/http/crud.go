package http

import (
	"context"
	"net/http"

	"github.com/Strob0t/leadgate/internal/domain/actor"
)

// ---------------------------------------------------------------------------
// Actor-scoped handler factories
// ---------------------------------------------------------------------------

// handleGet creates a handler that loads one resource by URL param "id"
// on behalf of the request's actor.
func handleGet[T any](getFn func(ctx context.Context, a actor.Actor, id string) (T, error), notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := actorOf(w, r)
		if !ok {
			return
		}
		item, err := getFn(r.Context(), a, urlParam(r, "id"))
		if err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// handleDelete creates a handler that deletes a resource by URL param "id".
func handleDelete(deleteFn func(ctx context.Context, a actor.Actor, id string) error, notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := actorOf(w, r)
		if !ok {
			return
		}
		if err := deleteFn(r.Context(), a, urlParam(r, "id")); err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
