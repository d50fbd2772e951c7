// Package cacheddir puts a cache in front of a user directory so that
// every request does not cost a role and permission query.
package cacheddir

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/leadgate/internal/domain/actor"
	"github.com/Strob0t/leadgate/internal/port/cache"
	"github.com/Strob0t/leadgate/internal/port/directory"
)

const keyPrefix = "dir:"

// entry is the cached form of an actor.
type entry struct {
	ID        string   `json:"id"`
	Roles     []string `json:"roles"`
	Pipelines []string `json:"pipelines"`
}

// Directory resolves through the cache and falls back to the wrapped
// directory. Misses (unknown users) are not cached.
type Directory struct {
	inner directory.Directory
	cache cache.Cache
	ttl   time.Duration
}

var _ directory.Directory = (*Directory)(nil)

func New(inner directory.Directory, c cache.Cache, ttl time.Duration) *Directory {
	return &Directory{inner: inner, cache: c, ttl: ttl}
}

func (d *Directory) Lookup(ctx context.Context, userID string) (actor.Actor, error) {
	key := keyPrefix + userID
	if raw, ok, err := d.cache.Get(ctx, key); err == nil && ok {
		var e entry
		if err := json.Unmarshal(raw, &e); err == nil {
			return e.actor(), nil
		}
		slog.WarnContext(ctx, "discarding corrupt directory cache entry", "user_id", userID)
	}

	a, err := d.inner.Lookup(ctx, userID)
	if err != nil {
		return actor.Actor{}, err
	}
	raw, err := json.Marshal(entry{ID: a.ID, Roles: a.Roles, Pipelines: a.PipelineList()})
	if err == nil {
		if err := d.cache.Set(ctx, key, raw, d.ttl); err != nil {
			slog.WarnContext(ctx, "directory cache set failed", "user_id", userID, "error", err)
		}
	}
	return a, nil
}

// Invalidate drops the cached entry for userID.
func (d *Directory) Invalidate(ctx context.Context, userID string) error {
	return d.cache.Delete(ctx, keyPrefix+userID)
}

func (e entry) actor() actor.Actor {
	pipelines := make(map[string]struct{}, len(e.Pipelines))
	for _, p := range e.Pipelines {
		pipelines[p] = struct{}{}
	}
	return actor.Actor{ID: e.ID, Roles: e.Roles, Pipelines: pipelines}
}
