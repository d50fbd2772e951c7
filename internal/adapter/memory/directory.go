package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Strob0t/leadgate/internal/domain"
	"github.com/Strob0t/leadgate/internal/domain/actor"
)

type userEntry struct {
	roles     []string
	pipelines []any
}

// Directory implements directory.Directory over an in-process user table.
type Directory struct {
	mu    sync.RWMutex
	users map[string]userEntry
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{users: make(map[string]userEntry)}
}

// Put registers or replaces a user. Pipeline rows may be strings or
// objects keyed by doc, value or name.
func (d *Directory) Put(userID string, roles []string, pipelines ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = userEntry{roles: append([]string(nil), roles...), pipelines: pipelines}
}

// Lookup resolves userID.
func (d *Directory) Lookup(_ context.Context, userID string) (actor.Actor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	if !ok {
		return actor.Actor{}, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return actor.Actor{
		ID:        userID,
		Roles:     append([]string(nil), u.roles...),
		Pipelines: actor.NormalizePipelines(u.pipelines),
	}, nil
}
