// Package directory defines the user and role directory port.
package directory

import (
	"context"

	"github.com/Strob0t/leadgate/internal/domain/actor"
)

// Directory resolves a user id into roles and a pipeline allow-list.
// Unknown users yield domain.ErrNotFound.
type Directory interface {
	Lookup(ctx context.Context, userID string) (actor.Actor, error)
}
