// Package persist is the durability boundary of the game core: opaque
// session snapshots keyed by game id. Saves are best-effort; the in-memory
// session is authoritative.
package persist

import (
	"context"
	"errors"
)

// ErrNotFound reports that no snapshot exists under the requested key.
var ErrNotFound = errors.New("game not found")

// Gateway is the persistence contract the game core depends on.
type Gateway interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, state string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
