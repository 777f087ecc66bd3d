package history

import (
	"context"

	"github.com/becomeliminal/nim-companion/core"
)

// Store persists a user's recent turns. LoadHistory returns an empty slice
// and a nil error for unknown users. SaveHistory overwrites.
type Store interface {
	LoadHistory(ctx context.Context, userID string) ([]core.Turn, error)
	SaveHistory(ctx context.Context, userID string, turns []core.Turn) error
}
