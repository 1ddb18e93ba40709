// Package store defines the persistence contract for player records, the
// append-only event log and game sessions.
package store

import (
	"context"
	"errors"

	"streamerstock/internal/game"
)

var (
	// ErrNotReady is returned by every call made before a successful Init.
	ErrNotReady = errors.New("store is not initialized")
	// ErrStoreUnavailable means the backing medium could not be opened.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDuplicateKey is returned when an insert-only write collides.
	ErrDuplicateKey = errors.New("duplicate key")
)

const (
	DefaultEventLimit       = 50
	DefaultLeaderboardLimit = 10
)

// Store is implemented by the sqlite and postgres backends. Lookups that find
// nothing return found=false and a nil error.
type Store interface {
	Init(ctx context.Context) error
	PutPlayer(ctx context.Context, rec game.PlayerRecord) error
	GetPlayer(ctx context.Context, id string) (game.PlayerRecord, bool, error)
	GetPlayerByIdentity(ctx context.Context, identityID string) (game.PlayerRecord, bool, error)
	AppendEvent(ctx context.Context, ev game.GameEvent) error
	GetPlayerEvents(ctx context.Context, playerID string, limit int) ([]game.GameEvent, error)
	PutSession(ctx context.Context, s game.GameSession) error
	GetSession(ctx context.Context, id string) (game.GameSession, bool, error)
	GetLeaderboard(ctx context.Context, limit int) ([]game.LeaderboardRow, error)
	Close() error
}

// Limit returns n, or fallback when n is not positive.
func Limit(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
