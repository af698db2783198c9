// Package store defines the persistence boundary for game sessions, the item
// catalog and player inventories.
package store

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
)

// Grant gives one catalog item to a player as part of a session write.
type Grant struct {
	PlayerID string
	ItemName string
}

type Item struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	AssetPath     string `json:"assetPath"`
	AnimationPath string `json:"animationPath,omitempty"`
	Damage        string `json:"damage,omitempty"`
}

type LeaderboardRow struct {
	SessionID   int64    `json:"gameId"`
	SessionName string   `json:"name"`
	Players     []string `json:"players"`
	Score       int      `json:"score"`
}

// Store is implemented by the SQLite and Postgres backends.
type Store interface {
	// SaveSession inserts s when s.ID is zero, assigning the new id, and
	// updates it otherwise. Grants are written in the same transaction; if
	// any grant fails nothing is written.
	SaveSession(ctx context.Context, s *engine.Session, grants ...Grant) error
	LoadActiveSessions(ctx context.Context) ([]engine.Session, error)
	Leaderboard(ctx context.Context) ([]LeaderboardRow, error)

	EnsureItem(ctx context.Context, item Item) error
	ItemByName(ctx context.Context, name string) (Item, error)
	AddInventoryItem(ctx context.Context, sessionID int64, playerID, itemName string) error
	Inventory(ctx context.Context, sessionID int64, playerID string) ([]Item, error)

	Close() error
}

// ItemKey normalises an item name for catalog lookups.
func ItemKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
