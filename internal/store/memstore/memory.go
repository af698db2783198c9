// Package memstore keeps sessions and inventories in process memory. Nothing
// survives a restart; it backs local runs and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
	"github.com/DoyleJ11/nonetomourn-server/internal/store"
)

type inventoryKey struct {
	sessionID int64
	playerID  string
}

type Store struct {
	mu        sync.RWMutex
	nextID    int64
	nextItem  int64
	sessions  map[int64]engine.Session
	items     map[string]store.Item
	inventory map[inventoryKey][]int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		sessions:  make(map[int64]engine.Session),
		items:     make(map[string]store.Item),
		inventory: make(map[inventoryKey][]int64),
	}
}

func (s *Store) SaveSession(ctx context.Context, sess *engine.Session, grants ...store.Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := sess.ID
	if id != 0 {
		if _, ok := s.sessions[id]; !ok {
			return fmt.Errorf("update session %d: %w", id, engine.ErrSessionNotFound)
		}
	}

	// Resolve every grant before writing anything.
	itemIDs := make([]int64, 0, len(grants))
	for _, g := range grants {
		it, ok := s.items[store.ItemKey(g.ItemName)]
		if !ok {
			return fmt.Errorf("grant %q: %w", g.ItemName, engine.ErrItemNotFound)
		}
		itemIDs = append(itemIDs, it.ID)
	}

	if id == 0 {
		s.nextID++
		id = s.nextID
	}
	saved := *sess
	saved.ID = id
	saved.Acked = [engine.MaxPlayers]bool{}
	s.sessions[id] = saved
	for i, g := range grants {
		k := inventoryKey{sessionID: id, playerID: g.PlayerID}
		s.inventory[k] = append(s.inventory[k], itemIDs[i])
	}
	sess.ID = id
	return nil
}

func (s *Store) LoadActiveSessions(ctx context.Context) ([]engine.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.Session
	for _, sess := range s.sessions {
		if sess.Active {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Leaderboard(ctx context.Context) ([]store.LeaderboardRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]store.LeaderboardRow, 0, len(s.sessions))
	for _, sess := range s.sessions {
		rows = append(rows, store.LeaderboardRow{
			SessionID:   sess.ID,
			SessionName: sess.Name,
			Players:     sess.Players(),
			Score:       sess.FinalScore,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].SessionID < rows[j].SessionID
	})
	return rows, nil
}

func (s *Store) EnsureItem(ctx context.Context, item store.Item) error {
	key := store.ItemKey(item.Name)
	if key == "" {
		return fmt.Errorf("item name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok {
		item.ID = existing.ID
	} else {
		s.nextItem++
		item.ID = s.nextItem
	}
	item.Name = strings.TrimSpace(item.Name)
	s.items[key] = item
	return nil
}

func (s *Store) ItemByName(ctx context.Context, name string) (store.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[store.ItemKey(name)]
	if !ok {
		return store.Item{}, fmt.Errorf("item %q: %w", name, engine.ErrItemNotFound)
	}
	return it, nil
}

func (s *Store) AddInventoryItem(ctx context.Context, sessionID int64, playerID, itemName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session %d: %w", sessionID, engine.ErrSessionNotFound)
	}
	it, ok := s.items[store.ItemKey(itemName)]
	if !ok {
		return fmt.Errorf("grant %q: %w", itemName, engine.ErrItemNotFound)
	}
	k := inventoryKey{sessionID: sessionID, playerID: playerID}
	s.inventory[k] = append(s.inventory[k], it.ID)
	return nil
}

func (s *Store) Inventory(ctx context.Context, sessionID int64, playerID string) ([]store.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := make(map[int64]store.Item, len(s.items))
	for _, it := range s.items {
		byID[it.ID] = it
	}
	items := []store.Item{}
	for _, id := range s.inventory[inventoryKey{sessionID: sessionID, playerID: playerID}] {
		items = append(items, byID[id])
	}
	return items, nil
}

func (s *Store) Close() error { return nil }
