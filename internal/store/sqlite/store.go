// Package sqlite provides a SQLite-backed session store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
	"github.com/DoyleJ11/nonetomourn-server/internal/store"
	"github.com/DoyleJ11/nonetomourn-server/internal/store/sqlite/migrations"
)

// Store persists sessions and inventories in SQLite.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; session actors already serialize per session.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const sessionColumns = `id, name, password_hash, game_state,
	player1_username, player2_username, player3_username, player4_username,
	player1_did_place_base, player2_did_place_base, player3_did_place_base, player4_did_place_base,
	ack_count, final_score, is_active`

func (s *Store) SaveSession(ctx context.Context, sess *engine.Session, grants ...store.Grant) error {
	if sess == nil {
		return fmt.Errorf("session is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().UnixMilli()
	id := sess.ID
	if id == 0 {
		res, err := tx.ExecContext(ctx, `INSERT INTO game_sessions (
			name, password_hash, game_state,
			player1_username, player2_username, player3_username, player4_username,
			player1_did_place_base, player2_did_place_base, player3_did_place_base, player4_did_place_base,
			ack_count, final_score, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.Name, sess.PasswordHash, int(sess.State),
			sess.Slots[0], sess.Slots[1], sess.Slots[2], sess.Slots[3],
			sess.BasePlaced[0], sess.BasePlaced[1], sess.BasePlaced[2], sess.BasePlaced[3],
			sess.AckCount, sess.FinalScore, sess.Active, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert session id: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `UPDATE game_sessions SET
			name = ?, password_hash = ?, game_state = ?,
			player1_username = ?, player2_username = ?, player3_username = ?, player4_username = ?,
			player1_did_place_base = ?, player2_did_place_base = ?, player3_did_place_base = ?, player4_did_place_base = ?,
			ack_count = ?, final_score = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
			sess.Name, sess.PasswordHash, int(sess.State),
			sess.Slots[0], sess.Slots[1], sess.Slots[2], sess.Slots[3],
			sess.BasePlaced[0], sess.BasePlaced[1], sess.BasePlaced[2], sess.BasePlaced[3],
			sess.AckCount, sess.FinalScore, sess.Active, now, id,
		)
		if err != nil {
			return fmt.Errorf("update session %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("update session %d: %w", id, engine.ErrSessionNotFound)
		}
	}

	for _, g := range grants {
		if err := grant(ctx, tx, id, g); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session %d: %w", id, err)
	}
	sess.ID = id
	return nil
}

func grant(ctx context.Context, tx *sql.Tx, sessionID int64, g store.Grant) error {
	var itemID int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM items WHERE name_key = ?`, store.ItemKey(g.ItemName)).Scan(&itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("grant %q: %w", g.ItemName, engine.ErrItemNotFound)
	}
	if err != nil {
		return fmt.Errorf("grant %q: %w", g.ItemName, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO inventory (session_id, player_id, item_id) VALUES (?, ?, ?)`,
		sessionID, g.PlayerID, itemID,
	); err != nil {
		return fmt.Errorf("grant %q to %s: %w", g.ItemName, g.PlayerID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (engine.Session, error) {
	var sess engine.Session
	var state int
	err := row.Scan(
		&sess.ID, &sess.Name, &sess.PasswordHash, &state,
		&sess.Slots[0], &sess.Slots[1], &sess.Slots[2], &sess.Slots[3],
		&sess.BasePlaced[0], &sess.BasePlaced[1], &sess.BasePlaced[2], &sess.BasePlaced[3],
		&sess.AckCount, &sess.FinalScore, &sess.Active,
	)
	sess.State = engine.GameState(state)
	return sess, err
}

func (s *Store) LoadActiveSessions(ctx context.Context) ([]engine.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM game_sessions WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load active sessions: %w", err)
	}
	defer rows.Close()

	var out []engine.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) Leaderboard(ctx context.Context) ([]store.LeaderboardRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM game_sessions ORDER BY final_score DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	out := []store.LeaderboardRow{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, store.LeaderboardRow{
			SessionID:   sess.ID,
			SessionName: sess.Name,
			Players:     sess.Players(),
			Score:       sess.FinalScore,
		})
	}
	return out, rows.Err()
}

func (s *Store) EnsureItem(ctx context.Context, item store.Item) error {
	key := store.ItemKey(item.Name)
	if key == "" {
		return fmt.Errorf("item name is required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO items (name, name_key, asset_path, animation_path, damage)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name_key) DO UPDATE SET
			name = excluded.name,
			asset_path = excluded.asset_path,
			animation_path = excluded.animation_path,
			damage = excluded.damage`,
		strings.TrimSpace(item.Name), key, item.AssetPath, item.AnimationPath, item.Damage,
	)
	if err != nil {
		return fmt.Errorf("ensure item %q: %w", item.Name, err)
	}
	return nil
}

func (s *Store) ItemByName(ctx context.Context, name string) (store.Item, error) {
	var item store.Item
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, asset_path, animation_path, damage FROM items WHERE name_key = ?`,
		store.ItemKey(name),
	).Scan(&item.ID, &item.Name, &item.AssetPath, &item.AnimationPath, &item.Damage)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Item{}, fmt.Errorf("item %q: %w", name, engine.ErrItemNotFound)
	}
	if err != nil {
		return store.Item{}, fmt.Errorf("item %q: %w", name, err)
	}
	return item, nil
}

func (s *Store) AddInventoryItem(ctx context.Context, sessionID int64, playerID, itemName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add item: %w", err)
	}
	defer tx.Rollback()

	var found int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM game_sessions WHERE id = ?`, sessionID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %d: %w", sessionID, engine.ErrSessionNotFound)
	}
	if err != nil {
		return fmt.Errorf("session %d: %w", sessionID, err)
	}
	if err := grant(ctx, tx, sessionID, store.Grant{PlayerID: playerID, ItemName: itemName}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Inventory(ctx context.Context, sessionID int64, playerID string) ([]store.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT i.id, i.name, i.asset_path, i.animation_path, i.damage
		FROM inventory inv
		JOIN items i ON i.id = inv.item_id
		WHERE inv.session_id = ? AND inv.player_id = ?
		ORDER BY inv.id`, sessionID, playerID)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	defer rows.Close()

	items := []store.Item{}
	for rows.Next() {
		var item store.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.AssetPath, &item.AnimationPath, &item.Damage); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
