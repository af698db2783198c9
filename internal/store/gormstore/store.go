// Package gormstore implements the session store on Postgres through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
	"github.com/DoyleJ11/nonetomourn-server/internal/store"
)

const pgForeignKeyViolation = "23503"

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to Postgres and migrates the schema.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&gameSession{}, &item{}, &inventoryEntry{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) SaveSession(ctx context.Context, sess *engine.Session, grants ...store.Grant) error {
	if sess == nil {
		return fmt.Errorf("session is required")
	}
	row := toRow(*sess)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if row.ID == 0 {
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert session: %w", err)
			}
		} else {
			res := tx.Model(&gameSession{ID: row.ID}).Select("*").Omit("id", "created_at").Updates(&row)
			if res.Error != nil {
				return fmt.Errorf("update session %d: %w", row.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("update session %d: %w", row.ID, engine.ErrSessionNotFound)
			}
		}
		for _, g := range grants {
			if err := grant(tx, row.ID, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	sess.ID = row.ID
	return nil
}

func grant(tx *gorm.DB, sessionID int64, g store.Grant) error {
	var it item
	err := tx.Where("name_key = ?", store.ItemKey(g.ItemName)).Take(&it).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("grant %q: %w", g.ItemName, engine.ErrItemNotFound)
	}
	if err != nil {
		return fmt.Errorf("grant %q: %w", g.ItemName, err)
	}
	entry := inventoryEntry{SessionID: sessionID, PlayerID: g.PlayerID, ItemID: it.ID}
	if err := tx.Omit(clause.Associations).Create(&entry).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return fmt.Errorf("session %d: %w", sessionID, engine.ErrSessionNotFound)
		}
		return fmt.Errorf("grant %q to %s: %w", g.ItemName, g.PlayerID, err)
	}
	return nil
}

func (s *Store) LoadActiveSessions(ctx context.Context) ([]engine.Session, error) {
	var rows []gameSession
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load active sessions: %w", err)
	}
	out := make([]engine.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toSession())
	}
	return out, nil
}

func (s *Store) Leaderboard(ctx context.Context) ([]store.LeaderboardRow, error) {
	var rows []gameSession
	if err := s.db.WithContext(ctx).Order("final_score DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	out := make([]store.LeaderboardRow, 0, len(rows))
	for _, r := range rows {
		sess := r.toSession()
		out = append(out, store.LeaderboardRow{
			SessionID:   sess.ID,
			SessionName: sess.Name,
			Players:     sess.Players(),
			Score:       sess.FinalScore,
		})
	}
	return out, nil
}

func (s *Store) EnsureItem(ctx context.Context, it store.Item) error {
	key := store.ItemKey(it.Name)
	if key == "" {
		return fmt.Errorf("item name is required")
	}
	row := item{
		Name:          strings.TrimSpace(it.Name),
		NameKey:       key,
		AssetPath:     it.AssetPath,
		AnimationPath: it.AnimationPath,
		Damage:        it.Damage,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "asset_path", "animation_path", "damage"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("ensure item %q: %w", it.Name, err)
	}
	return nil
}

func (s *Store) ItemByName(ctx context.Context, name string) (store.Item, error) {
	var it item
	err := s.db.WithContext(ctx).Where("name_key = ?", store.ItemKey(name)).Take(&it).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Item{}, fmt.Errorf("item %q: %w", name, engine.ErrItemNotFound)
	}
	if err != nil {
		return store.Item{}, fmt.Errorf("item %q: %w", name, err)
	}
	return it.toItem(), nil
}

func (s *Store) AddInventoryItem(ctx context.Context, sessionID int64, playerID, itemName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return grant(tx, sessionID, store.Grant{PlayerID: playerID, ItemName: itemName})
	})
}

func (s *Store) Inventory(ctx context.Context, sessionID int64, playerID string) ([]store.Item, error) {
	var entries []inventoryEntry
	err := s.db.WithContext(ctx).
		Preload("Item").
		Where("session_id = ? AND player_id = ?", sessionID, playerID).
		Order("id").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	items := make([]store.Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, e.Item.toItem())
	}
	return items, nil
}
