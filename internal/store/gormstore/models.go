package gormstore

import (
	"time"

	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
	"github.com/DoyleJ11/nonetomourn-server/internal/store"
)

type gameSession struct {
	ID                  int64  `gorm:"primaryKey;autoIncrement"`
	Name                string `gorm:"size:255;not null"`
	PasswordHash        string `gorm:"size:255;not null"`
	GameState           int    `gorm:"not null"`
	Player1Username     string `gorm:"column:player1_username;size:255;not null;index:idx_game_sessions_host_active"`
	Player2Username     string `gorm:"column:player2_username;size:255;not null"`
	Player3Username     string `gorm:"column:player3_username;size:255;not null"`
	Player4Username     string `gorm:"column:player4_username;size:255;not null"`
	Player1DidPlaceBase bool   `gorm:"column:player1_did_place_base;not null"`
	Player2DidPlaceBase bool   `gorm:"column:player2_did_place_base;not null"`
	Player3DidPlaceBase bool   `gorm:"column:player3_did_place_base;not null"`
	Player4DidPlaceBase bool   `gorm:"column:player4_did_place_base;not null"`
	AckCount            int    `gorm:"not null"`
	FinalScore          int    `gorm:"not null;index"`
	IsActive            bool   `gorm:"not null;index:idx_game_sessions_host_active"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (gameSession) TableName() string { return "game_sessions" }

type item struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	Name          string `gorm:"size:255;not null"`
	NameKey       string `gorm:"size:255;not null;uniqueIndex"`
	AssetPath     string `gorm:"size:1024;not null"`
	AnimationPath string `gorm:"size:1024;not null"`
	Damage        string `gorm:"size:255;not null"`
}

func (item) TableName() string { return "items" }

type inventoryEntry struct {
	ID        int64       `gorm:"primaryKey;autoIncrement"`
	SessionID int64       `gorm:"not null;index:idx_inventory_session_player"`
	PlayerID  string      `gorm:"size:255;not null;index:idx_inventory_session_player"`
	ItemID    int64       `gorm:"not null"`
	Session   gameSession `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Item      item        `gorm:"foreignKey:ItemID"`
}

func (inventoryEntry) TableName() string { return "inventory" }

func toRow(s engine.Session) gameSession {
	return gameSession{
		ID:                  s.ID,
		Name:                s.Name,
		PasswordHash:        s.PasswordHash,
		GameState:           int(s.State),
		Player1Username:     s.Slots[0],
		Player2Username:     s.Slots[1],
		Player3Username:     s.Slots[2],
		Player4Username:     s.Slots[3],
		Player1DidPlaceBase: s.BasePlaced[0],
		Player2DidPlaceBase: s.BasePlaced[1],
		Player3DidPlaceBase: s.BasePlaced[2],
		Player4DidPlaceBase: s.BasePlaced[3],
		AckCount:            s.AckCount,
		FinalScore:          s.FinalScore,
		IsActive:            s.Active,
	}
}

func (r gameSession) toSession() engine.Session {
	return engine.Session{
		ID:           r.ID,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		State:        engine.GameState(r.GameState),
		Slots:        [engine.MaxPlayers]string{r.Player1Username, r.Player2Username, r.Player3Username, r.Player4Username},
		BasePlaced:   [engine.MaxPlayers]bool{r.Player1DidPlaceBase, r.Player2DidPlaceBase, r.Player3DidPlaceBase, r.Player4DidPlaceBase},
		AckCount:     r.AckCount,
		FinalScore:   r.FinalScore,
		Active:       r.IsActive,
	}
}

func (i item) toItem() store.Item {
	return store.Item{
		ID:            i.ID,
		Name:          i.Name,
		AssetPath:     i.AssetPath,
		AnimationPath: i.AnimationPath,
		Damage:        i.Damage,
	}
}
