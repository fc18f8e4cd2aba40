package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HashIDLength is the length of a character's public handle.
const HashIDLength = 10

// Character is a per-game persona owned by exactly one user.
// (UserID, Nickname, GameID) is unique; HashID is unique and never changes.
type Character struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"uniqueIndex:idx_char_identity;index:idx_char_user;not null" json:"user_id"`
	Nickname    string    `gorm:"uniqueIndex:idx_char_identity;size:32;not null" json:"nickname"`
	GameID      int64     `gorm:"uniqueIndex:idx_char_identity;index:idx_char_game;not null" json:"game_id"`
	HashID      string    `gorm:"uniqueIndex;size:16;not null" json:"hash_id"`
	Description string    `gorm:"size:500" json:"description"`
	YearStarted *int      `json:"year_started"`
	YearEnded   *int      `json:"year_ended"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Character) BeforeCreate(*gorm.DB) error {
	if c.HashID == "" {
		c.HashID = NewHashID()
	}
	return nil
}

// NewHashID returns a random public handle.
func NewHashID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:HashIDLength]
}
