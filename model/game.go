package model

import (
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// GameCategory groups games in the catalog (e.g. "RPG", "Shooter").
type GameCategory struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;size:120;not null" json:"slug"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (c *GameCategory) BeforeSave(*gorm.DB) error {
	if c.Slug == "" {
		c.Slug = slug.Make(c.Name)
	}
	return nil
}

// Game is a catalog entry characters are tied to.
type Game struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID  *int64    `gorm:"index" json:"category_id"`
	Name        string    `gorm:"uniqueIndex;size:200;not null" json:"name"`
	Slug        string    `gorm:"uniqueIndex;size:220;not null" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (g *Game) BeforeSave(*gorm.DB) error {
	if g.Slug == "" {
		g.Slug = slug.Make(g.Name)
	}
	return nil
}
