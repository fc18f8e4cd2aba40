package model

import "time"

// CharacterBlock is a general directed block. It gates messaging and
// friend requests and is independent of PokeBlock.
type CharacterBlock struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BlockerCharacterID int64     `gorm:"uniqueIndex:idx_char_block_pair;not null" json:"blocker_character_id"`
	BlockedCharacterID int64     `gorm:"uniqueIndex:idx_char_block_pair;index;not null" json:"blocked_character_id"`
	Reason             string    `gorm:"size:255" json:"reason"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}
