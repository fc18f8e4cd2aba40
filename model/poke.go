package model

import "time"

// PokeStatus is the lifecycle state of a poke.
type PokeStatus string

const (
	PokePending   PokeStatus = "PENDING"
	PokeResponded PokeStatus = "RESPONDED"
	PokeIgnored   PokeStatus = "IGNORED"
	PokeBlocked   PokeStatus = "BLOCKED"
)

// Poke is a short first-contact message. At most one row exists per
// ordered (sender, receiver) pair.
type Poke struct {
	ID                  int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderCharacterID   int64      `gorm:"uniqueIndex:idx_poke_pair;not null" json:"sender_character_id"`
	ReceiverCharacterID int64      `gorm:"uniqueIndex:idx_poke_pair;index:idx_poke_receiver;not null" json:"receiver_character_id"`
	Content             string     `gorm:"type:text;not null" json:"content"`
	Status              PokeStatus `gorm:"size:16;index;not null" json:"status"`
	SentDate            time.Time  `gorm:"index;not null" json:"sent_date"`
	RespondedDate       *time.Time `json:"responded_date"`
	Read                bool       `gorm:"column:is_read;not null" json:"read"`
	SpamReported        bool       `gorm:"index;not null" json:"spam_reported"`
	SpamReportedBy      *int64     `json:"spam_reported_by,omitempty"`
	SpamReportedAt      *time.Time `json:"spam_reported_at,omitempty"`
}

// PokeBlock means the blocker character refuses pokes from the blocked one.
type PokeBlock struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BlockerCharacterID int64     `gorm:"uniqueIndex:idx_poke_block_pair;not null" json:"blocker_character_id"`
	BlockedCharacterID int64     `gorm:"uniqueIndex:idx_poke_block_pair;index;not null" json:"blocked_character_id"`
	Reason             string    `gorm:"size:255" json:"reason"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}
