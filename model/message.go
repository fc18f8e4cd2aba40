package model

import "time"

// Message is a full conversational message. Messages sharing a ThreadID
// form one conversation between two characters, ordered by SentDate.
type Message struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ThreadID            string    `gorm:"index:idx_msg_thread;size:36;not null" json:"thread_id"`
	SenderCharacterID   int64     `gorm:"index;not null" json:"sender_character_id"`
	ReceiverCharacterID int64     `gorm:"index;not null" json:"receiver_character_id"`
	Content             string    `gorm:"type:text;not null" json:"content"`
	SentDate            time.Time `gorm:"index:idx_msg_thread;not null" json:"sent_date"`
	// IdentityRevealed records whether a reveal was active when the message
	// was sent. Display uses the live reveal ledger instead.
	IdentityRevealed bool `gorm:"not null" json:"identity_revealed"`
	Read             bool `gorm:"column:is_read;not null" json:"read"`
}

// CharacterIdentityReveal records that the revealing character exposed its
// owner's identity to the target. Revocation deactivates the row.
type CharacterIdentityReveal struct {
	ID                   int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RevealingCharacterID int64      `gorm:"uniqueIndex:idx_reveal_pair;not null" json:"revealing_character_id"`
	TargetCharacterID    int64      `gorm:"uniqueIndex:idx_reveal_pair;index;not null" json:"target_character_id"`
	IsActive             bool       `gorm:"not null" json:"is_active"`
	RevealedAt           time.Time  `gorm:"not null" json:"revealed_at"`
	RevokedAt            *time.Time `json:"revoked_at"`
}
