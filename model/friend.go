package model

import "time"

// CharacterFriend is an undirected friendship edge stored with
// CharacterID < FriendID.
type CharacterFriend struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CharacterID int64     `gorm:"uniqueIndex:idx_friend_pair;not null" json:"character_id"`
	FriendID    int64     `gorm:"uniqueIndex:idx_friend_pair;index;not null" json:"friend_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FriendRequestStatus is the state of a friend request.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "PENDING"
	FriendRequestAccepted FriendRequestStatus = "ACCEPTED"
	FriendRequestDeclined FriendRequestStatus = "DECLINED"
)

// CharacterFriendRequest is a directed request, unique per (sender, receiver).
type CharacterFriendRequest struct {
	ID                  int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderCharacterID   int64               `gorm:"uniqueIndex:idx_friend_req_pair;not null" json:"sender_character_id"`
	ReceiverCharacterID int64               `gorm:"uniqueIndex:idx_friend_req_pair;index;not null" json:"receiver_character_id"`
	Message             string              `gorm:"size:500" json:"message"`
	Status              FriendRequestStatus `gorm:"size:16;index;not null" json:"status"`
	CreatedAt           time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}
