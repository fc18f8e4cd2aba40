package model

import "time"

// ProfileVisibility controls who may view a user's profile page.
type ProfileVisibility string

const (
	VisibilityPublic      ProfileVisibility = "PUBLIC"
	VisibilityFriendsOnly ProfileVisibility = "FRIENDS_ONLY"
	VisibilityPrivate     ProfileVisibility = "PRIVATE"
)

// Valid reports whether v is one of the known visibility levels.
func (v ProfileVisibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityFriendsOnly, VisibilityPrivate:
		return true
	}
	return false
}

// User statuses.
const (
	UserStatusBanned = 0
	UserStatusNormal = 1
)

// User is an account holder. Users own characters; they are never hard-deleted.
type User struct {
	ID                int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	Username          string            `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash      string            `gorm:"size:64;not null" json:"-"`
	Email             string            `gorm:"size:128" json:"email"`
	Status            int               `gorm:"default:1" json:"status"` // 0=banned 1=normal
	ProfileVisibility ProfileVisibility `gorm:"size:16;default:PUBLIC;not null" json:"profile_visibility"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt       *time.Time        `json:"last_login_at"`
	LastLoginIP       string            `gorm:"size:45" json:"last_login_ip"`
}

// Visibility returns the effective profile visibility, PUBLIC when unset.
func (u *User) Visibility() ProfileVisibility {
	if u.ProfileVisibility == "" {
		return VisibilityPublic
	}
	return u.ProfileVisibility
}
