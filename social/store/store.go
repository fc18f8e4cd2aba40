// Package store is the identity and social graph store: typed queries over
// users, characters, pokes, blocks, friendships, messages and reveals.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps a *gorm.DB. A Store obtained inside Transaction shares the
// transaction.
type Store struct {
	db *gorm.DB
}

// New creates a Store over db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns a session bound to ctx.
func (s *Store) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Transaction runs fn inside a database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return social.ErrNotFound
	}
	return err
}

// ---- users ----

func (s *Store) User(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := s.DB(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) UserByName(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := s.DB(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// ---- characters ----

func (s *Store) Character(ctx context.Context, id int64) (*model.Character, error) {
	var c model.Character
	if err := s.DB(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) CharacterByHash(ctx context.Context, hashID string) (*model.Character, error) {
	var c model.Character
	if err := s.DB(ctx).Where("hash_id = ?", hashID).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// OwnedCharacter loads a character and checks that userID owns it.
func (s *Store) OwnedCharacter(ctx context.Context, userID, charID int64) (*model.Character, error) {
	c, err := s.Character(ctx, charID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, social.ErrForbidden
	}
	return c, nil
}

func (s *Store) CharactersForUser(ctx context.Context, userID int64) ([]model.Character, error) {
	var chars []model.Character
	err := s.DB(ctx).Where("user_id = ?", userID).Order("id").Find(&chars).Error
	return chars, err
}

func (s *Store) CharacterIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.DB(ctx).Model(&model.Character{}).Where("user_id = ?", userID).Order("id").Pluck("id", &ids).Error
	return ids, err
}

const hashIDAttempts = 5

// CreateCharacter inserts c. A hash id collision is retried with a fresh
// handle; a duplicate (user, nickname, game) is rejected.
func (s *Store) CreateCharacter(ctx context.Context, c *model.Character) error {
	for i := 0; i < hashIDAttempts; i++ {
		err := s.DB(ctx).Create(c).Error
		if err == nil {
			return nil
		}
		if !IsUniqueViolation(err) {
			return err
		}
		var n int64
		if cerr := s.DB(ctx).Model(&model.Character{}).Where("hash_id = ?", c.HashID).Count(&n).Error; cerr != nil {
			return cerr
		}
		if n == 0 {
			return social.Reject(social.CodeDuplicate, "you already have a character with this nickname in this game")
		}
		c.ID = 0
		c.HashID = model.NewHashID()
	}
	return fmt.Errorf("store: could not allocate a unique hash id")
}

// DeleteCharacter removes a character and every row that references it.
func (s *Store) DeleteCharacter(ctx context.Context, charID int64) error {
	return s.Transaction(ctx, func(tx *Store) error {
		db := tx.db
		pairs := []struct {
			model interface{}
			a, b  string
		}{
			{&model.Poke{}, "sender_character_id", "receiver_character_id"},
			{&model.PokeBlock{}, "blocker_character_id", "blocked_character_id"},
			{&model.CharacterBlock{}, "blocker_character_id", "blocked_character_id"},
			{&model.CharacterFriend{}, "character_id", "friend_id"},
			{&model.CharacterFriendRequest{}, "sender_character_id", "receiver_character_id"},
			{&model.Message{}, "sender_character_id", "receiver_character_id"},
			{&model.CharacterIdentityReveal{}, "revealing_character_id", "target_character_id"},
		}
		for _, p := range pairs {
			if err := db.Where(p.a+" = ? OR "+p.b+" = ?", charID, charID).Delete(p.model).Error; err != nil {
				return err
			}
		}
		res := db.Delete(&model.Character{}, charID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return social.ErrNotFound
		}
		return nil
	})
}

// ---- pokes ----

func (s *Store) Poke(ctx context.Context, id int64) (*model.Poke, error) {
	var p model.Poke
	if err := s.DB(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// PokeBetween returns the poke from sender to receiver, or nil if none.
func (s *Store) PokeBetween(ctx context.Context, senderID, receiverID int64) (*model.Poke, error) {
	var p model.Poke
	err := s.DB(ctx).
		Where("sender_character_id = ? AND receiver_character_id = ?", senderID, receiverID).
		Limit(1).Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

// CountPokesSince counts pokes sent by any of senderIDs at or after since.
func (s *Store) CountPokesSince(ctx context.Context, senderIDs []int64, since time.Time) (int64, error) {
	if len(senderIDs) == 0 {
		return 0, nil
	}
	var n int64
	err := s.DB(ctx).Model(&model.Poke{}).
		Where("sender_character_id IN ? AND sent_date >= ?", senderIDs, since).
		Count(&n).Error
	return n, err
}

// PokeExistsSince reports whether senderID poked receiverID at or after since.
func (s *Store) PokeExistsSince(ctx context.Context, senderID, receiverID int64, since time.Time) (bool, error) {
	var n int64
	err := s.DB(ctx).Model(&model.Poke{}).
		Where("sender_character_id = ? AND receiver_character_id = ? AND sent_date >= ?", senderID, receiverID, since).
		Count(&n).Error
	return n > 0, err
}

// ---- blocks ----

// PokeBlocked reports whether blockerID has a PokeBlock against any of blockedIDs.
func (s *Store) PokeBlocked(ctx context.Context, blockerID int64, blockedIDs ...int64) (bool, error) {
	return s.blockExists(ctx, &model.PokeBlock{}, blockerID, blockedIDs)
}

// CharacterBlocked reports whether blockerID has a CharacterBlock against any of blockedIDs.
func (s *Store) CharacterBlocked(ctx context.Context, blockerID int64, blockedIDs ...int64) (bool, error) {
	return s.blockExists(ctx, &model.CharacterBlock{}, blockerID, blockedIDs)
}

func (s *Store) blockExists(ctx context.Context, m interface{}, blockerID int64, blockedIDs []int64) (bool, error) {
	if len(blockedIDs) == 0 {
		return false, nil
	}
	var n int64
	err := s.DB(ctx).Model(m).
		Where("blocker_character_id = ? AND blocked_character_id IN ?", blockerID, blockedIDs).
		Count(&n).Error
	return n > 0, err
}

// EnsurePokeBlock creates the PokeBlock or returns the existing one.
// created is false when the pair was already blocked.
func (s *Store) EnsurePokeBlock(ctx context.Context, blockerID, blockedID int64, reason string) (b *model.PokeBlock, created bool, err error) {
	b = &model.PokeBlock{BlockerCharacterID: blockerID, BlockedCharacterID: blockedID, Reason: reason}
	created, err = s.insertOrLoad(ctx, b, blockerID, blockedID)
	return b, created, err
}

// EnsureCharacterBlock creates the CharacterBlock or returns the existing one.
func (s *Store) EnsureCharacterBlock(ctx context.Context, blockerID, blockedID int64, reason string) (b *model.CharacterBlock, created bool, err error) {
	b = &model.CharacterBlock{BlockerCharacterID: blockerID, BlockedCharacterID: blockedID, Reason: reason}
	created, err = s.insertOrLoad(ctx, b, blockerID, blockedID)
	return b, created, err
}

func (s *Store) insertOrLoad(ctx context.Context, row interface{}, blockerID, blockedID int64) (bool, error) {
	res := s.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil && !IsUniqueViolation(res.Error) {
		return false, res.Error
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return true, nil
	}
	err := s.DB(ctx).
		Where("blocker_character_id = ? AND blocked_character_id = ?", blockerID, blockedID).
		First(row).Error
	return false, notFound(err)
}

// ---- friends ----

// FriendPair orders two character ids the way CharacterFriend stores them.
func FriendPair(a, b int64) (lo, hi int64) {
	if a < b {
		return a, b
	}
	return b, a
}

func (s *Store) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	lo, hi := FriendPair(a, b)
	var n int64
	err := s.DB(ctx).Model(&model.CharacterFriend{}).
		Where("character_id = ? AND friend_id = ?", lo, hi).
		Count(&n).Error
	return n > 0, err
}

// UsersAreFriends reports whether any character of userA is friends with
// any character of userB.
func (s *Store) UsersAreFriends(ctx context.Context, userA, userB int64) (bool, error) {
	aIDs, err := s.CharacterIDsForUser(ctx, userA)
	if err != nil {
		return false, err
	}
	bIDs, err := s.CharacterIDsForUser(ctx, userB)
	if err != nil {
		return false, err
	}
	if len(aIDs) == 0 || len(bIDs) == 0 {
		return false, nil
	}
	var n int64
	err = s.DB(ctx).Model(&model.CharacterFriend{}).
		Where("(character_id IN ? AND friend_id IN ?) OR (character_id IN ? AND friend_id IN ?)", aIDs, bIDs, bIDs, aIDs).
		Count(&n).Error
	return n > 0, err
}

// ---- reveals ----

// ActiveReveal reports whether revealerID currently reveals identity to targetID.
func (s *Store) ActiveReveal(ctx context.Context, revealerID, targetID int64) (bool, error) {
	var n int64
	err := s.DB(ctx).Model(&model.CharacterIdentityReveal{}).
		Where("revealing_character_id = ? AND target_character_id = ? AND is_active = ?", revealerID, targetID, true).
		Count(&n).Error
	return n > 0, err
}
