// Package block is the moderation overlay: general character blocks and
// poke-only blocks. Blocking twice is a no-op; unblocking deletes the row.
package block

import (
	"context"

	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social"
	"github.com/kasuganosora/nickfinder/social/store"
	"go.uber.org/zap"
)

type Service struct {
	st     *store.Store
	logger *zap.Logger
}

func New(st *store.Store, logger *zap.Logger) *Service {
	return &Service{st: st, logger: logger}
}

func (s *Service) check(ctx context.Context, userID, blockerID, blockedID int64) error {
	blocker, err := s.st.OwnedCharacter(ctx, userID, blockerID)
	if err != nil {
		return err
	}
	blocked, err := s.st.Character(ctx, blockedID)
	if err != nil {
		return err
	}
	if blocked.UserID == blocker.UserID {
		return social.Reject(social.CodeSelf, "You cannot block your own character.")
	}
	return nil
}

// Block creates a CharacterBlock, or returns the existing one.
func (s *Service) Block(ctx context.Context, userID, blockerID, blockedID int64, reason string) (*model.CharacterBlock, error) {
	if err := s.check(ctx, userID, blockerID, blockedID); err != nil {
		return nil, err
	}
	b, created, err := s.st.EnsureCharacterBlock(ctx, blockerID, blockedID, reason)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("character blocked", zap.Int64("blocker_id", blockerID), zap.Int64("blocked_id", blockedID))
	}
	return b, nil
}

// Unblock removes a CharacterBlock.
func (s *Service) Unblock(ctx context.Context, userID, blockerID, blockedID int64) error {
	return s.remove(ctx, &model.CharacterBlock{}, userID, blockerID, blockedID)
}

// BlockPokes creates a PokeBlock, or returns the existing one.
func (s *Service) BlockPokes(ctx context.Context, userID, blockerID, blockedID int64, reason string) (*model.PokeBlock, error) {
	if err := s.check(ctx, userID, blockerID, blockedID); err != nil {
		return nil, err
	}
	b, _, err := s.st.EnsurePokeBlock(ctx, blockerID, blockedID, reason)
	return b, err
}

// UnblockPokes removes a PokeBlock.
func (s *Service) UnblockPokes(ctx context.Context, userID, blockerID, blockedID int64) error {
	return s.remove(ctx, &model.PokeBlock{}, userID, blockerID, blockedID)
}

func (s *Service) remove(ctx context.Context, m interface{}, userID, blockerID, blockedID int64) error {
	if _, err := s.st.OwnedCharacter(ctx, userID, blockerID); err != nil {
		return err
	}
	res := s.st.DB(ctx).
		Where("blocker_character_id = ? AND blocked_character_id = ?", blockerID, blockedID).
		Delete(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return social.ErrNotFound
	}
	s.logger.Info("unblocked", zap.Int64("blocker_id", blockerID), zap.Int64("blocked_id", blockedID))
	return nil
}

// Blocked is one entry of a character's block list.
type Blocked struct {
	model.CharacterBlock
	Nickname string `json:"nickname"`
	HashID   string `json:"hash_id"`
}

// ListBlocked returns the characters charID has blocked, newest first.
func (s *Service) ListBlocked(ctx context.Context, userID, charID int64) ([]Blocked, error) {
	if _, err := s.st.OwnedCharacter(ctx, userID, charID); err != nil {
		return nil, err
	}
	var rows []model.CharacterBlock
	if err := s.st.DB(ctx).Where("blocker_character_id = ?", charID).Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Blocked, 0, len(rows))
	for _, r := range rows {
		c, err := s.st.Character(ctx, r.BlockedCharacterID)
		if err != nil {
			return nil, err
		}
		out = append(out, Blocked{CharacterBlock: r, Nickname: c.Nickname, HashID: c.HashID})
	}
	return out, nil
}

// IsBlocked reports whether blockerID has a general block against blockedID.
func (s *Service) IsBlocked(ctx context.Context, blockerID, blockedID int64) (bool, error) {
	return s.st.CharacterBlocked(ctx, blockerID, blockedID)
}
