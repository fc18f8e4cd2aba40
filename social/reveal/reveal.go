// Package reveal is the identity reveal ledger. A reveal is never deleted;
// revoking deactivates it and revealing again reactivates the same row.
package reveal

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social"
	"github.com/kasuganosora/nickfinder/social/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Ledger struct {
	st     *store.Store
	logger *zap.Logger
	now    func() time.Time
}

func New(st *store.Store, logger *zap.Logger) *Ledger {
	return &Ledger{st: st, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (l *Ledger) pair(ctx context.Context, userID, revealerID, targetID int64) error {
	revealer, err := l.st.OwnedCharacter(ctx, userID, revealerID)
	if err != nil {
		return err
	}
	target, err := l.st.Character(ctx, targetID)
	if err != nil {
		return err
	}
	if target.UserID == revealer.UserID {
		return social.Reject(social.CodeSelf, "You cannot reveal your identity to your own character.")
	}
	return nil
}

func (l *Ledger) find(ctx context.Context, revealerID, targetID int64) (*model.CharacterIdentityReveal, error) {
	var r model.CharacterIdentityReveal
	err := l.st.DB(ctx).
		Where("revealing_character_id = ? AND target_character_id = ?", revealerID, targetID).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, social.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Reveal exposes the owner of revealerID to targetID. It is idempotent and
// reactivates a revoked reveal, keeping its original RevealedAt.
func (l *Ledger) Reveal(ctx context.Context, userID, revealerID, targetID int64) (*model.CharacterIdentityReveal, error) {
	if err := l.pair(ctx, userID, revealerID, targetID); err != nil {
		return nil, err
	}

	err := l.st.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model.CharacterIdentityReveal{
		RevealingCharacterID: revealerID,
		TargetCharacterID:    targetID,
		IsActive:             true,
		RevealedAt:           l.now(),
	}).Error
	if err != nil && !store.IsUniqueViolation(err) {
		return nil, err
	}

	r, err := l.find(ctx, revealerID, targetID)
	if err != nil {
		return nil, err
	}
	if !r.IsActive {
		err := l.st.DB(ctx).Model(r).Updates(map[string]interface{}{"is_active": true, "revoked_at": nil}).Error
		if err != nil {
			return nil, err
		}
		r.IsActive, r.RevokedAt = true, nil
	}
	l.logger.Info("identity revealed", zap.Int64("revealer_id", revealerID), zap.Int64("target_id", targetID))
	return r, nil
}

// Revoke hides the identity again. The row and its history stay.
func (l *Ledger) Revoke(ctx context.Context, userID, revealerID, targetID int64) (*model.CharacterIdentityReveal, error) {
	if _, err := l.st.OwnedCharacter(ctx, userID, revealerID); err != nil {
		return nil, err
	}
	r, err := l.find(ctx, revealerID, targetID)
	if err != nil {
		return nil, err
	}
	if r.IsActive {
		now := l.now()
		if err := l.st.DB(ctx).Model(r).Updates(map[string]interface{}{"is_active": false, "revoked_at": now}).Error; err != nil {
			return nil, err
		}
		r.IsActive, r.RevokedAt = false, &now
		l.logger.Info("identity reveal revoked", zap.Int64("revealer_id", revealerID), zap.Int64("target_id", targetID))
	}
	return r, nil
}

// IsRevealed reports whether an active reveal exists from revealerID to targetID.
func (l *Ledger) IsRevealed(ctx context.Context, revealerID, targetID int64) (bool, error) {
	return l.st.ActiveReveal(ctx, revealerID, targetID)
}

// ListByRevealer lists every reveal made by charID, active or not.
func (l *Ledger) ListByRevealer(ctx context.Context, userID, charID int64) ([]model.CharacterIdentityReveal, error) {
	if _, err := l.st.OwnedCharacter(ctx, userID, charID); err != nil {
		return nil, err
	}
	var out []model.CharacterIdentityReveal
	err := l.st.DB(ctx).Where("revealing_character_id = ?", charID).Order("revealed_at DESC").Find(&out).Error
	return out, err
}

// ListRevealedTo lists the active reveals addressed to charID.
func (l *Ledger) ListRevealedTo(ctx context.Context, userID, charID int64) ([]model.CharacterIdentityReveal, error) {
	if _, err := l.st.OwnedCharacter(ctx, userID, charID); err != nil {
		return nil, err
	}
	var out []model.CharacterIdentityReveal
	err := l.st.DB(ctx).Where("target_character_id = ? AND is_active = ?", charID, true).
		Order("revealed_at DESC").Find(&out).Error
	return out, err
}
