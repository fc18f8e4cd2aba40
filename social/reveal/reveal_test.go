package reveal

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social"
	"github.com/kasuganosora/nickfinder/social/store"
	"github.com/kasuganosora/nickfinder/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReveal_RevokeReveal_SingleRow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	l := New(store.New(db), zap.NewNop())
	ctx := context.Background()
	a := testutil.NewFixture(t, db, "alice")
	b := testutil.NewFixture(t, db, "bob")

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { clock = clock.Add(time.Hour); return clock }

	r1, err := l.Reveal(ctx, a.User.ID, a.Character.ID, b.Character.ID)
	require.NoError(t, err)
	assert.True(t, r1.IsActive)
	firstRevealed := r1.RevealedAt

	ok, err := l.IsRevealed(ctx, a.Character.ID, b.Character.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = l.IsRevealed(ctx, b.Character.ID, a.Character.ID)
	assert.False(t, ok, "reveals are directed")

	r2, err := l.Revoke(ctx, a.User.ID, a.Character.ID, b.Character.ID)
	require.NoError(t, err)
	assert.False(t, r2.IsActive)
	require.NotNil(t, r2.RevokedAt)
	ok, _ = l.IsRevealed(ctx, a.Character.ID, b.Character.ID)
	assert.False(t, ok)

	r3, err := l.Reveal(ctx, a.User.ID, a.Character.ID, b.Character.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r3.ID)

	var rows []model.CharacterIdentityReveal
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsActive)
	assert.Nil(t, rows[0].RevokedAt)
	assert.True(t, rows[0].RevealedAt.Equal(firstRevealed))
}

func TestReveal_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	l := New(store.New(db), zap.NewNop())
	ctx := context.Background()
	a := testutil.NewFixture(t, db, "alice")
	b := testutil.NewFixture(t, db, "bob")

	r1, err := l.Reveal(ctx, a.User.ID, a.Character.ID, b.Character.ID)
	require.NoError(t, err)
	r2, err := l.Reveal(ctx, a.User.ID, a.Character.ID, b.Character.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)
}

func TestReveal_Permissions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	l := New(store.New(db), zap.NewNop())
	ctx := context.Background()
	a := testutil.NewFixture(t, db, "alice")
	b := testutil.NewFixture(t, db, "bob")
	alt := testutil.CreateCharacter(t, db, a.User.ID, a.Game.ID, "alt")

	_, err := l.Reveal(ctx, b.User.ID, a.Character.ID, b.Character.ID)
	assert.ErrorIs(t, err, social.ErrForbidden)

	_, err = l.Reveal(ctx, a.User.ID, a.Character.ID, alt.ID)
	r, ok := social.AsRejected(err)
	require.True(t, ok)
	assert.Equal(t, social.CodeSelf, r.Code)

	_, err = l.Revoke(ctx, a.User.ID, a.Character.ID, b.Character.ID)
	assert.ErrorIs(t, err, social.ErrNotFound)
}

func TestLists(t *testing.T) {
	db := testutil.SetupTestDB(t)
	l := New(store.New(db), zap.NewNop())
	ctx := context.Background()
	a := testutil.NewFixture(t, db, "alice")
	b := testutil.NewFixture(t, db, "bob")
	c := testutil.NewFixture(t, db, "carol")

	_, err := l.Reveal(ctx, a.User.ID, a.Character.ID, b.Character.ID)
	require.NoError(t, err)
	_, err = l.Reveal(ctx, a.User.ID, a.Character.ID, c.Character.ID)
	require.NoError(t, err)
	_, err = l.Revoke(ctx, a.User.ID, a.Character.ID, c.Character.ID)
	require.NoError(t, err)

	mine, err := l.ListByRevealer(ctx, a.User.ID, a.Character.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	toBob, err := l.ListRevealedTo(ctx, b.User.ID, b.Character.ID)
	require.NoError(t, err)
	assert.Len(t, toBob, 1)
	toCarol, err := l.ListRevealedTo(ctx, c.User.ID, c.Character.ID)
	require.NoError(t, err)
	assert.Empty(t, toCarol)
}
