package friend

import (
	"context"
	"testing"

	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social"
	"github.com/kasuganosora/nickfinder/social/notify"
	"github.com/kasuganosora/nickfinder/social/store"
	"github.com/kasuganosora/nickfinder/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recorder struct{ events []notify.Event }

func (r *recorder) Notify(_ context.Context, ev notify.Event) { r.events = append(r.events, ev) }

func setup(t *testing.T) (*gorm.DB, *Service, *recorder) {
	db := testutil.SetupTestDB(t)
	rec := &recorder{}
	return db, New(store.New(db), rec, zap.NewNop()), rec
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	r, ok := social.AsRejected(err)
	require.True(t, ok, "expected rejection, got %v", err)
	assert.Equal(t, code, r.Code)
}

func TestSendAndAccept(t *testing.T) {
	db, svc, rec := setup(t)
	ctx := context.Background()
	a := testutil.NewFixture(t, db, "alice")
	b := testutil.NewFixture(t, db, "bob")

	req, err := svc.SendRequest(ctx, a.User.ID, a.Character.ID, b.Character.ID, " hey ")
	require.NoError(t, err)
	assert.Equal(t, model.FriendRequestPending, req.Status)
	assert.Equal(t, "hey", req.Message)
	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.FriendRequested, rec.events[0].Type)
	assert.Equal(t, b.User.ID, rec.events[0].UserID)

	_, err = svc.Accept(ctx, a.User.ID, req.ID)
	assert.ErrorIs(t, err, social.ErrForbidden)

	edge, err := svc.Accept(ctx, b.User.ID, req.ID)
	require.NoError(t, err)
	assert.Less(t, edge.CharacterID, edge.FriendID)
	require.Len(t, rec.events, 2)
	assert.Equal(t, notify.FriendAccepted, rec.events[1].Type)
	assert.Equal(t, a.User.ID, rec.events[1].UserID)

	ok, err := svc.AreFriends(ctx, b.Character.ID, a.Character.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Accept(ctx, b.User.ID, req.ID)
	assert.ErrorIs(t, err, social.ErrNotPending)

	friends, err := svc.ListFriends(ctx, a.User.ID, a.Character.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "bob", friends[0].Nickname)
}

func TestSendRequest_Rejections(t *testing.T) {
	db, svc, _ := setup(t)
	ctx := context.Background()
	a := testutil.NewFixture(t, db, "alice")
	b := testutil.NewFixture(t, db, "bob")
	alt := testutil.CreateCharacter(t, db, a.User.ID, a.Game.ID, "alt")

	_, err := svc.SendRequest(ctx, a.User.ID, a.Character.ID, alt.ID, "")
	requireCode(t, err, social.CodeSelf)

	req, err := svc.SendRequest(ctx, a.User.ID, a.Character.ID, b.Character.ID, "")
	require.NoError(t, err)
	_, err = svc.SendRequest(ctx, a.User.ID, a.Character.ID, b.Character.ID, "again")
	requireCode(t, err, social.CodeAlreadyRequested)

	_, err = svc.Accept(ctx, b.User.ID, req.ID)
	require.NoError(t, err)

	// Either orientation of the edge counts.
	_, err = svc.SendRequest(ctx, a.User.ID, a.Character.ID, b.Character.ID, "")
	requireCode(t, err, social.CodeAlreadyFriends)
	_, err = svc.SendRequest(ctx, b.User.ID, b.Character.ID, a.Character.ID, "")
	requireCode(t, err, social.CodeAlreadyFriends)

	_, err = svc.SendRequest(ctx, b.User.ID, a.Character.ID, b.Character.ID, "")
	assert.ErrorIs(t, err, social.ErrForbidden)
}

func TestSendRequest_BlockedByReceiver(t *testing.T) {
	db, svc, _ := setup(t)
	ctx := context.Background()
	a := testutil.NewFixture(t, db, "nova")
	b := testutil.NewFixture(t, db, "zed")

	require.NoError(t, db.Create(&model.CharacterBlock{
		BlockerCharacterID: b.Character.ID,
		BlockedCharacterID: a.Character.ID,
	}).Error)

	_, err := svc.SendRequest(ctx, a.User.ID, a.Character.ID, b.Character.ID, "")
	requireCode(t, err, social.CodeBlocked)

	// The blocker may still send one.
	_, err = svc.SendRequest(ctx, b.User.ID, b.Character.ID, a.Character.ID, "")
	assert.NoError(t, err)
}

func TestDeclinedRequestReopens(t *testing.T) {
	db, svc, _ := setup(t)
	ctx := context.Background()
	a := testutil.NewFixture(t, db, "alice")
	b := testutil.NewFixture(t, db, "bob")

	req, err := svc.SendRequest(ctx, a.User.ID, a.Character.ID, b.Character.ID, "first")
	require.NoError(t, err)
	declined, err := svc.Decline(ctx, b.User.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FriendRequestDeclined, declined.Status)

	again, err := svc.SendRequest(ctx, a.User.ID, a.Character.ID, b.Character.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, req.ID, again.ID)
	assert.Equal(t, model.FriendRequestPending, again.Status)
	assert.Equal(t, "second", again.Message)

	var n int64
	db.Model(&model.CharacterFriendRequest{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestRemoveThenRequestAgain(t *testing.T) {
	db, svc, _ := setup(t)
	ctx := context.Background()
	a := testutil.NewFixture(t, db, "alice")
	b := testutil.NewFixture(t, db, "bob")

	req, err := svc.SendRequest(ctx, a.User.ID, a.Character.ID, b.Character.ID, "")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, b.User.ID, req.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, b.User.ID, b.Character.ID, a.Character.ID))
	assert.ErrorIs(t, svc.Remove(ctx, b.User.ID, b.Character.ID, a.Character.ID), social.ErrNotFound)

	again, err := svc.SendRequest(ctx, a.User.ID, a.Character.ID, b.Character.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.FriendRequestPending, again.Status)
}

func TestCancelAndListRequests(t *testing.T) {
	db, svc, _ := setup(t)
	ctx := context.Background()
	a := testutil.NewFixture(t, db, "alice")
	b := testutil.NewFixture(t, db, "bob")

	req, err := svc.SendRequest(ctx, a.User.ID, a.Character.ID, b.Character.ID, "")
	require.NoError(t, err)

	in, err := svc.ListRequests(ctx, b.User.ID, b.Character.ID, Incoming)
	require.NoError(t, err)
	assert.Len(t, in, 1)
	out, err := svc.ListRequests(ctx, a.User.ID, a.Character.ID, Outgoing)
	require.NoError(t, err)
	assert.Len(t, out, 1)

	total, err := svc.PendingTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	incoming, err := svc.IncomingCount(ctx, b.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), incoming)
	incoming, err = svc.IncomingCount(ctx, a.User.ID)
	require.NoError(t, err)
	assert.Zero(t, incoming)

	assert.ErrorIs(t, svc.Cancel(ctx, b.User.ID, req.ID), social.ErrForbidden)
	require.NoError(t, svc.Cancel(ctx, a.User.ID, req.ID))
	assert.ErrorIs(t, svc.Cancel(ctx, a.User.ID, req.ID), social.ErrNotFound)

	in, err = svc.ListRequests(ctx, b.User.ID, b.Character.ID, Incoming)
	require.NoError(t, err)
	assert.Empty(t, in)
}
