package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/kasuganosora/nickfinder/cache"
	"github.com/kasuganosora/nickfinder/config"
	dbadapter "github.com/kasuganosora/nickfinder/db"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB opens a private in-memory SQLite database and runs AutoMigrate.
// Each call gets its own database, so tests may run in parallel.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache opens the in-process cache and pub/sub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	c, ps, closeFn, err := cache.Open(config.CacheConfig{})
	require.NoError(t, err, "SetupTestCache: Open")
	t.Cleanup(closeFn)
	return c, ps
}

// Fixture holds a user with one character in one game.
type Fixture struct {
	User      *model.User
	Game      *model.Game
	Character *model.Character
}

// CreateUser inserts a user with a throwaway password hash.
func CreateUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, PasswordHash: "x", Status: model.UserStatusNormal}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateGame inserts a game (the slug is derived from name).
func CreateGame(t *testing.T, db *gorm.DB, name string) *model.Game {
	t.Helper()
	g := &model.Game{Name: name}
	require.NoError(t, db.Create(g).Error)
	return g
}

// CreateCharacter inserts a character owned by userID in gameID.
func CreateCharacter(t *testing.T, db *gorm.DB, userID, gameID int64, nickname string) *model.Character {
	t.Helper()
	c := &model.Character{UserID: userID, GameID: gameID, Nickname: nickname}
	require.NoError(t, db.Create(c).Error)
	return c
}

// NewFixture creates a user named username owning a character of the same
// nickname in a fresh game.
func NewFixture(t *testing.T, db *gorm.DB, username string) Fixture {
	t.Helper()
	u := CreateUser(t, db, username)
	g := CreateGame(t, db, "Game "+username)
	return Fixture{User: u, Game: g, Character: CreateCharacter(t, db, u.ID, g.ID, username)}
}
