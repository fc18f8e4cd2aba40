package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/api/rest"
	"github.com/kasuganosora/nickfinder/audit"
	"github.com/kasuganosora/nickfinder/cache"
	"github.com/kasuganosora/nickfinder/config"
	"github.com/kasuganosora/nickfinder/scheduler"
	"github.com/kasuganosora/nickfinder/social/block"
	"github.com/kasuganosora/nickfinder/social/friend"
	"github.com/kasuganosora/nickfinder/social/messaging"
	"github.com/kasuganosora/nickfinder/social/poke"
	"github.com/kasuganosora/nickfinder/social/reveal"
	"github.com/kasuganosora/nickfinder/social/store"
	"github.com/kasuganosora/nickfinder/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testAdminKey = "admin-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	r     *gin.Engine
	db    *gorm.DB
	cache cache.Cache
	audit *audit.Service
	sched *scheduler.Scheduler
}

// newTestAPI wires the full REST surface over an in-memory database.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	st := store.New(db)

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	r := gin.New()
	rest.Routes(r, rest.Deps{
		DB:    db,
		Cache: c,
		Store: st,
		Server: config.ServerConfig{
			AdminKey: testAdminKey,
		},
		Security: config.SecurityConfig{
			JWTSecret: "test-secret",
			JWTTTLH:   72 * time.Hour,
		},
		Pokes:     poke.New(st, config.DefaultPokeConfig(), nil, logger),
		Messages:  messaging.New(st, config.MessagingConfig{MaxLength: 2000}, nil, logger),
		Reveals:   reveal.New(st, logger),
		Blocks:    block.New(st, logger),
		Friends:   friend.New(st, nil, logger),
		Audit:     auditSvc,
		Scheduler: sched,
		Logger:    logger,
	})
	return &testAPI{r: r, db: db, cache: c, audit: auditSvc, sched: sched}
}

func doRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r *gin.Engine, path string, body interface{}, token string) *httptest.ResponseRecorder {
	return doRequest(r, http.MethodPost, path, body, token)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type session struct {
	token  string
	userID int64
}

// register creates an account and returns its session.
func (a *testAPI) register(t *testing.T, username string) session {
	t.Helper()
	w := postJSON(a.r, "/api/auth/register", map[string]string{
		"username": username,
		"password": "password123",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode(t, w)
	return session{token: resp["token"].(string), userID: int64(resp["user_id"].(float64))}
}

// character creates a character for s in gameID and returns its id.
func (a *testAPI) character(t *testing.T, s session, gameID int64, nickname string) int64 {
	t.Helper()
	w := postJSON(a.r, "/api/characters", map[string]interface{}{
		"nickname": nickname,
		"game_id":  gameID,
	}, s.token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return int64(decode(t, w)["id"].(float64))
}

func (a *testAPI) game(t *testing.T, name string) int64 {
	t.Helper()
	return testutil.CreateGame(t, a.db, name).ID
}
