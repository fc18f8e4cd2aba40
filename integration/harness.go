package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/nickfinder/api/rest"
	"github.com/kasuganosora/nickfinder/api/sse"
	"github.com/kasuganosora/nickfinder/audit"
	"github.com/kasuganosora/nickfinder/cache"
	"github.com/kasuganosora/nickfinder/config"
	mw "github.com/kasuganosora/nickfinder/middleware"
	"github.com/kasuganosora/nickfinder/scheduler"
	"github.com/kasuganosora/nickfinder/social/block"
	"github.com/kasuganosora/nickfinder/social/friend"
	"github.com/kasuganosora/nickfinder/social/messaging"
	"github.com/kasuganosora/nickfinder/social/notify"
	"github.com/kasuganosora/nickfinder/social/poke"
	"github.com/kasuganosora/nickfinder/social/reveal"
	"github.com/kasuganosora/nickfinder/social/store"
	"github.com/kasuganosora/nickfinder/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey is the admin key of every test server.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Audit  *audit.Service
	Sched  *scheduler.Scheduler
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{},
	}

	// ---- Services ----
	st := store.New(db)
	notifier := notify.NewPubSub(pubsub, logger)
	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)
	sched.AddTicker(scheduler.StatsTaskName, time.Minute, false, scheduler.RefreshStats(db))

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apirest.Routes(r, apirest.Deps{
		DB:        db,
		Cache:     c,
		Store:     st,
		Server:    config.ServerConfig{AdminKey: AdminKey},
		Security:  sec,
		Pokes:     poke.New(st, config.DefaultPokeConfig(), notifier, logger),
		Messages:  messaging.New(st, config.MessagingConfig{MaxLength: 2000}, notifier, logger),
		Reveals:   reveal.New(st, logger),
		Blocks:    block.New(st, logger),
		Friends:   friend.New(st, notifier, logger),
		Audit:     auditSvc,
		Scheduler: sched,
		SSE:       sse.NewHandler(pubsub, logger),
		Logger:    logger,
	})

	server := httptest.NewServer(r)
	return &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Audit:  auditSvc,
		Sched:  sched,
		Server: server,
		URL:    server.URL,
		Sec:    sec,
	}
}

// Close shuts down the test server and its background workers.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Sched.Stop()
	ts.Audit.Stop(context.Background())
}

// --- HTTP helpers ---

func (ts *TestServer) do(t *testing.T, method, path string, body interface{}, token string, headers ...string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodGet, path, nil, token)
}

// Delete sends a DELETE request with JSON body and optional Bearer token.
func (ts *TestServer) Delete(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodDelete, path, body, token)
}

// Admin sends a request carrying the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.do(t, method, path, body, "", "X-Admin-Key", AdminKey)
}

// ReadJSON reads and decodes a JSON response body into a map.
func ReadJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out), "body: %s", string(data))
	return out
}

// Expect asserts the status code and decodes the body.
func Expect(t *testing.T, resp *http.Response, status int) map[string]interface{} {
	t.Helper()
	body := ReadJSON(t, resp)
	require.Equal(t, status, resp.StatusCode, "body: %v", body)
	return body
}

// ID reads a numeric JSON field as int64.
func ID(body map[string]interface{}, key string) int64 {
	f, _ := body[key].(float64)
	return int64(f)
}

// --- Auth and fixtures ---

// Register creates an account and returns its token and user ID.
func (ts *TestServer) Register(t *testing.T, username string) (token string, userID int64) {
	t.Helper()
	body := Expect(t, ts.PostJSON(t, "/api/auth/register", map[string]string{
		"username": username,
		"password": username + "-password",
	}, ""), http.StatusCreated)
	return body["token"].(string), ID(body, "user_id")
}

// CreateGame adds a game to the catalog and returns its ID.
func (ts *TestServer) CreateGame(t *testing.T, token, name string) int64 {
	t.Helper()
	body := Expect(t, ts.PostJSON(t, "/api/games", map[string]string{"name": name}, token), http.StatusCreated)
	return ID(body, "id")
}

// CreateCharacter creates a character and returns its ID.
func (ts *TestServer) CreateCharacter(t *testing.T, token string, gameID int64, nickname string) int64 {
	t.Helper()
	body := Expect(t, ts.PostJSON(t, "/api/characters", map[string]interface{}{
		"nickname": nickname,
		"game_id":  gameID,
	}, token), http.StatusCreated)
	return ID(body, "id")
}

var testCounter uint64

// UniqueID returns a short alphanumeric name unique within the test binary.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, atomic.AddUint64(&testCounter, 1))
}

// --- SSE client ---

// Event is one server-sent event.
type Event struct {
	Name string
	Data map[string]interface{}
}

// SSEClient reads events from /sse on a background goroutine.
type SSEClient struct {
	t      *testing.T
	cancel context.CancelFunc
	events chan Event
}

// ConnectSSE opens the notification stream for token and waits for the
// "connected" event.
func (ts *TestServer) ConnectSSE(t *testing.T, token string) *SSEClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := &SSEClient{t: t, cancel: cancel, events: make(chan Event, 64)}
	go sc.readLoop(resp.Body)
	sc.Expect("connected", 5*time.Second)
	return sc
}

func (sc *SSEClient) readLoop(body io.ReadCloser) {
	defer body.Close()
	defer close(sc.events)
	r := bufio.NewReader(body)
	var ev Event
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			_ = json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.Data)
		case line == "" && ev.Name != "":
			sc.events <- ev
			ev = Event{}
		}
	}
}

// Expect waits for the next event named name, skipping others.
func (sc *SSEClient) Expect(name string, timeout time.Duration) Event {
	sc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-sc.events:
			if !ok {
				sc.t.Fatalf("stream closed while waiting for %q", name)
			}
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			sc.t.Fatalf("timed out waiting for event %q", name)
			return Event{}
		}
	}
}

// Close ends the stream.
func (sc *SSEClient) Close() {
	sc.cancel()
}
