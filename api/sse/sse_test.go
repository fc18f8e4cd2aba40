package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/config"
	mw "github.com/kasuganosora/nickfinder/middleware"
	"github.com/kasuganosora/nickfinder/social/notify"
	"github.com/kasuganosora/nickfinder/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readEvent(t *testing.T, r *bufio.Reader) (name, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestServeSSE_ForwardsUserEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, ps := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: "secret", JWTTTLH: time.Hour}
	h := NewHandler(ps, zap.NewNop())

	r := gin.New()
	r.GET("/sse", mw.Auth(sec, c), h.ServeSSE)
	srv := httptest.NewServer(r)
	defer srv.Close()

	token, err := mw.GenerateToken(5, "zed", sec.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), mw.SessionKey(token), "5", time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body := bufio.NewReader(resp.Body)
	name, _ := readEvent(t, body)
	assert.Equal(t, "connected", name)

	n := notify.NewPubSub(ps, zap.NewNop())
	n.Notify(context.Background(), notify.Event{Type: notify.PokeReceived, UserID: 99})
	n.Notify(context.Background(), notify.Event{Type: notify.PokeReceived, UserID: 5, RefID: 12})

	name, data := readEvent(t, body)
	assert.Equal(t, notify.PokeReceived, name)
	assert.Contains(t, data, `"ref_id":12`)

	require.NoError(t, h.Announce(context.Background(), "maintenance"))
	name, data = readEvent(t, body)
	assert.Equal(t, "announce", name)
	assert.Contains(t, data, "maintenance")
}

func TestServeSSE_RequiresSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, ps := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: "secret", JWTTTLH: time.Hour}
	r := gin.New()
	r.GET("/sse", mw.Auth(sec, c), NewHandler(ps, zap.NewNop()).ServeSSE)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sse", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
