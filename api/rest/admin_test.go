package rest_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/api/rest"
	"github.com/kasuganosora/nickfinder/audit"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminRequest(r *gin.Engine, method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminAuth_NoKey_Disabled(t *testing.T) {
	r := gin.New()
	r.GET("/x", rest.AdminAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := adminRequest(r, http.MethodGet, "/x", "anything", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminAuth_WrongKey(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusUnauthorized, adminRequest(api.r, http.MethodGet, "/api/admin/metrics", "wrong", "").Code)
	assert.Equal(t, http.StatusUnauthorized, adminRequest(api.r, http.MethodGet, "/api/admin/metrics", "", "").Code)
}

func TestAdminMetrics(t *testing.T) {
	p := newPair(t)
	p.api.sched.AddTicker("noop", time.Hour, false, func(context.Context) error { return nil })
	require.Equal(t, http.StatusCreated, p.poke(t, p.alice, p.aliceC, p.bobC, "gg").Code)

	w := adminRequest(p.api.r, http.MethodGet, "/api/admin/metrics", testAdminKey, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.EqualValues(t, 2, resp["users"])
	assert.EqualValues(t, 1, resp["pending_pokes"])
	assert.EqualValues(t, 0, resp["pending_friend_requests"])
	assert.Len(t, resp["scheduler_tasks"], 1)
}

func TestAdminReports(t *testing.T) {
	p := newPair(t)
	res := p.poke(t, p.alice, p.aliceC, p.bobC, "buy gold")
	require.Equal(t, http.StatusCreated, res.Code)
	pokeID := int64(decode(t, res)["id"].(float64))

	w := adminRequest(p.api.r, http.MethodGet, "/api/admin/reports", testAdminKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["count"])

	w = postJSON(p.api.r, fmt.Sprintf("/api/pokes/%d/block", pokeID), map[string]interface{}{"report_spam": true}, p.bob.token)
	require.Equal(t, http.StatusOK, w.Code)

	w = adminRequest(p.api.r, http.MethodGet, "/api/admin/reports", testAdminKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.EqualValues(t, 1, resp["count"])
	report := resp["reports"].([]interface{})[0].(map[string]interface{})
	assert.EqualValues(t, pokeID, report["id"])
	assert.EqualValues(t, p.bob.userID, report["spam_reported_by"])
}

func TestAdminBanUser(t *testing.T) {
	api := newTestAPI(t)
	s := api.register(t, "mallory")
	path := fmt.Sprintf("/api/admin/users/%d/ban", s.userID)

	w := adminRequest(api.r, http.MethodPost, path, testAdminKey, `{"ban":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var u model.User
	require.NoError(t, api.db.First(&u, s.userID).Error)
	assert.Equal(t, model.UserStatusBanned, u.Status)

	w = postJSON(api.r, "/api/auth/login", map[string]string{"username": "mallory", "password": "password123"}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = adminRequest(api.r, http.MethodPost, path, testAdminKey, `{"ban":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = postJSON(api.r, "/api/auth/login", map[string]string{"username": "mallory", "password": "password123"}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = adminRequest(api.r, http.MethodPost, "/api/admin/users/9999/ban", testAdminKey, `{"ban":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = adminRequest(api.r, http.MethodPost, "/api/admin/users/abc/ban", testAdminKey, `{"ban":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAudit(t *testing.T) {
	api := newTestAPI(t)
	s := api.register(t, "oscar")

	// Entries reach the table once the worker flushes.
	api.audit.Stop(context.Background())

	w := adminRequest(api.r, http.MethodGet, fmt.Sprintf("/api/admin/audit?user_id=%d&action=%s", s.userID, audit.ActionRegister), testAdminKey, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode(t, w)["entries"], 1)

	w = adminRequest(api.r, http.MethodGet, "/api/admin/audit?user_id=abc", testAdminKey, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAnnounce_Unavailable(t *testing.T) {
	api := newTestAPI(t)
	w := adminRequest(api.r, http.MethodPost, "/api/admin/announce", testAdminKey, `{"message":"maintenance at noon"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = adminRequest(api.r, http.MethodPost, "/api/admin/announce", testAdminKey, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
