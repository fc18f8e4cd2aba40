package rest_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kasuganosora/nickfinder/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	api          *testAPI
	alice, bob   session
	aliceC, bobC int64
}

func newPair(t *testing.T) pair {
	t.Helper()
	api := newTestAPI(t)
	game := api.game(t, "Halo")
	p := pair{api: api, alice: api.register(t, "alice"), bob: api.register(t, "bob")}
	p.aliceC = api.character(t, p.alice, game, "Nova")
	p.bobC = api.character(t, p.bob, game, "Zed")
	return p
}

func (p pair) poke(t *testing.T, from session, sender, receiver int64, content string) *httptest.ResponseRecorder {
	t.Helper()
	return postJSON(p.api.r, "/api/pokes", map[string]interface{}{
		"sender_id": sender, "receiver_id": receiver, "content": content,
	}, from.token)
}

func TestPokeRespondUnlocksMessaging(t *testing.T) {
	p := newPair(t)
	r := p.api.r

	w := doRequest(r, http.MethodGet, fmt.Sprintf("/api/pokes/check?receiver_id=%d&sender_id=%d", p.bobC, p.aliceC), nil, p.alice.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, true, resp["decision"].(map[string]interface{})["allowed"])
	assert.EqualValues(t, 5, resp["remaining"])

	res := p.poke(t, p.alice, p.aliceC, p.bobC, "gg wp")
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	pokeID := int64(decode(t, res)["id"].(float64))

	// Sender may not message until the poke is answered.
	w = postJSON(r, "/api/messages", map[string]interface{}{
		"sender_id": p.aliceC, "receiver_id": p.bobC, "content": "hello",
	}, p.alice.token)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, social.CodeNotUnlocked, decode(t, w)["code"])

	w = doRequest(r, http.MethodGet, fmt.Sprintf("/api/pokes/%d", pokeID), nil, p.bob.token)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode(t, w)
	assert.Equal(t, true, resp["read"])
	assert.Equal(t, false, resp["mutual"])

	w = postJSON(r, fmt.Sprintf("/api/pokes/%d/respond", pokeID), nil, p.bob.token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "POKE back!", decode(t, w)["content"])

	w = postJSON(r, fmt.Sprintf("/api/pokes/%d/respond", pokeID), nil, p.bob.token)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(r, http.MethodGet, fmt.Sprintf("/api/pokes/%d", pokeID), nil, p.alice.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["can_send_full_message"])

	w = doRequest(r, http.MethodGet, fmt.Sprintf("/api/messages/check?sender_id=%d&receiver_id=%d", p.aliceC, p.bobC), nil, p.alice.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["decision"].(map[string]interface{})["allowed"])

	w = postJSON(r, "/api/messages", map[string]interface{}{
		"sender_id": p.aliceC, "receiver_id": p.bobC, "content": "hello",
	}, p.alice.token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	thread := decode(t, w)["thread_id"].(string)
	assert.NotEmpty(t, thread)

	w = doRequest(r, http.MethodGet, "/api/notifications/unread", nil, p.bob.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["messages"])

	w = doRequest(r, http.MethodGet, fmt.Sprintf("/api/characters/%d/conversations", p.bobC), nil, p.bob.token)
	require.Equal(t, http.StatusOK, w.Code)
	convs := decode(t, w)["conversations"].([]interface{})
	require.Len(t, convs, 1)
	assert.EqualValues(t, 1, convs[0].(map[string]interface{})["unread"])

	w = doRequest(r, http.MethodGet, fmt.Sprintf("/api/characters/%d/threads/%s", p.bobC, thread), nil, p.bob.token)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode(t, w)["messages"].([]interface{})
	require.Len(t, msgs, 1)
	assert.Equal(t, "Nova", msgs[0].(map[string]interface{})["sender_nickname"])

	w = doRequest(r, http.MethodGet, "/api/notifications/unread", nil, p.bob.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["messages"])

	// Replies stay in the same thread.
	w = postJSON(r, "/api/messages", map[string]interface{}{
		"sender_id": p.bobC, "receiver_id": p.aliceC, "content": "hey",
	}, p.bob.token)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, thread, decode(t, w)["thread_id"])
}

func TestPokeRejections(t *testing.T) {
	p := newPair(t)
	r := p.api.r

	res := p.poke(t, p.alice, p.aliceC, p.bobC, "check http://x.com")
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.NotEmpty(t, decode(t, res)["errors"])

	res = p.poke(t, p.alice, p.aliceC, p.bobC, "   ")
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = p.poke(t, p.alice, p.aliceC, p.bobC, "gg")
	require.Equal(t, http.StatusCreated, res.Code)

	res = p.poke(t, p.alice, p.aliceC, p.bobC, "gg again")
	require.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, social.CodeCooldown, decode(t, res)["code"])

	// Someone else's character cannot be used as the sender.
	res = p.poke(t, p.alice, p.bobC, p.aliceC, "hi")
	assert.Equal(t, http.StatusForbidden, res.Code)

	game := p.api.game(t, "Quake")
	alt := p.api.character(t, p.alice, game, "Alt")
	res = p.poke(t, p.alice, alt, p.aliceC, "me")
	require.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, social.CodeSelf, decode(t, res)["code"])

	res = p.poke(t, p.alice, p.aliceC, 9999, "hi")
	assert.Equal(t, http.StatusNotFound, res.Code)

	w := doRequest(r, http.MethodGet, fmt.Sprintf("/api/characters/%d/pokes?filter=bogus", p.aliceC), nil, p.alice.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, fmt.Sprintf("/api/characters/%d/pokes?filter=sent", p.aliceC), nil, p.alice.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["pokes"], 1)

	w = doRequest(r, http.MethodGet, fmt.Sprintf("/api/characters/%d/pokes", p.aliceC), nil, p.bob.token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPokeDailyLimit(t *testing.T) {
	p := newPair(t)
	game := p.api.game(t, "Quake")
	for i := 0; i < 5; i++ {
		target := p.api.character(t, p.bob, game, fmt.Sprintf("Target%d", i))
		res := p.poke(t, p.alice, p.aliceC, target, "hi there")
		require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	}

	w := doRequest(p.api.r, http.MethodGet, "/api/pokes/remaining", nil, p.alice.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["remaining"])

	res := p.poke(t, p.alice, p.aliceC, p.bobC, "one more")
	require.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Equal(t, social.CodeRateLimited, decode(t, res)["code"])
}

func TestPokeIgnoreAndBlock(t *testing.T) {
	p := newPair(t)
	r := p.api.r

	res := p.poke(t, p.alice, p.aliceC, p.bobC, "hello")
	require.Equal(t, http.StatusCreated, res.Code)
	pokeID := int64(decode(t, res)["id"].(float64))

	// Only the receiver can act on a poke.
	w := postJSON(r, fmt.Sprintf("/api/pokes/%d/ignore", pokeID), nil, p.alice.token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postJSON(r, fmt.Sprintf("/api/pokes/%d/block", pokeID), map[string]interface{}{
		"reason": "spam", "report_spam": true,
	}, p.bob.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "BLOCKED", resp["status"])
	assert.Equal(t, true, resp["spam_reported"])

	w = postJSON(r, fmt.Sprintf("/api/pokes/%d/ignore", pokeID), nil, p.bob.token)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(r, http.MethodGet, fmt.Sprintf("/api/pokes/check?receiver_id=%d", p.bobC), nil, p.alice.token)
	require.Equal(t, http.StatusOK, w.Code)
	d := decode(t, w)["decision"].(map[string]interface{})
	assert.Equal(t, false, d["allowed"])
	assert.Equal(t, social.CodeBlocked, d["code"])
}
