package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/presence"
)

type fakeTokens map[string]string

func (f fakeTokens) Validate(raw string) (string, error) {
	if id, ok := f[raw]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

type fakeAccounts struct {
	mu    sync.Mutex
	known map[string]bool
}

func (f *fakeAccounts) Get(_ context.Context, id string) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[id] {
		return models.Account{}, models.ErrAccountNotFound
	}
	return models.Account{ID: id}, nil
}

func newServer(t *testing.T, buffer int) (*httptest.Server, *presence.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := presence.NewRegistry(nil, zap.NewNop())
	accounts := &fakeAccounts{known: map[string]bool{"acc-1": true}}
	h := NewHandler(fakeTokens{"good": "acc-1", "stale": "acc-gone"}, accounts, reg, buffer, zap.NewNop())

	r := gin.New()
	r.GET("/ws", h.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	srv, _ := newServer(t, 4)

	_, resp, err := dial(t, srv, "nope")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeRejectsDeletedAccount(t *testing.T) {
	srv, _ := newServer(t, 4)

	_, resp, err := dial(t, srv, "stale")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPushReachesSocket(t *testing.T) {
	srv, reg := newServer(t, 4)

	conn, _, err := dial(t, srv, "good")
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return reg.IsOnline("acc-1") }, time.Second, 10*time.Millisecond)

	msg := models.Message{ID: "m1", SenderID: "acc-2", RecipientID: "acc-1", Content: "hi"}
	require.True(t, reg.Push("acc-1", models.ChatEvent{Type: models.EventMessage, Message: &msg}))
	require.True(t, reg.Push("acc-1", models.ChatEvent{Type: models.EventDeleted, MessageIDs: []string{"m1"}}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second models.ChatEvent
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, models.EventMessage, first.Type)
	require.NotNil(t, first.Message)
	assert.Equal(t, "hi", first.Message.Content)
	assert.Equal(t, models.EventDeleted, second.Type)
	assert.Equal(t, []string{"m1"}, second.MessageIDs)
}

func TestClientCloseGoesOffline(t *testing.T) {
	srv, reg := newServer(t, 4)

	conn, _, err := dial(t, srv, "good")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return reg.IsOnline("acc-1") }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	require.Eventually(t, func() bool { return !reg.IsOnline("acc-1") }, time.Second, 10*time.Millisecond)
}

func TestReconnectReplacesSession(t *testing.T) {
	srv, reg := newServer(t, 4)

	first, _, err := dial(t, srv, "good")
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return reg.IsOnline("acc-1") }, time.Second, 10*time.Millisecond)

	second, _, err := dial(t, srv, "good")
	require.NoError(t, err)
	defer second.Close()

	// the first session is closed by the server
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = first.ReadMessage()
	require.Error(t, err)

	// the stale session's teardown must not unregister the new one
	time.Sleep(50 * time.Millisecond)
	assert.True(t, reg.IsOnline("acc-1"))
	require.True(t, reg.Push("acc-1", models.ChatEvent{Type: models.EventDeleted, MessageIDs: []string{"x"}}))

	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.ChatEvent
	require.NoError(t, second.ReadJSON(&ev))
	assert.Equal(t, []string{"x"}, ev.MessageIDs)
}

func TestClientDeliverNeverBlocks(t *testing.T) {
	cl := newClient(nil, ConnInfo{AccountID: "acc-1"}, 1)
	overflowed := false
	cl.onOverflow = func() { overflowed = true }

	assert.True(t, cl.Deliver(models.ChatEvent{Type: models.EventDeleted}))
	assert.False(t, cl.Deliver(models.ChatEvent{Type: models.EventDeleted}))
	assert.True(t, overflowed)

	// closed clients refuse further events, and Close is idempotent
	cl.Close()
	assert.False(t, cl.Deliver(models.ChatEvent{Type: models.EventDeleted}))
}

func TestTokenFromRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{name: "bearer header", target: "/ws", header: "Bearer abc", want: "abc"},
		{name: "query parameter", target: "/ws?token=q", want: "q"},
		{name: "query wins over header", target: "/ws?token=q", header: "Bearer abc", want: "q"},
		{name: "non bearer header", target: "/ws", header: "Basic abc", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}
			assert.Equal(t, tc.want, tokenFromRequest(c))
		})
	}
}
