package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-engine/internal/mocks"
	"chat-engine/internal/models"
	"chat-engine/internal/presence"
)

func setupUserRouter(h *UserHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	withCaller(r)
	r.GET("/users", h.List)
	r.GET("/users/search", h.Search)
	r.GET("/users/:id/presence", h.Presence)
	return r
}

func TestListUsers(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	router := setupUserRouter(NewUserHandler(users, nil, nil, nil, 10, zap.NewNop()))

	page := models.Page[models.PublicAccount]{Items: []models.PublicAccount{{ID: "acc-1", Username: "alice"}}, Page: 3, TotalPages: 3}
	users.On("ListPage", mock.Anything, 3, 10).Return(page, nil).Once()

	rec := serve(router, http.MethodGet, "/users?page=3", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Len(t, resp["users"], 1)
	assert.EqualValues(t, 3, resp["total_pages"])
}

func TestSearchUsersExcludesCaller(t *testing.T) {
	search := new(mocks.UserSearcherMock)
	router := setupUserRouter(NewUserHandler(nil, search, nil, nil, 10, zap.NewNop()))

	empty := models.Page[models.PublicAccount]{Items: []models.PublicAccount{}, Page: 1}
	search.On("Usernames", mock.Anything, "bo", 1, callerAccountID).Return(empty, nil).Once()

	rec := serve(router, http.MethodGet, "/users/search?pattern=bo", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"users":[]`)
	search.AssertExpectations(t)
}

func TestPresence(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	online := new(mocks.OnlineCheckerMock)
	lastSeen := new(mocks.LastSeenReaderMock)
	router := setupUserRouter(NewUserHandler(users, nil, online, lastSeen, 10, zap.NewNop()))

	seenAt := time.Date(2025, 5, 1, 8, 30, 0, 0, time.UTC)
	users.On("Get", mock.Anything, "acc-2").Return(models.Account{ID: "acc-2", Username: "bob"}, nil).Once()
	online.On("IsOnline", "acc-2").Return(false).Once()
	lastSeen.On("Status", mock.Anything, "acc-2").Return(presence.Seen{LastSeen: &seenAt}, nil).Once()

	rec := serve(router, http.MethodGet, "/users/acc-2/presence", "")

	require.Equal(t, http.StatusOK, rec.Code)
	p := decode(t, rec)["presence"].(map[string]any)
	assert.Equal(t, false, p["online"])
	assert.Equal(t, "2025-05-01T08:30:00Z", p["last_seen"])
}

func TestPresenceLastSeenFailureStillAnswers(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	online := new(mocks.OnlineCheckerMock)
	lastSeen := new(mocks.LastSeenReaderMock)
	router := setupUserRouter(NewUserHandler(users, nil, online, lastSeen, 10, zap.NewNop()))

	users.On("Get", mock.Anything, "acc-2").Return(models.Account{ID: "acc-2"}, nil).Once()
	online.On("IsOnline", "acc-2").Return(true).Once()
	lastSeen.On("Status", mock.Anything, "acc-2").Return(nil, assert.AnError).Once()

	rec := serve(router, http.MethodGet, "/users/acc-2/presence", "")

	require.Equal(t, http.StatusOK, rec.Code)
	p := decode(t, rec)["presence"].(map[string]any)
	assert.Equal(t, true, p["online"])
	assert.NotContains(t, p, "last_seen")
}

func TestPresenceUnknownAccount(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	router := setupUserRouter(NewUserHandler(users, nil, new(mocks.OnlineCheckerMock), nil, 10, zap.NewNop()))
	users.On("Get", mock.Anything, "ghost").Return(nil, models.ErrAccountNotFound).Once()

	rec := serve(router, http.MethodGet, "/users/ghost/presence", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
}
