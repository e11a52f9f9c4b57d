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

	"chat-engine/internal/auth"
	"chat-engine/internal/mocks"
	"chat-engine/internal/models"
	"chat-engine/internal/telemetry"
)

type accountDeps struct {
	accounts  *mocks.AccountServiceMock
	authn     *mocks.AuthenticatorMock
	tokens    *mocks.TokenIssuerMock
	publisher *mocks.PublisherMock
}

func setupAccountRouter() (*gin.Engine, accountDeps) {
	gin.SetMode(gin.TestMode)
	deps := accountDeps{
		accounts:  new(mocks.AccountServiceMock),
		authn:     new(mocks.AuthenticatorMock),
		tokens:    new(mocks.TokenIssuerMock),
		publisher: new(mocks.PublisherMock),
	}
	audit := telemetry.NewAuditEmitter(deps.publisher, "audit.chat", "chat-engine", "test", zap.NewNop())
	h := NewAccountHandler(deps.accounts, deps.authn, deps.tokens, audit, zap.NewNop())

	r := gin.New()
	r.POST("/accounts", h.Create)
	r.POST("/login", h.Login)
	r.DELETE("/accounts", h.Delete)
	return r, deps
}

func TestCreateAccountSuccess(t *testing.T) {
	router, deps := setupAccountRouter()
	req := auth.CreateAccountRequest{Email: "alice@x.com", Username: "alice", Password: "pw1"}
	deps.accounts.On("Register", mock.Anything, req).Return(models.Account{ID: "acc-1", Email: "alice@x.com", Username: "alice", PasswordHash: "secret-hash"}, nil).Once()
	deps.publisher.On("Publish", mock.Anything, "audit.chat", mock.Anything, mock.Anything).Return(nil).Once()

	rec := serve(router, http.MethodPost, "/accounts", `{"email":"alice@x.com","username":"alice","password":"pw1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-hash")
	user := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "acc-1", user["id"])
	assert.Equal(t, "alice", user["username"])
	deps.accounts.AssertExpectations(t)
	deps.publisher.AssertExpectations(t)
}

func TestCreateAccountConflict(t *testing.T) {
	router, deps := setupAccountRouter()
	deps.accounts.On("Register", mock.Anything, mock.Anything).Return(nil, models.ErrEmailTaken).Once()

	rec := serve(router, http.MethodPost, "/accounts", `{"email":"alice@x.com","username":"alice","password":"pw1"}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decode(t, rec)
	assert.EqualValues(t, -2, resp["code"])
	assert.Equal(t, models.ErrEmailTaken.Error(), resp["message"])
}

func TestLoginSuccess(t *testing.T) {
	router, deps := setupAccountRouter()
	login := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := login.Add(time.Hour)
	deps.authn.On("Authenticate", mock.Anything, auth.CredentialsRequest{Email: "alice@x.com", Password: "pw1"}).
		Return(models.Account{ID: "acc-1", Username: "alice", LastLogin: &login}, nil).Once()
	deps.tokens.On("Issue", "acc-1").Return("tok", expires, nil).Once()

	rec := serve(router, http.MethodPost, "/login", `{"email":"alice@x.com","password":"pw1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "tok", resp["token"])
	assert.Equal(t, "2025-03-01T12:00:00Z", resp["last_login"])
	deps.tokens.AssertExpectations(t)
}

func TestLoginWrongPassword(t *testing.T) {
	router, deps := setupAccountRouter()
	deps.authn.On("Authenticate", mock.Anything, mock.Anything).Return(nil, models.ErrWrongPassword).Once()
	deps.publisher.On("Publish", mock.Anything, "audit.chat", mock.Anything, mock.Anything).Return(nil).Once()

	rec := serve(router, http.MethodPost, "/login", `{"email":"alice@x.com","password":"nope"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.EqualValues(t, -3, decode(t, rec)["code"])
	deps.tokens.AssertNotCalled(t, "Issue", mock.Anything)
	deps.publisher.AssertExpectations(t)
}

func TestLoginUnknownEmail(t *testing.T) {
	router, deps := setupAccountRouter()
	deps.authn.On("Authenticate", mock.Anything, mock.Anything).Return(nil, models.ErrAccountNotFound).Once()
	deps.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	rec := serve(router, http.MethodPost, "/login", `{"email":"ghost@x.com","password":"pw"}`)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.EqualValues(t, -4, decode(t, rec)["code"])
}

func TestDeleteAccount(t *testing.T) {
	router, deps := setupAccountRouter()
	deps.accounts.On("DeleteAccount", mock.Anything, auth.CredentialsRequest{Email: "alice@x.com", Password: "pw1"}).
		Return(models.Account{ID: "acc-1", Username: "alice"}, nil).Once()
	deps.publisher.On("Publish", mock.Anything, "audit.chat", mock.Anything, mock.Anything).Return(nil).Once()

	rec := serve(router, http.MethodDelete, "/accounts", `{"email":"alice@x.com","password":"pw1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	deps.accounts.AssertExpectations(t)
}

func TestDeleteAccountBadBody(t *testing.T) {
	router, deps := setupAccountRouter()

	rec := serve(router, http.MethodDelete, "/accounts", `not json`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	deps.accounts.AssertNotCalled(t, "DeleteAccount", mock.Anything, mock.Anything)
}
