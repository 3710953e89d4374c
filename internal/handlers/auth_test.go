package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/adfyer/apiserver/internal/auth"
	"github.com/adfyer/apiserver/internal/logging"
	"github.com/adfyer/apiserver/internal/notify"
	"github.com/adfyer/apiserver/internal/services"
	"github.com/adfyer/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type outbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (o *outbox) Dispatch(_ context.Context, msg notify.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
}

func (o *outbox) lastToken(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	token := regexp.MustCompile(`[0-9a-f]{64}`).FindString(o.sent[len(o.sent)-1].Body)
	require.NotEmpty(t, token)
	return token
}

type testAPI struct {
	router http.Handler
	codec  *auth.TokenCodec
	outbox *outbox
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	codec, err := auth.NewTokenCodec([]byte("handler-secret"), 0)
	require.NoError(t, err)
	box := &outbox{}
	svc, err := services.NewAccountService(
		store.NewMemoryAccountRepository(),
		auth.NewBcryptHasher(bcrypt.MinCost),
		codec,
		box,
		logging.Discard(),
	)
	require.NoError(t, err)

	handler := NewAccountHandler(svc, codec, logging.Discard())
	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	r.Route("/api", func(r chi.Router) {
		r.Get("/", Root)
		r.Route("/user", func(r chi.Router) {
			AccountRouter(r, handler)
		})
	})
	return testAPI{router: r, codec: codec, outbox: box}
}

func (a testAPI) do(t *testing.T, method, path, body, bearer string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	return rec, payload
}

func TestRegisterAndSignIn(t *testing.T) {
	api := newTestAPI(t)

	rec, body := api.do(t, http.MethodPost, "/api/user/register",
		`{"email":"a@b.com","password":"abc123","confirmPassword":"abc123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User created", body["msg"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "a@b.com", data["email"])
	assert.NotEmpty(t, data["id"])
	assert.NotContains(t, rec.Body.String(), "password")

	claims, err := api.codec.Verify(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, data["id"], claims.AccountID)

	rec, body = api.do(t, http.MethodPost, "/api/user/signin", `{"email":"a@b.com","password":"wrong1"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid credentials", body["msg"])

	rec, body = api.do(t, http.MethodPost, "/api/user/signin", `{"email":"a@b.com","password":"abc123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Signed in", body["msg"])
	assert.NotEmpty(t, body["token"])
}

func TestSignIn_UnknownAccountLooksLikeBadPassword(t *testing.T) {
	api := newTestAPI(t)
	rec, body := api.do(t, http.MethodPost, "/api/user/signin", `{"email":"who@b.com","password":"abc123"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid credentials", body["msg"])
}

func TestRegister_ValidationMessages(t *testing.T) {
	tests := []struct {
		body string
		msg  string
	}{
		{`{"password":"abc123","confirmPassword":"abc123"}`, "Please enter an email"},
		{`{"email":"bad","password":"abc123","confirmPassword":"abc123"}`, "Please enter a valid email"},
		{`{"email":"a@b.com","confirmPassword":"abc123"}`, "Please enter a password"},
		{`{"email":"a@b.com","password":"a1","confirmPassword":"a1"}`, "Password must be at least 6 characters long"},
		{`{"email":"a@b.com","password":"abcdef","confirmPassword":"abcdef"}`, "Password must contain at least one number"},
		{`{"email":"a@b.com","password":"123456","confirmPassword":"123456"}`, "Password must contain at least one letter"},
		{`{"email":"a@b.com","password":"abc123"}`, "Please confirm your password"},
		{`{"email":"a@b.com","password":"abc123","confirmPassword":"abc999"}`, "Passwords do not match"},
		{`{"email":`, "Invalid request body"},
	}

	api := newTestAPI(t)
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			rec, body := api.do(t, http.MethodPost, "/api/user/register", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, body["msg"])
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	api := newTestAPI(t)
	payload := `{"email":"a@b.com","password":"abc123","confirmPassword":"abc123"}`

	rec, _ := api.do(t, http.MethodPost, "/api/user/register", payload, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := api.do(t, http.MethodPost, "/api/user/register", payload, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already in use", body["msg"])
}

func TestPasswordResetFlow(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/api/user/register", `{"email":"a@b.com","password":"abc123","confirmPassword":"abc123"}`, "")

	rec, body := api.do(t, http.MethodPost, "/api/user/forgot-password", `{"email":"nobody@b.com"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User does not exist", body["msg"])

	rec, body = api.do(t, http.MethodPost, "/api/user/forgot-password", `{"email":"a@b.com"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Reset token sent", body["msg"])
	token := api.outbox.lastToken(t)

	update := `{"resetToken":"` + token + `","newPassword":"xyz789","confirmNewPassword":"xyz789"}`
	rec, body = api.do(t, http.MethodPost, "/api/user/update-password", update, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Password updated successfully", body["msg"])
	assert.NotEmpty(t, body["token"])

	rec, body = api.do(t, http.MethodPost, "/api/user/update-password", update, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid reset token", body["msg"])

	rec, _ = api.do(t, http.MethodPost, "/api/user/signin", `{"email":"a@b.com","password":"xyz789"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdatePassword_MissingToken(t *testing.T) {
	api := newTestAPI(t)
	rec, body := api.do(t, http.MethodPost, "/api/user/update-password", `{"newPassword":"xyz789","confirmNewPassword":"xyz789"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please provide a reset token", body["msg"])
}

func TestMe(t *testing.T) {
	api := newTestAPI(t)
	_, registered := api.do(t, http.MethodPost, "/api/user/register", `{"email":"a@b.com","password":"abc123","confirmPassword":"abc123"}`, "")
	token := registered["token"].(string)

	rec, body := api.do(t, http.MethodGet, "/api/user/me", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Authenticated", body["msg"])
	assert.Equal(t, "a@b.com", body["data"].(map[string]any)["email"])

	rec, body = api.do(t, http.MethodGet, "/api/user/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body["msg"])

	tampered := token[:len(token)-2] + "xx"
	rec, _ = api.do(t, http.MethodGet, "/api/user/me", "", tampered)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	stranger, err := api.codec.Issue("00000000-0000-0000-0000-000000000000", "x@b.com")
	require.NoError(t, err)
	rec, _ = api.do(t, http.MethodGet, "/api/user/me", "", stranger)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRootAndHealthz(t *testing.T) {
	api := newTestAPI(t)
	rec, body := api.do(t, http.MethodGet, "/api", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "API is up and running...", body["msg"])

	rec, body = api.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["msg"])
}

func TestBodyLimit(t *testing.T) {
	api := newTestAPI(t)
	huge := `{"email":"` + strings.Repeat("a", maxBodyBytes) + `@b.com"}`
	rec, body := api.do(t, http.MethodPost, "/api/user/forgot-password", huge, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", body["msg"])
}

func TestStatusFor_UnknownErrorIsServerError(t *testing.T) {
	status, msg := statusFor(errors.New("db exploded"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Server error", msg)

	status, msg = statusFor(errors.Join(services.ErrTokenExpired, errors.New("ctx")))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Reset token has expired", msg)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"", "", false},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tt.header)
		got, err := bearerToken(req)
		if !tt.ok {
			assert.Error(t, err, tt.header)
			continue
		}
		require.NoError(t, err, tt.header)
		assert.Equal(t, tt.want, got)
	}
}
