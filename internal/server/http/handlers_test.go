package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testFrontend = "https://app.example.com"
	testAdminKey = "admin-key"
)

type recordingMailer struct {
	mu    sync.Mutex
	links []string
	err   error
}

func (m *recordingMailer) Send(_ context.Context, _ mailer.Kind, _ string, p mailer.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.links = append(m.links, p.ActionURL)
	return nil
}

func (m *recordingMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.links)
	link := m.links[len(m.links)-1]
	return link[strings.LastIndex(link, "/")+1:]
}

type fakeStore struct{}

func (fakeStore) Kind() string { return "memory" }

type fakeProber struct{ err error }

func (p fakeProber) Probe(context.Context) error { return p.err }

type env struct {
	srv  *httptest.Server
	mail *recordingMailer
	logs *bytes.Buffer
}

func newEnv(t *testing.T, prober MailProber) *env {
	t.Helper()

	issuer, err := auth.NewTokenIssuer([]byte(testSecret))
	require.NoError(t, err)

	mail := &recordingMailer{}
	svc, err := services.NewAccountService(accounts.NewMemoryRepository(), &auth.BcryptHasher{Cost: bcrypt.MinCost}, issuer, mail, services.Options{
		FrontendBaseURL: testFrontend,
		SessionTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	if prober == nil {
		prober = fakeProber{}
	}

	logs := &bytes.Buffer{}
	logger, err := logging.NewJSONLogger(&syncWriter{w: logs}, "debug")
	require.NoError(t, err)

	h := NewHandler(svc, fakeStore{}, prober, logger)
	srv := httptest.NewServer(NewRouter(h, RouterOptions{
		CORSAllowedOrigins: []string{"https://app.example.com"},
		AdminKey:           testAdminKey,
	}))
	t.Cleanup(srv.Close)

	return &env{srv: srv, mail: mail, logs: logs}
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (e *env) do(t *testing.T, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()

	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

var ann = map[string]string{
	"firstname": "Ann",
	"lastname":  "Lee",
	"login":     "annl",
	"email":     "ann@x.com",
	"password":  "secret1",
}

func TestScenario_RegisterVerifyLogin(t *testing.T) {
	e := newEnv(t, nil)

	status, body := e.do(t, http.MethodPost, "/register", ann)
	require.Equal(t, http.StatusCreated, status, body)
	assert.NotEmpty(t, body["userId"])
	assert.Equal(t, true, body["activationEmailSent"])
	token := e.mail.lastToken(t)

	other := map[string]string{"firstname": "Ann", "lastname": "Lee", "login": "ann2", "email": "ann@x.com", "password": "secret1"}
	status, body = e.do(t, http.MethodPost, "/register", other)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "account with this email or login already exists", body["error"])

	status, body = e.do(t, http.MethodGet, "/verify/"+token, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["ok"])

	status, body = e.do(t, http.MethodGet, "/verify/"+token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid or expired token", body["error"])

	status, body = e.do(t, http.MethodPost, "/login", map[string]string{"email": "ann@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["token"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "annl", user["login"])
	assert.Equal(t, "Ann", user["firstname"])
	assert.NotContains(t, user, "passwordHash")

	status, _ = e.do(t, http.MethodPost, "/login", map[string]string{"email": "ann@x.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestScenario_ForgotReset(t *testing.T) {
	e := newEnv(t, nil)

	status, _ := e.do(t, http.MethodPost, "/register", ann)
	require.Equal(t, http.StatusCreated, status)
	verifyToken := e.mail.lastToken(t)

	status, body := e.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": "ann@x.com"})
	assert.Equal(t, http.StatusNotFound, status, "unverified account")
	assert.Equal(t, "account not found", body["error"])

	status, _ = e.do(t, http.MethodGet, "/verify/"+verifyToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = e.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": "ann@x.com"})
	require.Equal(t, http.StatusOK, status)
	resetToken := e.mail.lastToken(t)

	status, body = e.do(t, http.MethodPost, "/reset-password/"+resetToken, map[string]string{"password": "123"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "at least 6 characters")

	status, _ = e.do(t, http.MethodPost, "/reset-password/"+resetToken, map[string]string{"password": "newpass1"})
	require.Equal(t, http.StatusOK, status)

	status, _ = e.do(t, http.MethodPost, "/login", map[string]string{"email": "ann@x.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = e.do(t, http.MethodPost, "/login", map[string]string{"email": "ann@x.com", "password": "newpass1"})
	assert.Equal(t, http.StatusOK, status)
}

func TestRegister_Errors(t *testing.T) {
	e := newEnv(t, nil)

	status, body := e.do(t, http.MethodPost, "/register", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, msgInvalidRequestBody, body["error"])

	short := map[string]string{"firstname": "Ann", "lastname": "Lee", "login": "annl", "email": "ann@x.com", "password": "123"}
	status, body = e.do(t, http.MethodPost, "/register", short)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "password must be at least 6 characters")

	huge := `{"firstname":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	status, _ = e.do(t, http.MethodPost, "/register", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
}

func TestRegister_MailFailureStillCreated(t *testing.T) {
	e := newEnv(t, nil)
	e.mail.err = errors.New("smtp down")

	status, body := e.do(t, http.MethodPost, "/register", ann)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, false, body["activationEmailSent"])
	assert.Equal(t, msgRegisteredNoMail, body["message"])

	status, body = e.do(t, http.MethodPost, "/resend-activation", map[string]string{"email": "ann@x.com"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "failed to send email", body["error"])
}

func TestLogin_NotActivated(t *testing.T) {
	e := newEnv(t, nil)

	status, _ := e.do(t, http.MethodPost, "/register", ann)
	require.Equal(t, http.StatusCreated, status)

	status, body := e.do(t, http.MethodPost, "/login", map[string]string{"email": "ann@x.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body["error"], "not activated")

	status, body = e.do(t, http.MethodPost, "/login", map[string]string{"email": "nobody@x.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid email or password", body["error"])
}

func TestResendActivation(t *testing.T) {
	e := newEnv(t, nil)

	status, body := e.do(t, http.MethodPost, "/resend-activation", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "email is required")

	status, _ = e.do(t, http.MethodPost, "/resend-activation", map[string]string{"email": "nobody@x.com"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, http.MethodPost, "/register", ann)
	require.Equal(t, http.StatusCreated, status)
	first := e.mail.lastToken(t)

	status, _ = e.do(t, http.MethodPost, "/send-activation", map[string]string{"email": "ann@x.com"})
	require.Equal(t, http.StatusOK, status)
	second := e.mail.lastToken(t)

	status, _ = e.do(t, http.MethodGet, "/verify/"+first, nil)
	assert.Equal(t, http.StatusBadRequest, status, "superseded link")
	status, _ = e.do(t, http.MethodGet, "/verify/"+second, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = e.do(t, http.MethodPost, "/resend-activation", map[string]string{"email": "ann@x.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "account is already verified", body["error"])
}

func TestInspectToken(t *testing.T) {
	e := newEnv(t, nil)

	status, _ := e.do(t, http.MethodPost, "/register", ann)
	require.Equal(t, http.StatusCreated, status)
	token := e.mail.lastToken(t)

	status, body := e.do(t, http.MethodGet, "/verify-token/"+token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "verification", body["purpose"])
	assert.Equal(t, "ann@x.com", body["email"])
	assert.NotEmpty(t, body["expiresAt"])

	status, body = e.do(t, http.MethodGet, "/verify-token/garbage", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["valid"])

	// Introspection does not consume the token.
	status, _ = e.do(t, http.MethodGet, "/verify/"+token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestMe(t *testing.T) {
	e := newEnv(t, nil)

	status, _ := e.do(t, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = e.do(t, http.MethodPost, "/register", ann)
	require.Equal(t, http.StatusCreated, status)
	status, _ = e.do(t, http.MethodGet, "/verify/"+e.mail.lastToken(t), nil)
	require.Equal(t, http.StatusOK, status)

	status, body := e.do(t, http.MethodPost, "/login", map[string]string{"email": "ann@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, status)
	session, _ := body["token"].(string)

	status, body = e.do(t, http.MethodGet, "/me", nil, "Authorization", "Bearer "+session)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ann@x.com", body["email"])
	assert.Equal(t, true, body["isVerified"])

	status, _ = e.do(t, http.MethodGet, "/me", nil, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAdminRoutes(t *testing.T) {
	e := newEnv(t, nil)

	status, _ := e.do(t, http.MethodPost, "/register", ann)
	require.Equal(t, http.StatusCreated, status)

	status, _ = e.do(t, http.MethodGet, "/admin/accounts", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = e.do(t, http.MethodGet, "/admin/accounts", nil, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := e.do(t, http.MethodGet, "/admin/accounts", nil, "Authorization", "Bearer "+testAdminKey)
	require.Equal(t, http.StatusOK, status)
	list, ok := body["accounts"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	first, _ := list[0].(map[string]any)
	assert.Equal(t, "ann@x.com", first["email"])
	assert.NotContains(t, first, "verificationToken")

	status, _ = e.do(t, http.MethodDelete, "/admin/accounts/ann@x.com", nil, "Authorization", "Bearer "+testAdminKey)
	assert.Equal(t, http.StatusOK, status)
	status, _ = e.do(t, http.MethodDelete, "/admin/accounts/ann@x.com", nil, "Authorization", "Bearer "+testAdminKey)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdminRoutes_DisabledWithoutKey(t *testing.T) {
	h := NewHandler(nil, fakeStore{}, fakeProber{}, logging.NewNopLogger())
	srv := httptest.NewServer(NewRouter(h, RouterOptions{}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/admin/accounts", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer ")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	status, body := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "memory", body["store"])

	status, body = e.do(t, http.MethodGet, "/health/mail", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body["status"])

	down := newEnv(t, fakeProber{err: errors.New("dial tcp: connection refused")})
	status, body = down.do(t, http.MethodGet, "/health/mail", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unreachable", body["status"])
	assert.Contains(t, body["error"], "connection refused")
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t, nil)

	req, err := http.NewRequest(http.MethodOptions, e.srv.URL+"/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t, nil)
	status, body := e.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "route not found", body["error"])
}

func TestRequestLog_OmitsTokens(t *testing.T) {
	e := newEnv(t, nil)

	status, _ := e.do(t, http.MethodPost, "/register", ann)
	require.Equal(t, http.StatusCreated, status)
	token := e.mail.lastToken(t)

	status, _ = e.do(t, http.MethodGet, "/verify/"+token, nil)
	require.Equal(t, http.StatusOK, status)

	logs := e.logs.String()
	assert.Contains(t, logs, `"route":"/verify/{token}"`)
	assert.NotContains(t, logs, token)
	assert.NotContains(t, logs, "secret1")
}
