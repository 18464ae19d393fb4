package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lms/internal/auth"
	"lms/internal/config"
	"lms/internal/cryptox"
	"lms/internal/handler"
	"lms/internal/logging"
	"lms/internal/metrics"
	"lms/internal/model"
	"lms/internal/service"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func (r *memoryUsers) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memoryUsers) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memoryUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryUsers) List(_ context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *memoryUsers) update(id uuid.UUID, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	fn(u)
	return nil
}

func (r *memoryUsers) UpdateRole(_ context.Context, id uuid.UUID, role model.Role) error {
	return r.update(id, func(u *model.User) { u.Role = role })
}

func (r *memoryUsers) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	return r.update(id, func(u *model.User) { u.PasswordHash = hash })
}

func (r *memoryUsers) IncrementXP(_ context.Context, id uuid.UUID, amount int) error {
	return r.update(id, func(u *model.User) { u.XP += amount })
}

func (r *memoryUsers) Stats(_ context.Context) (*model.UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &model.UserStats{ByRole: map[model.Role]int64{}}
	for _, u := range r.users {
		stats.Total++
		stats.ByRole[u.Role]++
		stats.TotalXP += int64(u.XP)
	}
	return stats, nil
}

type memorySecrets struct {
	mu   sync.Mutex
	rows map[string]model.Secret
}

func (r *memorySecrets) Upsert(_ context.Context, s *model.Secret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.RotatedAt = time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.RotatedAt
	}
	r.rows[s.Environment+"/"+s.Name] = *s
	return nil
}

func (r *memorySecrets) FindByNameAndEnvironment(_ context.Context, name, env string) (*model.Secret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[env+"/"+name]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &s, nil
}

func (r *memorySecrets) ListMetadata(_ context.Context, env string) ([]model.SecretMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.SecretMetadata
	for _, s := range r.rows {
		if env == "" || s.Environment == env {
			out = append(out, model.SecretMetadata{Name: s.Name, Environment: s.Environment, CreatedAt: s.CreatedAt, RotatedAt: s.RotatedAt})
		}
	}
	return out, nil
}

func (r *memorySecrets) Delete(_ context.Context, name, env string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, env+"/"+name)
	return nil
}

type testServer struct {
	e      *echo.Echo
	tokens *auth.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Defaults()
	cfg.AppEnv = "test"

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  []byte("router-access-secret"),
		RefreshSecret: []byte("router-refresh-secret"),
	})
	require.NoError(t, err)

	key, err := cryptox.GenerateMasterKey()
	require.NoError(t, err)
	cipher, err := cryptox.NewCipher(key)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	users := &memoryUsers{users: map[uuid.UUID]*model.User{}}
	secrets := &memorySecrets{rows: map[string]model.Secret{}}

	authSvc := service.NewAuthService(users, tokens, service.LoginThrottle{}, m)
	userSvc := service.NewUserService(users, nil)
	secretSvc := service.NewSecretService(secrets, cipher, cfg.AppEnv, m)

	e := echo.New()
	Register(e, cfg, logging.New(io.Discard, false, "error"), tokens, reg, Handlers{
		Auth:    handler.NewAuthHandler(authSvc, int(tokens.RefreshTTL().Seconds()), false),
		User:    handler.NewUserHandler(userSvc),
		Secrets: handler.NewSecretHandler(secretSvc),
	})
	return &testServer{e: e, tokens: tokens}
}

type call struct {
	method string
	path   string
	body   string
	token  string
	cookie *http.Cookie
}

func (s *testServer) do(c call) *httptest.ResponseRecorder {
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if c.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.token)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refreshToken" {
			return c
		}
	}
	return nil
}

func (s *testServer) login(t *testing.T, email, password string) (string, *http.Cookie) {
	t.Helper()
	rec := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"` + email + `","password":"` + password + `"}`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode(t, rec)["accessToken"].(string), refreshCookie(rec)
}

func TestEndToEnd_SignupLoginAuthorize(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"a@b.com","password":"secret1","name":"A","role":"STUDENT"}`})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "STUDENT", user["role"])
	assert.Equal(t, "a@b.com", user["email"])
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"a@b.com","password":"secret1"}`})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	access := body["accessToken"].(string)
	assert.NotEmpty(t, access)
	assert.Equal(t, "STUDENT", body["user"].(map[string]interface{})["role"])

	cookie := refreshCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 7*24*3600, cookie.MaxAge)

	rec = s.do(call{method: http.MethodGet, path: "/api/admin/stats", token: access})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"forbidden","code":"FORBIDDEN"}`, rec.Body.String())

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"admin@x.io","password":"secret1","name":"Admin","role":"ADMIN"}`})
	require.Equal(t, http.StatusCreated, rec.Code)
	adminAccess, _ := s.login(t, "admin@x.io", "secret1")

	rec = s.do(call{method: http.MethodGet, path: "/api/admin/stats", token: adminAccess})
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)["stats"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["total"])
}

func TestEndToEnd_SignupErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"a@x.io","password":"secret123","name":"A"}`})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"A@X.io","password":"secret123","name":"A"}`})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decode(t, rec)["code"])

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"nope","password":"secret123","name":"A"}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", decode(t, rec)["code"])

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{not json`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndToEnd_LoginFailuresAreIdentical(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"a@x.io","password":"secret123","name":"A"}`})
	require.Equal(t, http.StatusCreated, rec.Code)

	wrong := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"a@x.io","password":"wrong-pass"}`})
	unknown := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"ghost@x.io","password":"secret123"}`})
	malformed := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"nope","password":"x"}`})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, malformed.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, wrong.Body.String(), malformed.Body.String())
	assert.Nil(t, refreshCookie(wrong))
}

func TestEndToEnd_RefreshAndProfile(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"a@x.io","password":"secret123","name":"A"}`})
	require.Equal(t, http.StatusCreated, rec.Code)
	access, cookie := s.login(t, "a@x.io", "secret123")
	require.NotNil(t, cookie)

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/refresh", cookie: cookie})
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := decode(t, rec)["accessToken"].(string)
	assert.True(t, s.tokens.VerifyAccessToken(fresh).Valid)

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/refresh"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/refresh", cookie: &http.Cookie{Name: "refreshToken", Value: access}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(call{method: http.MethodGet, path: "/api/me", token: access})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.io", decode(t, rec)["user"].(map[string]interface{})["email"])

	rec = s.do(call{method: http.MethodGet, path: "/api/me", cookie: cookie})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(call{method: http.MethodGet, path: "/api/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(call{method: http.MethodGet, path: "/api/users", cookie: cookie})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/logout", cookie: cookie})
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := refreshCookie(rec)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.True(t, cleared.MaxAge < 0)
}

func TestEndToEnd_ChangePassword(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"a@x.io","password":"secret123","name":"A"}`})
	require.Equal(t, http.StatusCreated, rec.Code)
	access, _ := s.login(t, "a@x.io", "secret123")

	rec = s.do(call{method: http.MethodPut, path: "/api/me/password", token: access, body: `{"currentPassword":"secret123","newPassword":"another456"}`})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	s.login(t, "a@x.io", "another456")
}

func TestEndToEnd_AdminSecrets(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"admin@x.io","password":"secret123","name":"Admin","role":"ADMIN"}`})
	require.Equal(t, http.StatusCreated, rec.Code)
	admin, _ := s.login(t, "admin@x.io", "secret123")

	rec = s.do(call{method: http.MethodPut, path: "/api/admin/secrets/SMTP_PASSWORD", token: admin, body: `{"value":"hunter2"}`})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(call{method: http.MethodGet, path: "/api/admin/secrets", token: admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SMTP_PASSWORD")
	assert.NotContains(t, rec.Body.String(), "hunter2")

	rec = s.do(call{method: http.MethodGet, path: "/api/admin/secrets/SMTP_PASSWORD?env=test", token: admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	rec = s.do(call{method: http.MethodDelete, path: "/api/admin/secrets/SMTP_PASSWORD", token: admin})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(call{method: http.MethodGet, path: "/api/admin/secrets/SMTP_PASSWORD?env=test", token: admin})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEndToEnd_TeacherAwardsXP(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(call{method: http.MethodPost, path: "/api/auth/signup", body: `{"email":"s@x.io","password":"secret123","name":"S"}`})
	require.Equal(t, http.StatusCreated, rec.Code)
	studentID := decode(t, rec)["user"].(map[string]interface{})["id"].(string)

	student, _ := s.login(t, "s@x.io", "secret123")
	rec = s.do(call{method: http.MethodPost, path: "/api/users/" + studentID + "/xp", token: student, body: `{"amount":10}`})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	teacher, err := s.tokens.CreateAccessToken(uuid.New(), model.RoleTeacher)
	require.NoError(t, err)
	rec = s.do(call{method: http.MethodPost, path: "/api/users/" + studentID + "/xp", token: teacher, body: `{"amount":10}`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(10), decode(t, rec)["user"].(map[string]interface{})["xp"])

	rec = s.do(call{method: http.MethodPost, path: "/api/users/not-a-uuid/xp", token: teacher, body: `{"amount":10}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInfrastructureRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = s.do(call{method: http.MethodGet, path: "/nowhere"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, rec)["code"])

	s.do(call{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"ghost@x.io","password":"secret123"}`})
	rec = s.do(call{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `lms_auth_attempts_total{operation="login",outcome="failure"} 1`)
}

func TestHTTPErrorHandler_HidesInternalErrorsInProduction(t *testing.T) {
	for _, production := range []bool{true, false} {
		e := echo.New()
		e.HTTPErrorHandler = NewHTTPErrorHandler(production)
		e.GET("/boom", func(c echo.Context) error {
			return assertErr("db password=hunter2 rejected")
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		if production {
			assert.NotContains(t, rec.Body.String(), "hunter2")
			assert.Contains(t, rec.Body.String(), "internal server error")
		} else {
			assert.Contains(t, rec.Body.String(), "rejected")
		}
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
