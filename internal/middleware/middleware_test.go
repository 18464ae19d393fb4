package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms/internal/auth"
	apperrors "lms/internal/errors"
	"lms/internal/logging"
	"lms/internal/model"
)

func newTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  []byte("middleware-access-secret"),
		RefreshSecret: []byte("middleware-refresh-secret"),
	})
	require.NoError(t, err)
	return tokens
}

// newEcho mirrors the router's error handling closely enough for status checks.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		httpErr := apperrors.MapErrorToHTTP(err)
		_ = c.JSON(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return e
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	tokens := newTokens(t)
	userID := uuid.New()
	access, err := tokens.CreateAccessToken(userID, model.RoleStudent)
	require.NoError(t, err)
	refresh, err := tokens.CreateRefreshToken(userID, model.RoleStudent)
	require.NoError(t, err)

	e := newEcho()
	handler := func(c echo.Context) error {
		claims, ok := ClaimsFrom(c)
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		return c.String(http.StatusOK, claims.UserID.String())
	}
	e.GET("/strict", handler, Authenticate(tokens, AuthOptions{}))
	e.GET("/cookie", handler, Authenticate(tokens, AuthOptions{AllowRefreshCookie: true}))

	tests := []struct {
		name   string
		path   string
		header string
		cookie string
		status int
	}{
		{"bearer access token", "/strict", "Bearer " + access, "", http.StatusOK},
		{"no credentials", "/strict", "", "", http.StatusUnauthorized},
		{"garbage token", "/strict", "Bearer garbage", "", http.StatusUnauthorized},
		{"refresh token as bearer", "/strict", "Bearer " + refresh, "", http.StatusUnauthorized},
		{"cookie ignored when not allowed", "/strict", "", refresh, http.StatusUnauthorized},
		{"cookie fallback", "/cookie", "", refresh, http.StatusOK},
		{"access token in cookie rejected", "/cookie", "", access, http.StatusUnauthorized},
		{"bearer preferred", "/cookie", "Bearer " + access, "garbage", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: tt.cookie})
			}
			rec := serve(e, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, userID.String(), rec.Body.String())
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	tokens := newTokens(t)
	e := newEcho()
	e.GET("/analytics", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, Authenticate(tokens, AuthOptions{}), RequirePermission(auth.PermViewAnalytics))

	for role, want := range map[model.Role]int{
		model.RoleStudent: http.StatusForbidden,
		model.RoleTeacher: http.StatusForbidden,
		model.RoleAdmin:   http.StatusOK,
	} {
		raw, err := tokens.CreateAccessToken(uuid.New(), role)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/analytics", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+raw)
		rec := serve(e, req)
		assert.Equal(t, want, rec.Code, role)
		if want == http.StatusForbidden {
			assert.Contains(t, rec.Body.String(), `"error":"forbidden"`)
		}
	}
}

func TestRequirePermission_WithoutAuthenticate(t *testing.T) {
	e := newEcho()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RequirePermission(auth.PermViewContent))

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestContext_TagsLoggerWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := logging.New(&buf, true, "info")

	e := newEcho()
	e.Use(echomw.RequestID(), RequestContext(base))
	e.GET("/", func(c echo.Context) error {
		logging.FromContext(c.Request().Context()).Info("handled")
		return c.NoContent(http.StatusOK)
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	id := rec.Header().Get(echo.HeaderXRequestID)
	require.NotEmpty(t, id)
	assert.Contains(t, buf.String(), `"request_id":"`+id+`"`)
	assert.Contains(t, buf.String(), `"msg":"handled"`)
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	base := logging.New(&buf, true, "info")

	e := newEcho()
	e.Use(echomw.RequestID(), RequestContext(base), AccessLog())
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	serve(e, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Contains(t, buf.String(), `"path":"/ok"`)
	assert.Contains(t, buf.String(), `"status":200`)
}

func TestSecurityHeaders(t *testing.T) {
	e := newEcho()
	e.Use(SecurityHeaders())
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	h := rec.Header()
	assert.Equal(t, "nosniff", h.Get(echo.HeaderXContentTypeOptions))
	assert.Equal(t, "DENY", h.Get(echo.HeaderXFrameOptions))
	assert.Equal(t, hstsValue, h.Get(echo.HeaderStrictTransportSecurity))
	assert.NotEmpty(t, h.Get(echo.HeaderContentSecurityPolicy))
	assert.NotEmpty(t, h.Get("Permissions-Policy"))
}

func TestRefreshCookie(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	SetRefreshCookie(c, "tok", 604800, true)
	cookie := rec.Result().Cookies()[0]
	assert.Equal(t, RefreshCookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 604800, cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)
}
