package middleware

import (
	"errors"
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"lms/internal/auth"
	apperrors "lms/internal/errors"
	"lms/internal/logging"
)

const (
	// RefreshCookieName is the HttpOnly cookie carrying the refresh token.
	RefreshCookieName = "refreshToken"

	claimsKey = "user"
)

// TokenVerifier verifies access and refresh tokens.
type TokenVerifier interface {
	VerifyAccessToken(raw string) auth.Verification
	VerifyRefreshToken(raw string) auth.Verification
}

// AuthOptions tunes Authenticate.
type AuthOptions struct {
	// AllowRefreshCookie accepts a valid refresh token cookie when no valid
	// bearer token was presented.
	AllowRefreshCookie bool
}

// Authenticate requires a valid bearer access token and stores its claims
// in the echo context.
func Authenticate(tokens TokenVerifier, opts AuthOptions) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:             claimsKey,
		TokenLookup:            "header:" + echo.HeaderAuthorization + ":Bearer ",
		ContinueOnIgnoredError: true,
		ParseTokenFunc: func(_ echo.Context, raw string) (interface{}, error) {
			v := tokens.VerifyAccessToken(raw)
			if !v.Valid {
				return nil, errors.New(string(v.Reason))
			}
			return v.Claims, nil
		},
		SuccessHandler: func(c echo.Context) {
			withUser(c)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			if opts.AllowRefreshCookie {
				if cookie, cerr := c.Cookie(RefreshCookieName); cerr == nil && cookie.Value != "" {
					if v := tokens.VerifyRefreshToken(cookie.Value); v.Valid {
						c.Set(claimsKey, v.Claims)
						withUser(c)
						return nil
					}
				}
			}

			var parseErr *echojwt.TokenParsingError
			if errors.As(err, &parseErr) {
				logging.FromContext(c.Request().Context()).Debug("token rejected", "reason", parseErr.Err.Error())
				return apperrors.ErrInvalidToken
			}
			return apperrors.ErrAuthenticationRequired
		},
	})
}

func withUser(c echo.Context) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return
	}
	req := c.Request()
	l := logging.FromContext(req.Context()).With("user_id", claims.UserID.String(), "role", string(claims.Role))
	c.SetRequest(req.WithContext(logging.WithLogger(req.Context(), l)))
}

// ClaimsFrom returns the claims stored by Authenticate.
func ClaimsFrom(c echo.Context) (*auth.Claims, bool) {
	claims, ok := c.Get(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// RequirePermission rejects callers whose role does not grant p. It must
// run after Authenticate.
func RequirePermission(p auth.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := ClaimsFrom(c)
			if !ok {
				return apperrors.ErrAuthenticationRequired
			}
			if !auth.Can(claims.Role, p) {
				logging.FromContext(c.Request().Context()).Warn("permission denied",
					"permission", string(p),
					"method", c.Request().Method,
					"path", c.Path(),
				)
				return apperrors.ErrForbidden
			}
			return next(c)
		}
	}
}

// ClearRefreshCookie expires the refresh token cookie.
func ClearRefreshCookie(c echo.Context, secure bool) {
	c.SetCookie(refreshCookie("", -1, secure))
}

// SetRefreshCookie stores the refresh token in an HttpOnly cookie.
func SetRefreshCookie(c echo.Context, token string, maxAge int, secure bool) {
	c.SetCookie(refreshCookie(token, maxAge, secure))
}

func refreshCookie(value string, maxAge int, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}
