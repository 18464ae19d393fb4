package router

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	"lms/internal/auth"
	"lms/internal/config"
	apperrors "lms/internal/errors"
	"lms/internal/handler"
	"lms/internal/logging"
	"lms/internal/middleware"
)

// Handlers groups the HTTP handlers mounted by Register.
type Handlers struct {
	Auth    *handler.AuthHandler
	User    *handler.UserHandler
	Secrets *handler.SecretHandler
}

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	logger *slog.Logger,
	tokens middleware.TokenVerifier,
	gatherer prometheus.Gatherer,
	h Handlers,
) {
	e.HideBanner = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(cfg.Production())

	e.Use(echomw.RequestID())
	e.Use(middleware.RequestContext(logger))
	e.Use(middleware.AccessLog())
	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		DisablePrintStack: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			l := logging.FromContext(c.Request().Context())
			if cfg.Production() {
				l.Error("panic recovered", "error", err)
			} else {
				l.Error("panic recovered", "error", err, "stack", string(stack))
			}
			return err
		},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType},
		AllowCredentials: true,
	}))
	e.Use(echomw.BodyLimit("1M"))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	if !cfg.Production() {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	api := e.Group("/api")

	// Public routes
	api.POST("/auth/signup", h.Auth.Signup)
	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)
	api.POST("/auth/logout", h.Auth.Logout)

	// Profile accepts the refresh cookie so a reload can restore the session.
	api.GET("/me", h.User.Me, middleware.Authenticate(tokens, middleware.AuthOptions{AllowRefreshCookie: true}))

	// Secured routes (require a bearer access token)
	secured := api.Group("", middleware.Authenticate(tokens, middleware.AuthOptions{}))
	secured.PUT("/me/password", h.Auth.ChangePassword, middleware.RequirePermission(auth.PermUpdateProfile))

	secured.GET("/users", h.User.ListUsers, middleware.RequirePermission(auth.PermViewUsers))
	secured.PATCH("/users/:id/role", h.User.ChangeRole, middleware.RequirePermission(auth.PermUpdateUser))
	secured.POST("/users/:id/xp", h.User.AwardXP, middleware.RequirePermission(auth.PermAwardXP))

	admin := secured.Group("/admin")
	admin.GET("/stats", h.User.Stats, middleware.RequirePermission(auth.PermViewAnalytics))

	secrets := admin.Group("/secrets", middleware.RequirePermission(auth.PermManageSecrets))
	secrets.GET("", h.Secrets.ListSecrets)
	secrets.GET("/:name", h.Secrets.GetSecret)
	secrets.PUT("/:name", h.Secrets.PutSecret)
	secrets.DELETE("/:name", h.Secrets.DeleteSecret)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator returns the request validator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements echo.Validator interface. Failures are reported as
// validation errors naming the first offending field.
func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperrors.Validation(fe.Field() + " failed " + fe.Tag() + " validation")
	}
	return apperrors.Validation("invalid request")
}

// NewHTTPErrorHandler renders every error as ErrorResponse. Unexpected
// errors are logged in full; production responses for them stay generic.
func NewHTTPErrorHandler(production bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var resp *apperrors.HTTPError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			resp = fromEchoError(he)
		} else {
			resp = apperrors.MapErrorToHTTP(err)
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			logging.FromContext(c.Request().Context()).Error("request failed", "error", err.Error())
			if !production {
				resp.Message = err.Error()
			}
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(resp.StatusCode)
			return
		}
		_ = c.JSON(resp.StatusCode, resp.ToErrorResponse())
	}
}

// fromEchoError maps echo's own errors (404 routes, 405, body limit,
// echo-jwt) onto the error response shape.
func fromEchoError(he *echo.HTTPError) *apperrors.HTTPError {
	switch he.Code {
	case http.StatusNotFound:
		return apperrors.NewHTTPError(he.Code, "not found", "NOT_FOUND")
	case http.StatusMethodNotAllowed:
		return apperrors.NewHTTPError(he.Code, "method not allowed", "METHOD_NOT_ALLOWED")
	case http.StatusUnauthorized:
		return apperrors.NewHTTPError(he.Code, "authentication required", "UNAUTHORIZED")
	case http.StatusRequestEntityTooLarge:
		return apperrors.NewHTTPError(he.Code, "request body too large", "PAYLOAD_TOO_LARGE")
	}
	if he.Code >= http.StatusInternalServerError {
		return apperrors.NewHTTPError(he.Code, "internal server error", "INTERNAL_ERROR")
	}
	return apperrors.NewHTTPError(he.Code, http.StatusText(he.Code), "REQUEST_FAILED")
}
