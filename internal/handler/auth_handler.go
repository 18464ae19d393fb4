package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "lms/internal/errors"
	"lms/internal/middleware"
	"lms/internal/service"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService  service.AuthService
	refreshTTL   int
	secureCookie bool
}

// NewAuthHandler creates a new auth handler. refreshTTLSeconds sets the
// refresh cookie Max-Age; secureCookie marks it Secure.
func NewAuthHandler(authService service.AuthService, refreshTTLSeconds int, secureCookie bool) *AuthHandler {
	return &AuthHandler{authService: authService, refreshTTL: refreshTTLSeconds, secureCookie: secureCookie}
}

// SignupRequest represents a signup request.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
	Name     string `json:"name" validate:"required,max=255"`
	Role     string `json:"role,omitempty"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest represents a password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,max=72"`
}

// UserSummary is the public view of a user returned by auth endpoints.
type UserSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

// SignupResponse is returned after a successful signup.
type SignupResponse struct {
	Success bool        `json:"success"`
	User    UserSummary `json:"user"`
}

// AuthResponse represents an authentication response.
type AuthResponse struct {
	Success     bool         `json:"success"`
	AccessToken string       `json:"accessToken"`
	User        *UserSummary `json:"user,omitempty"`
}

// MessageResponse is a generic success body.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// bindAndValidate decodes the body into req and runs the validator.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	return c.Validate(req)
}

// Signup godoc
// @Summary Create an account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Signup data"
// @Success 201 {object} SignupResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/signup [post]
func (h *AuthHandler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.authService.Signup(c.Request().Context(), req.Email, req.Password, req.Name, req.Role)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, SignupResponse{
		Success: true,
		User: UserSummary{
			ID:    user.ID.String(),
			Email: user.Email,
			Name:  user.Name,
			Role:  string(user.Role),
		},
	})
}

// Login godoc
// @Summary Log in
// @Description Returns an access token and sets the refresh token as an HttpOnly cookie.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	accessToken, refreshToken, user, err := h.authService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	middleware.SetRefreshCookie(c, refreshToken, h.refreshTTL, h.secureCookie)
	return c.JSON(http.StatusOK, AuthResponse{
		Success:     true,
		AccessToken: accessToken,
		User: &UserSummary{
			ID:    user.ID.String(),
			Email: user.Email,
			Role:  string(user.Role),
		},
	})
}

// Refresh godoc
// @Summary Refresh access token
// @Description Reads the refresh token cookie and returns a new access token.
// @Tags auth
// @Produce json
// @Success 200 {object} AuthResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	cookie, err := c.Cookie(middleware.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		return apperrors.ErrAuthenticationRequired
	}

	accessToken, err := h.authService.Refresh(c.Request().Context(), cookie.Value)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, AuthResponse{
		Success:     true,
		AccessToken: accessToken,
	})
}

// Logout godoc
// @Summary Log out
// @Description Clears the refresh token cookie.
// @Tags auth
// @Produce json
// @Success 200 {object} MessageResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	middleware.ClearRefreshCookie(c, h.secureCookie)
	return c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "logged out"})
}

// ChangePassword godoc
// @Summary Change own password
// @Tags auth
// @Accept json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "Passwords"
// @Success 204
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /me/password [put]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return apperrors.ErrAuthenticationRequired
	}

	var req ChangePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.authService.ChangePassword(c.Request().Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
