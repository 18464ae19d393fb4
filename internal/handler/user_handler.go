package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "lms/internal/errors"
	"lms/internal/middleware"
	"lms/internal/model"
	"lms/internal/service"
)

// UserHandler bundles HTTP handlers.
type UserHandler struct {
	svc service.UserService
}

// NewUserHandler creates a handler layer.
func NewUserHandler(svc service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// ChangeRoleRequest sets a user's role.
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=STUDENT TEACHER ADMIN"`
}

// AwardXPRequest adds experience points.
type AwardXPRequest struct {
	Amount int `json:"amount" validate:"required,min=1,max=10000"`
}

// UserResponse wraps a user.
type UserResponse struct {
	Success bool        `json:"success"`
	User    *model.User `json:"user"`
}

// UserListResponse wraps a list of users.
type UserListResponse struct {
	Success bool         `json:"success"`
	Users   []model.User `json:"users"`
}

// StatsResponse wraps aggregate statistics.
type StatsResponse struct {
	Success bool             `json:"success"`
	Stats   *model.UserStats `json:"stats"`
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid id")
	}
	return id, nil
}

// Me godoc
// @Summary Current user profile
// @Description Accepts a bearer access token or the refresh token cookie.
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /me [get]
func (h *UserHandler) Me(c echo.Context) error {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return apperrors.ErrAuthenticationRequired
	}
	user, err := h.svc.GetUser(c.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UserResponse{Success: true, User: user})
}

// ListUsers godoc
// @Summary List users
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserListResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /users [get]
func (h *UserHandler) ListUsers(c echo.Context) error {
	users, err := h.svc.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UserListResponse{Success: true, Users: users})
}

// ChangeRole godoc
// @Summary Change a user's role
// @Description Takes effect for the user's tokens at next login.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body ChangeRoleRequest true "New role"
// @Success 200 {object} UserResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{id}/role [patch]
func (h *UserHandler) ChangeRole(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ChangeRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.svc.ChangeRole(c.Request().Context(), id, model.Role(req.Role))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UserResponse{Success: true, User: user})
}

// AwardXP godoc
// @Summary Award experience points
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body AwardXPRequest true "Amount"
// @Success 200 {object} UserResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{id}/xp [post]
func (h *UserHandler) AwardXP(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req AwardXPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.svc.AwardXP(c.Request().Context(), id, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UserResponse{Success: true, User: user})
}

// Stats godoc
// @Summary Aggregate user statistics
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} StatsResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /admin/stats [get]
func (h *UserHandler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, StatsResponse{Success: true, Stats: stats})
}
