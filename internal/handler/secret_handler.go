package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "lms/internal/errors"
	"lms/internal/model"
	"lms/internal/service"
)

// SecretHandler exposes secret administration. Values are write-only over
// HTTP: no endpoint returns a decrypted value.
type SecretHandler struct {
	svc service.SecretService
}

// NewSecretHandler creates a secret handler.
func NewSecretHandler(svc service.SecretService) *SecretHandler {
	return &SecretHandler{svc: svc}
}

// PutSecretRequest sets a secret value.
type PutSecretRequest struct {
	Value       string `json:"value" validate:"required"`
	Environment string `json:"environment,omitempty" validate:"omitempty,max=64"`
}

// SecretListResponse wraps secret metadata.
type SecretListResponse struct {
	Success bool                   `json:"success"`
	Secrets []model.SecretMetadata `json:"secrets"`
}

// SecretResponse wraps one secret's metadata.
type SecretResponse struct {
	Success bool                 `json:"success"`
	Secret  model.SecretMetadata `json:"secret"`
}

// ListSecrets godoc
// @Summary List secret metadata
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param env query string false "Environment; all when empty"
// @Success 200 {object} SecretListResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /admin/secrets [get]
func (h *SecretHandler) ListSecrets(c echo.Context) error {
	list, err := h.svc.ListSecrets(c.Request().Context(), c.QueryParam("env"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SecretListResponse{Success: true, Secrets: list})
}

// GetSecret godoc
// @Summary Secret metadata by name
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param name path string true "Secret name"
// @Param env query string true "Environment"
// @Success 200 {object} SecretResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /admin/secrets/{name} [get]
func (h *SecretHandler) GetSecret(c echo.Context) error {
	env := c.QueryParam("env")
	if env == "" {
		return apperrors.Validation("env query parameter is required")
	}
	list, err := h.svc.ListSecrets(c.Request().Context(), env)
	if err != nil {
		return err
	}
	name := c.Param("name")
	for _, m := range list {
		if m.Name == name {
			return c.JSON(http.StatusOK, SecretResponse{Success: true, Secret: m})
		}
	}
	return apperrors.ErrSecretNotFound
}

// PutSecret godoc
// @Summary Create or rotate a secret
// @Tags admin
// @Accept json
// @Security BearerAuth
// @Param name path string true "Secret name"
// @Param request body PutSecretRequest true "Value"
// @Success 204
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /admin/secrets/{name} [put]
func (h *SecretHandler) PutSecret(c echo.Context) error {
	var req PutSecretRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.svc.SetSecret(c.Request().Context(), c.Param("name"), req.Value, req.Environment); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteSecret godoc
// @Summary Delete a secret
// @Tags admin
// @Security BearerAuth
// @Param name path string true "Secret name"
// @Param env query string false "Environment"
// @Success 204
// @Failure 403 {object} errors.ErrorResponse
// @Router /admin/secrets/{name} [delete]
func (h *SecretHandler) DeleteSecret(c echo.Context) error {
	if err := h.svc.DeleteSecret(c.Request().Context(), c.Param("name"), c.QueryParam("env")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
