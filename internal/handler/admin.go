package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/luli-tech/task-manager/internal/model"
	"github.com/luli-tech/task-manager/internal/repository"
)

// AdminHandler exposes the role-gated user administration surface.
// Routes using it sit behind RequireRole(model.RoleAdmin).
type AdminHandler struct {
	Users *repository.UserRepo
}

func NewAdminHandler(u *repository.UserRepo) *AdminHandler { return &AdminHandler{Users: u} }

type adminUserResp struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type setActiveReq struct {
	Active bool `json:"active"`
}

type setRoleReq struct {
	Role string `json:"role"`
}

// ListUsers returns all user accounts.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	resp := make([]adminUserResp, 0, len(users))
	for _, u := range users {
		resp = append(resp, adminUserResp{
			ID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.IsActive, CreatedAt: u.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// SetActive toggles an account's active flag. Users are never hard
// deleted; deactivation refuses future logins and token rotations.
func (h *AdminHandler) SetActive(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req setActiveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.SetActive(ctx, id, req.Active); err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// SetRole promotes or demotes an account.
func (h *AdminHandler) SetRole(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req setRoleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Role != model.RoleUser && req.Role != model.RoleAdmin {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.SetRole(ctx, id, req.Role); err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
