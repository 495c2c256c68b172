package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luli-tech/task-manager/internal/middleware"
	"github.com/luli-tech/task-manager/internal/model"
	"github.com/luli-tech/task-manager/internal/service"
)

// stubValidator accepts exactly one token string and returns a fixed
// identity for it.
type stubValidator struct {
	token string
	id    service.Identity
}

func (v stubValidator) ValidateAccess(token string) (service.Identity, error) {
	if token != v.token {
		return service.Identity{}, errors.New("invalid credential")
	}
	return v.id, nil
}

func invoke(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, echo.Context, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	h := mw(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return rec, c, reached
}

func TestAuthenticateSetsIdentity(t *testing.T) {
	v := stubValidator{token: "good-token", id: service.Identity{UserID: 42, Role: model.RoleAdmin}}

	rec, c, reached := invoke(t, middleware.Authenticate(v), "Bearer good-token")

	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(42), c.Get("user_id"))
	assert.Equal(t, model.RoleAdmin, c.Get("role"))
}

func TestAuthenticateRejects(t *testing.T) {
	v := stubValidator{token: "good-token", id: service.Identity{UserID: 42, Role: model.RoleUser}}
	mw := middleware.Authenticate(v)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic Zm9vOmJhcg=="},
		{"bad token", "Bearer forged-token"},
		{"bare bearer", "Bearer "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, c, reached := invoke(t, mw, tc.header)

			assert.False(t, reached)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"invalid credential"}`, rec.Body.String())
			assert.Nil(t, c.Get("user_id"))
		})
	}
}

func TestRequireRoleAllowsListedRole(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/users", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("role", model.RoleAdmin)

	reached := false
	h := middleware.RequireRole(model.RoleAdmin)(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))

	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRoleForbidsOthers(t *testing.T) {
	cases := []struct {
		name string
		role interface{}
	}{
		{"wrong role", model.RoleUser},
		{"role unset", nil},
		{"role wrong type", 17},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPut, "/v1/admin/users/3/role", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if tc.role != nil {
				c.Set("role", tc.role)
			}

			reached := false
			h := middleware.RequireRole(model.RoleAdmin)(func(c echo.Context) error {
				reached = true
				return c.NoContent(http.StatusOK)
			})
			require.NoError(t, h(c))

			assert.False(t, reached)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())
		})
	}
}
