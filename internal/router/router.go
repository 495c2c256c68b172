package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/luli-tech/task-manager/internal/config"
	"github.com/luli-tech/task-manager/internal/handler"    // import the handlers that implement business logic
	"github.com/luli-tech/task-manager/internal/middleware" // import middleware for authentication and role enforcement
	"github.com/luli-tech/task-manager/internal/model"
	"github.com/luli-tech/task-manager/internal/service"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies
// the necessary middleware.  The credential-issuing endpoints live
// under /v1/auth behind the Redis token bucket (pass-through when rdb
// is nil); protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, tokens *service.TokenService, rdb *redis.Client) {
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	g := e.Group("/v1/auth", limiter)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token: the presented token is revoked and a
	// new pair returned in one atomic step.
	g.POST("/refresh", a.Refresh)
	// Logout does not require an access token; it accepts a JSON body
	// containing a `refresh_token` and revokes that token. 204 either
	// way so the response never reveals whether the token was live.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.Authenticate(tokens))
	auth.GET("/me", a.Me)
	auth.PATCH("/me", a.UpdateMe)

	// Also map POST /v1/logout for clients that keep a session going:
	// same handler, same body, no access token needed.
	e.POST("/v1/logout", a.Logout)
}

// RegisterTasks registers task CRUD endpoints under /v1/tasks.  All of
// them require a valid access token; ownership checks happen in the
// handlers.
func RegisterTasks(e *echo.Echo, t *handler.TaskHandler, tokens *service.TokenService) {
	g := e.Group("/v1/tasks")
	g.Use(middleware.Authenticate(tokens))
	g.POST("", t.Create)
	g.GET("", t.List)
	g.GET("/:id", t.Get)
	g.PATCH("/:id", t.Update)
	g.DELETE("/:id", t.Delete)

	// Per-user task statistics live under the profile prefix.
	me := e.Group("/v1/me")
	me.Use(middleware.Authenticate(tokens))
	me.GET("/stats", t.Stats)
}

// RegisterNotifications registers notification endpoints under
// /v1/notifications, including the live SSE stream.
func RegisterNotifications(e *echo.Echo, n *handler.NotificationHandler, tokens *service.TokenService) {
	g := e.Group("/v1/notifications")
	g.Use(middleware.Authenticate(tokens))
	g.GET("", n.List)
	g.GET("/stream", n.Stream)
	g.PATCH("/read-all", n.MarkAllRead)
	g.PATCH("/:id/read", n.MarkRead)
	g.DELETE("/:id", n.Delete)
	g.GET("/preferences", n.GetPreferences)
	g.PUT("/preferences", n.UpdatePreferences)
}

// RegisterAdmin registers the role-gated administration endpoints
// under /v1/admin.  A valid access token alone is not enough: the
// role claim must be admin, enforced by RequireRole with its distinct
// 403 response.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, tokens *service.TokenService) {
	g := e.Group("/v1/admin")
	g.Use(middleware.Authenticate(tokens))
	g.Use(middleware.RequireRole(model.RoleAdmin))
	g.GET("/users", a.ListUsers)
	g.PATCH("/users/:id/active", a.SetActive)
	g.PATCH("/users/:id/role", a.SetRole)
}
