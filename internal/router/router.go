package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-gate/internal/handler"
	"github.com/iliyamo/campus-gate/internal/middleware"
)

// Options carries the middleware shared by the lobby routes.  Nil
// middleware functions are skipped.
type Options struct {
	StatusCache echo.MiddlewareFunc // applied to GET /lobby/status
	RateLimit   echo.MiddlewareFunc // applied to mutations
	JWTSecret   string              // enables bearer auth on mutations when set
}

// MutationRoles may change lobby counts when auth is enabled.
var MutationRoles = []string{"GUARD", "CSO", "ADMIN"}

// RegisterRoutes registers the health endpoints.  /healthz only says the
// process is up; /readyz also pings the store.
func RegisterRoutes(e *echo.Echo, h *handler.LobbyHandler) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", h.Ready)
}

// RegisterLobby registers the ledger API under /lobby.  Reads are open;
// mutations go through auth (when configured) and the rate limiter.
func RegisterLobby(e *echo.Echo, h *handler.LobbyHandler, opts Options) {
	g := e.Group("/lobby")

	status := []echo.MiddlewareFunc{}
	if opts.StatusCache != nil {
		status = append(status, opts.StatusCache)
	}
	g.GET("/status", h.GetStatus, status...)
	g.GET("/batch-history", h.GetBatchHistory)

	// Auth runs before the limiter so the bucket is keyed by user.
	var mw []echo.MiddlewareFunc
	if opts.JWTSecret != "" {
		mw = append(mw, middleware.JWTAuth(opts.JWTSecret), middleware.RequireRole(MutationRoles...))
	}
	if opts.RateLimit != nil {
		mw = append(mw, opts.RateLimit)
	}
	g.POST("/create-batch", h.CreateBatch, mw...)
	g.POST("/reset", h.Reset, mw...)
	g.POST("/update-count", h.UpdateCount, mw...)
}
