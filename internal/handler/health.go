package handler // handler contains the HTTP handlers of the lobby service

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is a liveness endpoint used by load balancers and monitoring
// systems.  It does not touch the store; see LobbyHandler.Ready for that.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
