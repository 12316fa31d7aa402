package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-gate/internal/middleware"
	"github.com/iliyamo/campus-gate/internal/model"
	"github.com/iliyamo/campus-gate/internal/service"
)

// StatusRoute is the cached lobby status path.  Mutations purge it.
const StatusRoute = "/lobby/status"

// Purger drops cached responses of a route.
type Purger interface {
	Purge(ctx context.Context, route string) error
}

// LobbyHandler exposes the occupancy ledger over HTTP.  Handlers only
// translate between JSON and service calls; errors are returned to the
// shared error handler, which picks the status code.
type LobbyHandler struct {
	Ledger      *service.Ledger
	StatusCache Purger // optional
}

// GetStatus returns every lobby with its current count.
func (h *LobbyHandler) GetStatus(c echo.Context) error {
	lobbies, err := h.Ledger.GetStatus(c.Request().Context())
	if err != nil {
		return err
	}
	if lobbies == nil {
		lobbies = []model.Lobby{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "lobbies": lobbies})
}

// CreateBatch records a volunteer-escorted group leaving a lobby.
func (h *LobbyHandler) CreateBatch(c echo.Context) error {
	var req service.BatchExitInput
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	if err := actorMatches(c, &req.UserID); err != nil {
		return err
	}
	batch, err := h.Ledger.CreateBatchExit(c.Request().Context(), req)
	if err != nil {
		return err
	}
	h.purgeStatus(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "batch": batch})
}

// Reset sets a lobby's count to zero.
func (h *LobbyHandler) Reset(c echo.Context) error {
	var req service.ResetInput
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	if err := actorMatches(c, &req.UserID); err != nil {
		return err
	}
	lobby, err := h.Ledger.ResetLobby(c.Request().Context(), req)
	if err != nil {
		return err
	}
	h.purgeStatus(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": service.ResetMessage(lobby.Name)})
}

// UpdateCount overwrites a lobby's count after a manual headcount.
func (h *LobbyHandler) UpdateCount(c echo.Context) error {
	var req service.UpdateCountInput
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	if err := actorMatches(c, &req.UserID); err != nil {
		return err
	}
	lobby, err := h.Ledger.UpdateCount(c.Request().Context(), req)
	if err != nil {
		return err
	}
	h.purgeStatus(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "lobby": lobby})
}

// GetBatchHistory lists batch exits newest first.  Query parameters:
// lobby_name (a lobby or "all", default all) and limit (optional).
func (h *LobbyHandler) GetBatchHistory(c echo.Context) error {
	q := service.HistoryQuery{LobbyName: c.QueryParam("lobby_name")}
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return service.NewValidationError(service.FieldError{Field: "limit", Message: "must be a whole number"})
		}
		q.Limit = n
	}
	batches, err := h.Ledger.GetBatchHistory(c.Request().Context(), q)
	if err != nil {
		return err
	}
	if batches == nil {
		batches = []model.BatchExit{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "batches": batches})
}

// Ready reports 200 when the store answers a ping and 503 otherwise.
func (h *LobbyHandler) Ready(c echo.Context) error {
	if err := h.Ledger.Ping(c.Request().Context()); err != nil {
		c.Logger().Warnf("readiness: %v", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
}

func (h *LobbyHandler) purgeStatus(c echo.Context) {
	if h.StatusCache == nil {
		return
	}
	if err := h.StatusCache.Purge(context.WithoutCancel(c.Request().Context()), StatusRoute); err != nil {
		c.Logger().Warnf("purge %s: %v", StatusRoute, err)
	}
}

var (
	errInvalidBody   = echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	errActorMismatch = echo.NewHTTPError(http.StatusForbidden, "user_id does not match the authenticated user")
)

// actorMatches ties the request's user_id to the bearer token when auth
// is enabled.  An empty user_id takes the token subject.
func actorMatches(c echo.Context, userID *string) error {
	sub := middleware.AuthenticatedUserID(c)
	if sub == "" {
		return nil
	}
	id := strings.TrimSpace(*userID)
	if id == "" {
		*userID = sub
		return nil
	}
	if id != sub {
		return errActorMismatch
	}
	return nil
}
