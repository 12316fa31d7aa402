package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/iliyamo/campus-gate/internal/service"
)

// MsgStorageUnavailable is the only detail clients see for storage failures.
const MsgStorageUnavailable = "storage unavailable, please retry"

// ErrorHandler returns an echo.HTTPErrorHandler that renders ledger
// errors as {"error": ...} JSON bodies.  Validation failures carry an
// extra "fields" object keyed by JSON field name.  Infrastructure errors
// are logged in full and answered with a generic 500.
func ErrorHandler(logger echo.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code, body := errorResponse(err)
		if code == http.StatusInternalServerError {
			logger.Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		}
		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.Error(err)
		}
	}
}

func errorResponse(err error) (int, echo.Map) {
	var (
		vErr *service.ValidationError
		hErr *echo.HTTPError
		iErr *service.InfrastructureError
	)
	switch {
	case errors.As(err, &vErr):
		body := echo.Map{"error": "validation failed"}
		if len(vErr.Fields) > 0 {
			flds := make(map[string]string, len(vErr.Fields))
			for _, f := range vErr.Fields {
				flds[f.Field] = f.Message
			}
			body["fields"] = flds
		}
		return http.StatusBadRequest, body
	case errors.Is(err, service.ErrLobbyNotFound):
		return http.StatusNotFound, echo.Map{"error": "lobby not found"}
	case errors.As(err, &iErr):
		return http.StatusInternalServerError, echo.Map{"error": MsgStorageUnavailable}
	case errors.As(err, &hErr):
		if inner, ok := hErr.Internal.(*echo.HTTPError); ok {
			hErr = inner
		}
		msg, ok := hErr.Message.(string)
		if !ok {
			msg = http.StatusText(hErr.Code)
		}
		return hErr.Code, echo.Map{"error": msg}
	default:
		return http.StatusInternalServerError, echo.Map{"error": http.StatusText(http.StatusInternalServerError)}
	}
}
