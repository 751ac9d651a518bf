package operation

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

// maxBodyBytes bounds an invocation body.
const maxBodyBytes = 1 << 20

// HTTPHandler exposes the registry over HTTP.
type HTTPHandler struct {
	reg *Registry
}

func NewHTTPHandler(reg *Registry) *HTTPHandler {
	return &HTTPHandler{reg: reg}
}

func (h *HTTPHandler) RegisterRoutes(api *echo.Group, guards ...echo.MiddlewareFunc) {
	g := api.Group("/operations", guards...)
	g.GET("", h.List)
	g.POST("/:name", h.Invoke)
}

func (h *HTTPHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.reg.List())
}

// Invoke decodes a JSON object body into Args and runs the operation. The
// response is always a Result; its status follows the error kind.
func (h *HTTPHandler) Invoke(c echo.Context) error {
	name := c.Param("name")
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(body) > maxBodyBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, failure(apperr.Validation("request body too large")))
	}

	args := Args{}
	if strings.TrimSpace(string(body)) != "" {
		if err := json.Unmarshal(body, &args); err != nil {
			return c.JSON(http.StatusBadRequest, failure(apperr.Validation("body must be a JSON object")))
		}
	}

	res := h.reg.Invoke(c.Request().Context(), name, args)
	status := http.StatusOK
	if !res.Success {
		status = apperr.HTTPStatus(res.Error.Kind)
	}
	return c.JSON(status, res)
}
