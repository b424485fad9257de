package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lvonguyen/cloudspy/internal/providers"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Detail string `json:"detail"`
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(kind providers.Kind) int {
	switch kind {
	case providers.KindValidation:
		return http.StatusBadRequest
	case providers.KindUpstreamAuth:
		return http.StatusForbidden
	case providers.KindUpstreamRateLimit:
		return http.StatusTooManyRequests
	case providers.KindUpstreamOther:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

// handleError is installed as echo's HTTPErrorHandler.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, detail := http.StatusInternalServerError, err.Error()

	var he *echo.HTTPError
	var pe *providers.Error
	switch {
	case errors.As(err, &he):
		status = he.Code
		detail = fmt.Sprint(he.Message)
	case errors.As(err, &pe):
		status = StatusFor(pe.Kind)
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, errorResponse{Detail: detail})
	}
	if err != nil {
		s.logger.Error("Failed to write error response", zap.Error(err))
	}
}
