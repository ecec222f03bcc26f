package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ragctx/internal/apperr"
)

// errorEnvelope is the single error shape every endpoint returns (§6, §7):
// a stable code, a human message, and optional structured details.
type errorEnvelope struct {
	Code    apperr.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// statusForCode maps the closed error taxonomy onto the HTTP status table
// of §6 1:1.
func statusForCode(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeRateLimit:
		return http.StatusTooManyRequests
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeTimeout:
		return http.StatusGatewayTimeout
	case apperr.CodeUpstreamError:
		return http.StatusBadGateway
	case apperr.CodeUpstreamDisabled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the error envelope, logging a single error
// record (never the request body, which may carry decoded OCR text).
func (s *Server) writeError(c echo.Context, err error) error {
	code := apperr.CodeOf(err)
	status := statusForCode(code)
	var details map[string]any
	if d, ok := err.(interface{ Details() map[string]any }); ok {
		details = d.Details()
	}
	s.log.Error("request failed", map[string]any{
		"path":   c.Request().URL.Path,
		"method": c.Request().Method,
		"code":   string(code),
		"error":  err.Error(),
	})
	return c.JSON(status, errorEnvelope{Code: code, Message: err.Error(), Details: details})
}
