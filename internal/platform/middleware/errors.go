package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medbook/medbook/internal/platform/apperr"
)

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// httpCodes names statuses raised by echo itself or by middleware.
var httpCodes = map[int]string{
	http.StatusBadRequest:            "validation",
	http.StatusNotFound:              "not_found",
	http.StatusMethodNotAllowed:      "method_not_allowed",
	http.StatusRequestEntityTooLarge: "payload_too_large",
	http.StatusUnsupportedMediaType:  "unsupported_media_type",
	http.StatusTooManyRequests:       "rate_limited",
	http.StatusServiceUnavailable:    "unavailable",
	http.StatusGatewayTimeout:        "timeout",
}

// ErrorHandler renders domain errors through apperr.Classify and echo
// HTTP errors by status. Internal errors are logged and masked.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", requestID(c)).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func render(err error) (int, ErrorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil && apperr.Is(he.Internal) {
			return render(he.Internal)
		}
		code, ok := httpCodes[he.Code]
		if !ok {
			code = "internal"
			if he.Code < http.StatusInternalServerError {
				code = "error"
			}
		}
		msg := fmt.Sprint(he.Message)
		if he.Code >= http.StatusInternalServerError && he.Code != http.StatusServiceUnavailable && he.Code != http.StatusGatewayTimeout {
			msg = http.StatusText(he.Code)
		}
		return he.Code, ErrorBody{Error: code, Message: msg}
	}

	code, status := apperr.Classify(err)
	if status >= http.StatusInternalServerError {
		return status, ErrorBody{Error: code, Message: "internal server error"}
	}
	return status, ErrorBody{Error: code, Message: err.Error()}
}
