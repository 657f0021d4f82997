package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders hardens JSON responses. Appointment payloads carry patient
// contact details, so nothing is cached. HSTS is only sent when hsts is set,
// since local and staging servers usually run without TLS.
func SecurityHeaders(hsts bool) echo.MiddlewareFunc {
	static := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
	}
	if hsts {
		static["Strict-Transport-Security"] = "max-age=31536000; includeSubDomains"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for k, v := range static {
				h.Set(k, v)
			}
			return next(c)
		}
	}
}
