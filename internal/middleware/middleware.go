package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TelegramIPCheck ensures webhook requests come from Telegram's
// published ranges (149.154.160.0/20 and 91.108.4.0/22). Loopback is
// allowed for local testing behind a tunnel.
func TelegramIPCheck() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !strings.HasPrefix(ip, "149.154.") &&
				!strings.HasPrefix(ip, "91.108.") &&
				ip != "127.0.0.1" &&
				ip != "::1" {
				return c.String(http.StatusForbidden, "Forbidden")
			}
			return next(c)
		}
	}
}
