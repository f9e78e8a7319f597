package router

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"vpnbot/internal/cache"
	"vpnbot/internal/geoip"
	"vpnbot/internal/handler"
	"vpnbot/internal/middleware"
)

// Deduplicated webhook updates are remembered for this long.
const updateDedupTTL = 10 * time.Minute

// Setup configures all routes for the Echo server.
func Setup(
	e *echo.Echo,
	geo *geoip.Service,
	store cache.Store,
	botUsername string,
	webhookHandler http.Handler,
	logger *zap.Logger,
) {
	e.Use(echomw.Recover())

	ipCheckHandler := handler.NewIPCheckHandler(geo, store, botUsername, logger)
	vpnLinkHandler := handler.NewVPNLinkHandler()

	e.GET("/check-ip", ipCheckHandler.Handle)
	e.GET("/vpn-link", vpnLinkHandler.Handle)

	// Telegram webhook (protected by IP check + deduplication)
	if webhookHandler != nil {
		webhookGroup := e.Group("/bot")
		webhookGroup.Use(middleware.TelegramIPCheck())
		webhookGroup.Use(middleware.TelegramUpdateDedup(store, updateDedupTTL))
		webhookGroup.POST("/webhook", echo.WrapHandler(webhookHandler))
	} else {
		logger.Info("Telegram webhook routes disabled (bot update mode is polling)")
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "vpnbot",
			"status":  "ok",
		})
	})
}
