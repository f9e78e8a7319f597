package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnbot/internal/cache"
	"vpnbot/internal/geoip"
	"vpnbot/internal/pkg/utils"
)

// Lookup results live just long enough for the Telegram deep-link
// round trip back into the bot.
const ipCheckResultTTL = 60 * time.Second

// IPCheckHandler serves the browser side of the protection check. The
// bot sends users here, we resolve their real IP and geo data, stash
// the result, and bounce them back into the chat via a deep link.
type IPCheckHandler struct {
	geo         *geoip.Service
	store       cache.Store
	botUsername string
	logger      *zap.Logger
}

func NewIPCheckHandler(geo *geoip.Service, store cache.Store, botUsername string, logger *zap.Logger) *IPCheckHandler {
	return &IPCheckHandler{
		geo:         geo,
		store:       store,
		botUsername: botUsername,
		logger:      logger,
	}
}

func (h *IPCheckHandler) Handle(c echo.Context) error {
	uid := c.QueryParam("uid")
	if uid == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "uid is required"})
	}
	if _, err := strconv.ParseInt(uid, 10, 64); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "uid must be numeric"})
	}

	ip := clientIP(c)
	token := utils.RandomHex(4)

	result, err := h.geo.Lookup(c.Request().Context(), ip)
	if err != nil {
		h.logger.Error("ip lookup failed",
			zap.String("ip", ip),
			zap.Error(err))
		// The bot shows the expired/error message on a cache miss, so
		// redirect with a token nothing was stored under.
		token = "error"
	} else {
		payload, err := json.Marshal(result)
		if err == nil {
			key := fmt.Sprintf("ipcheck:%s:%s", uid, token)
			h.store.Set(c.Request().Context(), key, string(payload), ipCheckResultTTL)
		}
	}

	deepLink := fmt.Sprintf("https://t.me/%s?start=ipcheck_%s_%s", h.botUsername, uid, token)
	return c.Redirect(http.StatusFound, deepLink)
}

// clientIP resolves the visitor's address behind Cloudflare and
// reverse proxies.
func clientIP(c echo.Context) string {
	if ip := c.Request().Header.Get("CF-Connecting-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	if fwd := c.Request().Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := c.Request().Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	return c.RealIP()
}
