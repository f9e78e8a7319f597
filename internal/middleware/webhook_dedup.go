package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"vpnbot/internal/cache"
)

// TelegramUpdateDedup drops duplicate webhook deliveries by update_id.
// Telegram redelivers an update until it sees a 2xx, so a slow handler
// produces duplicates; the first delivery wins via SetNX.
func TelegramUpdateDedup(store cache.Store, ttl time.Duration) echo.MiddlewareFunc {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if store == nil || req.Body == nil {
				return next(c)
			}

			rawBody, err := io.ReadAll(req.Body)
			if err != nil {
				return next(c)
			}
			req.Body = io.NopCloser(bytes.NewBuffer(rawBody))
			if len(rawBody) == 0 {
				return next(c)
			}

			var payload struct {
				UpdateID int64 `json:"update_id"`
			}
			if err := json.Unmarshal(rawBody, &payload); err != nil || payload.UpdateID == 0 {
				return next(c)
			}

			key := "tg:update:" + strconv.FormatInt(payload.UpdateID, 10)
			if !store.SetNX(req.Context(), key, "1", ttl) {
				// Duplicate. Telegram only needs a 2xx to stop retrying.
				return c.NoContent(http.StatusOK)
			}

			return next(c)
		}
	}
}
