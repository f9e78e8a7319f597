package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"vpnbot/internal/cache"
)

func newContext(e *echo.Echo, req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestTelegramIPCheck(t *testing.T) {
	e := echo.New()
	handler := TelegramIPCheck()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	tests := []struct {
		name       string
		remoteAddr string
		wantStatus int
	}{
		{"telegram dc range", "149.154.167.220:443", http.StatusOK},
		{"telegram second range", "91.108.6.1:443", http.StatusOK},
		{"loopback", "127.0.0.1:9999", http.StatusOK},
		{"outside range", "203.0.113.7:443", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/bot/webhook", nil)
			req.RemoteAddr = tt.remoteAddr
			c, rec := newContext(e, req)

			err := handler(c)
			status := rec.Code
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
		})
	}
}

func TestTelegramUpdateDedup(t *testing.T) {
	e := echo.New()
	store := cache.NewMemory()

	calls := 0
	handler := TelegramUpdateDedup(store, time.Minute)(func(c echo.Context) error {
		calls++
		return c.NoContent(http.StatusOK)
	})

	body := `{"update_id":100500,"message":{"text":"/start"}}`
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader(body))
		c, rec := newContext(e, req)
		if err := handler(c); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("delivery %d status = %d, want 200", i, rec.Code)
		}
	}
	if calls != 1 {
		t.Errorf("handler ran %d times for one update_id, want 1", calls)
	}
}

func TestTelegramUpdateDedupDistinctUpdates(t *testing.T) {
	e := echo.New()
	store := cache.NewMemory()

	calls := 0
	handler := TelegramUpdateDedup(store, time.Minute)(func(c echo.Context) error {
		calls++
		return c.NoContent(http.StatusOK)
	})

	for _, body := range []string{`{"update_id":1}`, `{"update_id":2}`} {
		req := httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader(body))
		c, _ := newContext(e, req)
		if err := handler(c); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 2 {
		t.Errorf("handler ran %d times for two updates, want 2", calls)
	}
}

func TestTelegramUpdateDedupUnparseableBody(t *testing.T) {
	e := echo.New()
	handler := TelegramUpdateDedup(cache.NewMemory(), time.Minute)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader("not json"))
	c, rec := newContext(e, req)
	if err := handler(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 pass-through", rec.Code)
	}
}
