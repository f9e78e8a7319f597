package xui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Client is a single provisioned VPN identity within the panel inbound.
// The panel is the system of record; a Client is a point-in-time snapshot.
type Client struct {
	UUID       string
	Email      string
	TelegramID int64 // 0 when the panel entry carries no tgId
	SubID      string
	Flow       string
	Enabled    bool
	ExpiryTime int64 // epoch millis, 0 = never expires
	TotalGB    int64 // traffic limit in bytes (panel field name), 0 = unlimited

	// raw is the client object exactly as the panel returned it. Updates
	// re-serialize from raw so fields this code does not model survive
	// the round-trip.
	raw json.RawMessage
}

// Expired reports whether the client's deadline has passed.
func (c *Client) Expired() bool {
	if c.ExpiryTime == 0 {
		return false
	}
	return c.ExpiryTime < time.Now().UnixMilli()
}

func (c *Client) UnlimitedTraffic() bool { return c.TotalGB == 0 }

func (c *Client) UnlimitedExpiry() bool { return c.ExpiryTime == 0 }

// Traffic is a read-only usage snapshot for one client email.
type Traffic struct {
	Up         int64
	Down       int64
	ExpiryTime int64
}

func (t Traffic) UploadGB() float64   { return roundGB(t.Up) }
func (t Traffic) DownloadGB() float64 { return roundGB(t.Down) }
func (t Traffic) TotalGB() float64    { return t.UploadGB() + t.DownloadGB() }

// FormattedUpload renders the upload volume in GB, falling back to MB
// below one GB.
func (t Traffic) FormattedUpload() string { return formatVolume(t.Up) }

func (t Traffic) FormattedDownload() string { return formatVolume(t.Down) }

func roundGB(b int64) float64 {
	return math.Round(float64(b)/(1<<30)*100) / 100
}

func formatVolume(b int64) string {
	gb := float64(b) / (1 << 30)
	if gb >= 1 {
		return strconv.FormatFloat(math.Round(gb*100)/100, 'f', -1, 64) + " GB"
	}
	mb := math.Round(float64(b)/(1<<20)*100) / 100
	return strconv.FormatFloat(mb, 'f', -1, 64) + " MB"
}

// tgID tolerates the panel's inconsistent tgId encoding: older
// panel versions store a number, the panel UI and this bot write a
// string, and some entries have an empty string.
type tgID int64

func (t *tgID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = 0
		return nil
	}
	s := string(data)
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("tgId: %w", err)
		}
		s = strings.TrimSpace(unquoted)
	}
	if s == "" {
		*t = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some panels store a Telegram @username here. Not a client owner
		// this bot can correlate, so treat as unset.
		*t = 0
		return nil
	}
	*t = tgID(n)
	return nil
}

func (t tgID) MarshalJSON() ([]byte, error) {
	// Written as a string, matching what the panel UI does.
	return json.Marshal(strconv.FormatInt(int64(t), 10))
}

// wireClient mirrors one entry of the inbound settings "clients" array.
type wireClient struct {
	ID         string `json:"id"`
	Flow       string `json:"flow"`
	Email      string `json:"email"`
	TgID       tgID   `json:"tgId"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"`
	Enable     bool   `json:"enable"`
	SubID      string `json:"subId"`
	Reset      int    `json:"reset"`
}

func (w *wireClient) toClient(raw json.RawMessage) Client {
	return Client{
		UUID:       w.ID,
		Email:      w.Email,
		TelegramID: int64(w.TgID),
		SubID:      w.SubID,
		Flow:       w.Flow,
		Enabled:    w.Enable,
		ExpiryTime: w.ExpiryTime,
		TotalGB:    w.TotalGB,
		raw:        raw,
	}
}
