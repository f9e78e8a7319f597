package xui

import (
	"encoding/json"
	"testing"
)

func TestTgIDUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"number", `{"tgId":123456789}`, 123456789},
		{"quoted number", `{"tgId":"123456789"}`, 123456789},
		{"empty string", `{"tgId":""}`, 0},
		{"null", `{"tgId":null}`, 0},
		{"missing", `{}`, 0},
		{"username", `{"tgId":"@someuser"}`, 0},
		{"padded string", `{"tgId":" 42 "}`, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wc wireClient
			if err := json.Unmarshal([]byte(tt.in), &wc); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.in, err)
			}
			if int64(wc.TgID) != tt.want {
				t.Errorf("tgId from %s = %d, want %d", tt.in, wc.TgID, tt.want)
			}
		})
	}
}

func TestTgIDMarshalAsString(t *testing.T) {
	out, err := json.Marshal(tgID(555))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `"555"` {
		t.Errorf("marshal = %s, want \"555\"", out)
	}
}

func TestTrafficFormatting(t *testing.T) {
	traffic := Traffic{Up: 512 << 20, Down: 5 << 30}

	if got := traffic.FormattedUpload(); got != "512 MB" {
		t.Errorf("FormattedUpload = %q, want 512 MB", got)
	}
	if got := traffic.FormattedDownload(); got != "5 GB" {
		t.Errorf("FormattedDownload = %q, want 5 GB", got)
	}
	if got := traffic.TotalGB(); got != 5.5 {
		t.Errorf("TotalGB = %v, want 5.5", got)
	}
}

func TestClientExpiry(t *testing.T) {
	neverExpires := Client{ExpiryTime: 0}
	if neverExpires.Expired() {
		t.Error("ExpiryTime=0 reported as expired")
	}
	if !neverExpires.UnlimitedExpiry() {
		t.Error("ExpiryTime=0 not reported as unlimited")
	}

	past := Client{ExpiryTime: 1}
	if !past.Expired() {
		t.Error("past ExpiryTime not reported as expired")
	}
}
