package geoip

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newFakeAPI(t *testing.T, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLookupProtected(t *testing.T) {
	srv := newFakeAPI(t, `{"status":"success","country":"Germany","countryCode":"DE","city":"Falkenstein","isp":"Hetzner Online GmbH","query":"203.0.113.7"}`)
	svc := New("DE", "Hetzner", zap.NewNop()).WithBaseURL(srv.URL)

	result, err := svc.Lookup(context.Background(), "203.0.113.7")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !result.Protected {
		t.Error("expected protected for matching country and ISP")
	}
	if result.IP != "203.0.113.7" {
		t.Errorf("IP = %q", result.IP)
	}
	if result.Flag() != "🇩🇪" {
		t.Errorf("Flag = %q, want 🇩🇪", result.Flag())
	}
	if result.MaskedIP() != "203.0.xxx.xxx" {
		t.Errorf("MaskedIP = %q", result.MaskedIP())
	}
}

func TestLookupCountryMatchAloneIsNotProtected(t *testing.T) {
	srv := newFakeAPI(t, `{"status":"success","country":"Germany","countryCode":"DE","city":"Berlin","isp":"Deutsche Telekom AG","query":"203.0.113.8"}`)
	svc := New("DE", "Hetzner", zap.NewNop()).WithBaseURL(srv.URL)

	result, err := svc.Lookup(context.Background(), "203.0.113.8")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if result.Protected {
		t.Error("country match without ISP match must not count as protected")
	}
}

func TestLookupPrivateIP(t *testing.T) {
	// No server: private addresses must short-circuit before any HTTP call.
	svc := New("DE", "Hetzner", zap.NewNop()).WithBaseURL("http://127.0.0.1:1")

	for _, ip := range []string{"10.1.2.3", "192.168.0.5", "127.0.0.1", "not-an-ip"} {
		result, err := svc.Lookup(context.Background(), ip)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", ip, err)
		}
		if !result.Protected {
			t.Errorf("Lookup(%q) not protected", ip)
		}
	}
}

func TestLookupFailureStatus(t *testing.T) {
	srv := newFakeAPI(t, `{"status":"fail","message":"reserved range","query":"0.0.0.0"}`)
	svc := New("DE", "Hetzner", zap.NewNop()).WithBaseURL(srv.URL)

	if _, err := svc.Lookup(context.Background(), "8.8.8.8"); err == nil {
		t.Error("expected error for status=fail response")
	}
}

func TestFlagInvalidCode(t *testing.T) {
	r := &Result{CountryCode: "XXL"}
	if r.Flag() != "" {
		t.Errorf("Flag for invalid code = %q, want empty", r.Flag())
	}
}
