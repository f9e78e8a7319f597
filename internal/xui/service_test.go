package xui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"vpnbot/internal/cache"
)

const testStreamSettings = `{"network":"tcp","security":"reality","realitySettings":{"serverNames":["cdn.example.com"],"shortIds":["ab12cd34"],"settings":{"publicKey":"test-pub-key","fingerprint":"chrome","spiderX":"/"}}}`

// fakePanel emulates the 3x-ui HTTP surface: form login issuing the
// session cookie, and the inbound endpoints guarded by it.
type fakePanel struct {
	mu         sync.Mutex
	srv        *httptest.Server
	password   string
	tokens     map[string]bool
	clients    []map[string]any
	loginCalls int
	addCalls   int
	// serveLoginPage makes unauthenticated API calls answer 200 with an
	// HTML body instead of 401, like a panel with a login redirect.
	serveLoginPage bool

	tokenSeq int
}

func newFakePanel(t *testing.T) *fakePanel {
	t.Helper()
	fp := &fakePanel{
		password: "secret",
		tokens:   map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", fp.handleLogin)
	mux.HandleFunc("/panel/api/inbounds/get/", fp.authed(fp.handleGetInbound))
	mux.HandleFunc("/panel/api/inbounds/addClient", fp.authed(fp.handleAddClient))
	mux.HandleFunc("/panel/api/inbounds/updateClient/", fp.authed(fp.handleUpdateClient))
	mux.HandleFunc("/panel/api/inbounds/getClientTraffics/", fp.authed(fp.handleTraffics))

	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

func (fp *fakePanel) handleLogin(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.loginCalls++

	if err := r.ParseForm(); err != nil || r.PostForm.Get("password") != fp.password {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":false,"msg":"Invalid username or password"}`)
		return
	}

	fp.tokenSeq++
	token := fmt.Sprintf("token-%d", fp.tokenSeq)
	fp.tokens[token] = true
	http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: token, Path: "/"})
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"success":true,"msg":"Login Successfully"}`)
}

func (fp *fakePanel) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fp.mu.Lock()
		c, err := r.Cookie("3x-ui")
		valid := err == nil && fp.tokens[c.Value]
		loginPage := fp.serveLoginPage
		fp.mu.Unlock()

		if !valid {
			if loginPage {
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprint(w, "<html><body>login required</body></html>")
			} else {
				w.WriteHeader(http.StatusUnauthorized)
			}
			return
		}
		next(w, r)
	}
}

func (fp *fakePanel) settingsJSON() string {
	raw, _ := json.Marshal(map[string]any{"clients": fp.clients})
	return string(raw)
}

func (fp *fakePanel) handleGetInbound(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	obj := map[string]any{
		"id":             1,
		"port":           443,
		"protocol":       "vless",
		"settings":       fp.settingsJSON(),
		"streamSettings": testStreamSettings,
	}
	writeJSON(w, map[string]any{"success": true, "msg": "", "obj": obj})
}

func (fp *fakePanel) handleAddClient(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.addCalls++

	var payload struct {
		ID       int    `json:"id"`
		Settings string `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, map[string]any{"success": false, "msg": "bad payload"})
		return
	}
	var settings struct {
		Clients []map[string]any `json:"clients"`
	}
	if err := json.Unmarshal([]byte(payload.Settings), &settings); err != nil {
		writeJSON(w, map[string]any{"success": false, "msg": "settings is not valid json"})
		return
	}
	fp.clients = append(fp.clients, settings.Clients...)
	writeJSON(w, map[string]any{"success": true, "msg": "Client added"})
}

func (fp *fakePanel) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	uuid := strings.TrimPrefix(r.URL.Path, "/panel/api/inbounds/updateClient/")
	var payload struct {
		ID       int    `json:"id"`
		Settings string `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, map[string]any{"success": false, "msg": "bad payload"})
		return
	}
	var settings struct {
		Clients []map[string]any `json:"clients"`
	}
	dec := json.NewDecoder(strings.NewReader(payload.Settings))
	dec.UseNumber() // the panel stores settings verbatim, do not mangle int64 fields
	if err := dec.Decode(&settings); err != nil || len(settings.Clients) != 1 {
		writeJSON(w, map[string]any{"success": false, "msg": "settings must hold one client"})
		return
	}
	for i, c := range fp.clients {
		if c["id"] == uuid {
			fp.clients[i] = settings.Clients[0]
			writeJSON(w, map[string]any{"success": true, "msg": "Client updated"})
			return
		}
	}
	writeJSON(w, map[string]any{"success": false, "msg": "client not found"})
}

func (fp *fakePanel) handleTraffics(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	email := strings.TrimPrefix(r.URL.Path, "/panel/api/inbounds/getClientTraffics/")
	for _, c := range fp.clients {
		if c["email"] == email {
			writeJSON(w, map[string]any{"success": true, "obj": map[string]any{
				"up": 3 << 30, "down": 10 << 30, "expiryTime": 0,
			}})
			return
		}
	}
	writeJSON(w, map[string]any{"success": true, "obj": nil})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestService(t *testing.T, fp *fakePanel) *Service {
	t.Helper()
	sessions := NewSessionCache(cache.NewMemory(), time.Hour)
	transport := NewTransport(fp.srv.URL, "admin", fp.password, sessions, zap.NewNop())
	return NewService(transport, Options{
		InboundID:      1,
		DeviceLimit:    2,
		TrafficLimitGB: 0,
		ServerAddress:  "vpn.example.com",
	}, zap.NewNop())
}

func TestCreateThenFind(t *testing.T) {
	fp := newFakePanel(t)
	svc := newTestService(t, fp)
	ctx := context.Background()

	created, err := svc.Create(ctx, 111, "Alice", "Smith")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(created.Email, "Alice Smith-") {
		t.Errorf("email = %q, want Alice Smith-<uuid prefix>", created.Email)
	}
	if created.SubID == "" {
		t.Error("SubID is empty")
	}

	found := svc.FindByTelegramID(ctx, 111)
	if found == nil {
		t.Fatal("FindByTelegramID returned nil after Create")
	}
	if found.UUID != created.UUID {
		t.Errorf("found UUID = %q, want %q", found.UUID, created.UUID)
	}
	if found.TelegramID != 111 {
		t.Errorf("found TelegramID = %d, want 111", found.TelegramID)
	}
}

func TestGetOrCreateReusesExistingClient(t *testing.T) {
	fp := newFakePanel(t)
	svc := newTestService(t, fp)
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, 222, "Bob", "")
	if err != nil {
		t.Fatalf("first GetOrCreate: %v", err)
	}
	second, err := svc.GetOrCreate(ctx, 222, "Bob", "")
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if first.UUID != second.UUID {
		t.Errorf("GetOrCreate provisioned twice: %q vs %q", first.UUID, second.UUID)
	}
	if fp.addCalls != 1 {
		t.Errorf("addClient calls = %d, want 1", fp.addCalls)
	}
}

func TestRenamePreservesUnmodeledFields(t *testing.T) {
	fp := newFakePanel(t)
	fp.clients = []map[string]any{{
		"id":         "aaaa1111-2222-3333-4444-555566667777",
		"email":      "tg_999",
		"tgId":       999, // older panels store a number here
		"flow":       "xtls-rprx-vision",
		"enable":     true,
		"totalGB":    json.Number("107374182400"),
		"expiryTime": 0,
		"subId":      "subsubsubsub1234",
		"comment":    "keep me",
	}}
	svc := newTestService(t, fp)

	if err := svc.Rename(context.Background(), "tg_999", "Carol-aaaa1111"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	got := fp.clients[0]
	if got["email"] != "Carol-aaaa1111" {
		t.Errorf("email = %v, want Carol-aaaa1111", got["email"])
	}
	if got["comment"] != "keep me" {
		t.Errorf("unmodeled field dropped: comment = %v", got["comment"])
	}
	if fmt.Sprint(got["totalGB"]) != "107374182400" {
		t.Errorf("totalGB mangled: %v", got["totalGB"])
	}
	if got["subId"] != "subsubsubsub1234" {
		t.Errorf("subId changed: %v", got["subId"])
	}
}

func TestRenameUnknownClient(t *testing.T) {
	fp := newFakePanel(t)
	svc := newTestService(t, fp)

	err := svc.Rename(context.Background(), "nobody", "new-name")
	if !errors.Is(err, ErrClientNotFound) {
		t.Errorf("err = %v, want ErrClientNotFound", err)
	}
}

func TestAllClientsDegradesToEmptyOnOutage(t *testing.T) {
	fp := newFakePanel(t)
	svc := newTestService(t, fp)
	fp.srv.Close()

	clients := svc.AllClients(context.Background())
	if len(clients) != 0 {
		t.Errorf("AllClients during outage = %d clients, want 0", len(clients))
	}
}

func TestTrafficMissingClientIsZeroed(t *testing.T) {
	fp := newFakePanel(t)
	svc := newTestService(t, fp)

	traffic, err := svc.Traffic(context.Background(), "ghost@nowhere")
	if err != nil {
		t.Fatalf("Traffic: %v", err)
	}
	if traffic.Up != 0 || traffic.Down != 0 || traffic.ExpiryTime != 0 {
		t.Errorf("traffic = %+v, want zero value", traffic)
	}
}

func TestTrafficKnownClient(t *testing.T) {
	fp := newFakePanel(t)
	fp.clients = []map[string]any{{"id": "x", "email": "dave-12ab34cd"}}
	svc := newTestService(t, fp)

	traffic, err := svc.Traffic(context.Background(), "dave-12ab34cd")
	if err != nil {
		t.Fatalf("Traffic: %v", err)
	}
	if traffic.Up != 3<<30 || traffic.Down != 10<<30 {
		t.Errorf("traffic = %+v, want up=3GiB down=10GiB", traffic)
	}
	if traffic.FormattedDownload() != "10 GB" {
		t.Errorf("FormattedDownload = %q, want 10 GB", traffic.FormattedDownload())
	}
}

func TestLoginFailureIsAuthenticationError(t *testing.T) {
	fp := newFakePanel(t)
	svc := newTestService(t, fp)
	// Panel credentials rotated after the bot was configured.
	fp.password = "changed-underneath-us"

	_, err := svc.Create(context.Background(), 333, "Eve", "")
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
	if fp.addCalls != 0 {
		t.Errorf("addClient was attempted %d times after failed login", fp.addCalls)
	}
}

func TestStaleSessionRetriesAfterRelogin(t *testing.T) {
	for _, loginPage := range []bool{false, true} {
		name := "status401"
		if loginPage {
			name = "htmlLoginPage"
		}
		t.Run(name, func(t *testing.T) {
			fp := newFakePanel(t)
			fp.serveLoginPage = loginPage
			fp.clients = []map[string]any{{"id": "u1", "email": "frank-deadbeef", "tgId": "444", "enable": true}}

			sessions := NewSessionCache(cache.NewMemory(), time.Hour)
			transport := NewTransport(fp.srv.URL, "admin", fp.password, sessions, zap.NewNop())
			svc := NewService(transport, Options{InboundID: 1}, zap.NewNop())

			// A cookie the panel no longer recognizes, e.g. after a restart.
			sessions.Put(context.Background(), fp.srv.URL, "admin", "stale-token")

			clients := svc.AllClients(context.Background())
			if len(clients) != 1 {
				t.Fatalf("AllClients = %d clients, want 1", len(clients))
			}
			if clients[0].TelegramID != 444 {
				t.Errorf("TelegramID = %d, want 444", clients[0].TelegramID)
			}
			if fp.loginCalls != 1 {
				t.Errorf("login calls = %d, want 1 re-login", fp.loginCalls)
			}
		})
	}
}

func TestVlessLink(t *testing.T) {
	fp := newFakePanel(t)
	svc := newTestService(t, fp)

	client := &Client{
		UUID:  "aaaa1111-2222-3333-4444-555566667777",
		Email: "grace-aaaa1111",
	}
	link, err := svc.VlessLink(context.Background(), client)
	if err != nil {
		t.Fatalf("VlessLink: %v", err)
	}

	wantPrefix := "vless://aaaa1111-2222-3333-4444-555566667777@vpn.example.com:443?"
	if !strings.HasPrefix(link, wantPrefix) {
		t.Errorf("link = %q, want prefix %q", link, wantPrefix)
	}
	for _, fragment := range []string{
		"security=reality",
		"sni=cdn.example.com",
		"pbk=test-pub-key",
		"sid=ab12cd34",
		"fp=chrome",
		"flow=xtls-rprx-vision",
		"#grace-aaaa1111",
	} {
		if !strings.Contains(link, fragment) {
			t.Errorf("link %q missing %q", link, fragment)
		}
	}
}
