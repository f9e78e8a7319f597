package xui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"vpnbot/internal/pkg/httpclient"
)

// Name of the session cookie the panel issues on login.
const sessionCookieName = "3x-ui"

const (
	apiTimeout   = 15 * time.Second
	loginTimeout = 10 * time.Second
)

// apiResponse is the envelope every panel endpoint answers with. Obj is
// kept raw; each operation decodes the shape it expects.
type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// Transport performs authenticated HTTP calls against the panel. It owns
// the login handshake: on a session-cache miss (or a rejected session) it
// logs in, caches the cookie and retries the call once.
type Transport struct {
	baseURL  string
	username string
	password string
	sessions *SessionCache
	api      *httpclient.Client
	login    *httpclient.Client
	logger   *zap.Logger
}

func NewTransport(baseURL, username, password string, sessions *SessionCache, logger *zap.Logger) *Transport {
	return &Transport{
		baseURL:  baseURL,
		username: username,
		password: password,
		sessions: sessions,
		api:      httpclient.New().WithTimeout(apiTimeout).WithHeader("Accept", "application/json"),
		login:    httpclient.New().WithTimeout(loginTimeout),
		logger:   logger,
	}
}

// Host returns the hostname portion of the panel base URL.
func (t *Transport) Host() string {
	u, err := url.Parse(t.baseURL)
	if err != nil || u.Hostname() == "" {
		return t.baseURL
	}
	return u.Hostname()
}

// request issues one authenticated call. The returned response may carry
// Success=false (remote rejection); errors are reserved for connection
// and authentication failures plus undecodable bodies.
func (t *Transport) request(ctx context.Context, method, endpoint string, payload any) (*apiResponse, error) {
	token, ok := t.sessions.Get(ctx, t.baseURL, t.username)
	if !ok {
		var err error
		token, err = t.authenticate(ctx)
		if err != nil {
			return nil, err
		}
	}

	resp, err := t.do(ctx, method, endpoint, payload, token)
	if err != nil {
		return nil, err
	}

	if sessionRejected(resp) {
		// Cookie went stale before its TTL (panel restart, manual logout).
		// One re-login, one retry.
		t.sessions.Invalidate(ctx, t.baseURL, t.username)
		token, err = t.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = t.do(ctx, method, endpoint, payload, token)
		if err != nil {
			return nil, err
		}
		if sessionRejected(resp) {
			return nil, fmt.Errorf("%s: session rejected after re-login: %w", endpoint, ErrAuthentication)
		}
	}

	return t.decode(endpoint, resp)
}

func (t *Transport) do(ctx context.Context, method, endpoint string, payload any, token string) (*resty.Response, error) {
	req := t.api.Request().
		SetContext(ctx).
		SetHeader("Cookie", sessionCookieName+"="+token)

	var resp *resty.Response
	var err error
	if method == http.MethodPost {
		if payload != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(payload)
		}
		resp, err = req.Post(t.baseURL + "/" + endpoint)
	} else {
		resp, err = req.Get(t.baseURL + "/" + endpoint)
	}
	if err != nil {
		t.logger.Error("xui: API request failed",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w: %v", method, endpoint, ErrConnection, err)
	}
	return resp, nil
}

func (t *Transport) decode(endpoint string, resp *resty.Response) (*apiResponse, error) {
	if !resp.IsSuccess() {
		t.logger.Error("xui: API request failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode()))
		return &apiResponse{
			Success: false,
			Msg:     fmt.Sprintf("request failed with status %d", resp.StatusCode()),
		}, nil
	}

	var out apiResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return &out, nil
}

// authenticate performs the login handshake and caches the session cookie.
func (t *Transport) authenticate(ctx context.Context) (string, error) {
	resp, err := t.login.Request().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": t.username,
			"password": t.password,
		}).
		Post(t.baseURL + "/login")
	if err != nil {
		t.logger.Error("xui: connection failed", zap.Error(err))
		return "", fmt.Errorf("login: %w: %v", ErrConnection, err)
	}

	var body struct {
		Success bool `json:"success"`
	}
	_ = json.Unmarshal(resp.Body(), &body)
	if !resp.IsSuccess() || !body.Success {
		t.logger.Error("xui: login failed",
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("response", resp.Body()))
		return "", fmt.Errorf("login rejected: %w", ErrAuthentication)
	}

	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			t.sessions.Put(ctx, t.baseURL, t.username, c.Value)
			return c.Value, nil
		}
	}

	return "", fmt.Errorf("session cookie missing from login response: %w", ErrAuthentication)
}

// sessionRejected detects an expired or refused session: an auth status
// code, or the panel's login page served where JSON was expected.
func sessionRejected(resp *resty.Response) bool {
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	if resp.IsSuccess() {
		body := bytes.TrimSpace(resp.Body())
		return len(body) > 0 && body[0] == '<'
	}
	return false
}
