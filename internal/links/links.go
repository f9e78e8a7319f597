// Package links builds the user-facing connection artifacts for a
// provisioned client: subscription URLs, per-device import deep links,
// QR codes and the raw vless URI served by the subscription endpoint.
package links

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"vpnbot/internal/pkg/httpclient"
	"vpnbot/internal/xui"
)

// Supported device identifiers.
const (
	DeviceApple   = "apple"
	DeviceAndroid = "android"
	DeviceWindows = "windows"
)

// Links is the set of URLs handed to the presentation layer for one
// client+device pair.
type Links struct {
	SubscriptionURL string
	ImportLink      string
	RedirectURL     string
}

type Service struct {
	redirectURL      string
	subscriptionBase string
	client           *httpclient.Client
}

func New(primaryDomain, panelDomain, subscriptionPort string) *Service {
	return &Service{
		redirectURL:      fmt.Sprintf("https://%s/vpn-link", primaryDomain),
		subscriptionBase: fmt.Sprintf("https://%s:%s/sub", panelDomain, subscriptionPort),
		// Subscription endpoints typically serve self-signed certs.
		client: httpclient.New().WithTimeout(10 * time.Second).WithInsecureSkipVerify(),
	}
}

// WithSubscriptionBase overrides the subscription base URL. Used by tests.
func (s *Service) WithSubscriptionBase(base string) *Service {
	s.subscriptionBase = strings.TrimRight(base, "/")
	return s
}

// SubscriptionURL is the per-client URL serving the importable config
// list.
func (s *Service) SubscriptionURL(client *xui.Client) string {
	return s.subscriptionBase + "/" + client.SubID
}

// Build assembles the device-specific link set for a client.
func (s *Service) Build(client *xui.Client, device string) Links {
	subURL := s.SubscriptionURL(client)
	encoded := url.QueryEscape(subURL)

	var importLink string
	switch strings.ToLower(device) {
	case DeviceAndroid:
		importLink = "v2raytun://import-sub?url=" + encoded
	case DeviceWindows:
		importLink = "hiddify://import/" + encoded
	default: // Apple
		importLink = "v2raytun://import/" + encoded
	}

	return Links{
		SubscriptionURL: subURL,
		ImportLink:      importLink,
		RedirectURL:     s.redirectURL + "?url=" + url.QueryEscape(importLink),
	}
}

// QRCode renders the subscription URL as a PNG.
func (s *Service) QRCode(client *xui.Client) ([]byte, error) {
	return qrcode.Encode(s.SubscriptionURL(client), qrcode.Medium, 256)
}

// FetchVlessLink retrieves the client's first vless:// URI from the
// subscription endpoint. The endpoint serves a base64-encoded list of
// links, one per line; some deployments serve it in plain text.
func (s *Service) FetchVlessLink(ctx context.Context, client *xui.Client) (string, error) {
	resp, err := s.client.Request().
		SetContext(ctx).
		Get(s.SubscriptionURL(client))
	if err != nil {
		return "", fmt.Errorf("fetch subscription: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("fetch subscription: status %d", resp.StatusCode())
	}

	content := strings.TrimSpace(string(resp.Body()))
	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		// Not base64: treat the body as a plain link list.
		decoded = []byte(content)
	}

	lines := strings.Split(string(decoded), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "vless://") {
			return line, nil
		}
	}
	if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		return strings.TrimSpace(lines[0]), nil
	}
	return "", fmt.Errorf("subscription for %s returned no links", client.Email)
}

// AppDownloadLinks maps each device to its VPN app store page.
func AppDownloadLinks() map[string]string {
	return map[string]string{
		DeviceApple:   "https://apps.apple.com/app/v2raytun/id6476628951",
		DeviceAndroid: "https://play.google.com/store/apps/details?id=com.v2raytun.android",
		DeviceWindows: "https://github.com/hiddify/hiddify-app/releases/latest",
	}
}

// ValidImportScheme reports whether a URL uses one of the VPN app
// schemes the redirect endpoint is allowed to forward to.
func ValidImportScheme(rawURL string) bool {
	return strings.HasPrefix(rawURL, "v2raytun://") || strings.HasPrefix(rawURL, "hiddify://")
}
