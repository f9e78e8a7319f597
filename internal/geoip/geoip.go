// Package geoip resolves the caller's public IP to a location and
// decides whether the caller is routing through the VPN exit.
package geoip

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"vpnbot/internal/pkg/httpclient"
)

const lookupTimeout = 5 * time.Second

// Result is one IP check snapshot.
type Result struct {
	IP          string    `json:"ip"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	CountryCode string    `json:"countryCode"`
	ISP         string    `json:"isp"`
	Protected   bool      `json:"isProtected"`
	CheckedAt   time.Time `json:"checkedAt"`
}

// Flag renders the country code as a regional-indicator emoji pair.
func (r *Result) Flag() string {
	code := strings.ToUpper(r.CountryCode)
	if len(code) != 2 || code[0] < 'A' || code[0] > 'Z' || code[1] < 'A' || code[1] > 'Z' {
		return ""
	}
	return string([]rune{
		rune(0x1F1E6 + int32(code[0]-'A')),
		rune(0x1F1E6 + int32(code[1]-'A')),
	})
}

// MaskedIP hides the host half of an IPv4 address for display.
func (r *Result) MaskedIP() string {
	parts := strings.Split(r.IP, ".")
	if len(parts) == 4 {
		return parts[0] + "." + parts[1] + ".xxx.xxx"
	}
	return r.IP
}

// Service performs lookups against ip-api.com (free tier, no key,
// 45 req/min).
type Service struct {
	client      *httpclient.Client
	baseURL     string
	countryCode string // VPN exit country
	isp         string // VPN exit ISP substring
	logger      *zap.Logger
}

func New(countryCode, isp string, logger *zap.Logger) *Service {
	return &Service{
		client:      httpclient.New().WithTimeout(lookupTimeout),
		baseURL:     "http://ip-api.com",
		countryCode: strings.ToUpper(countryCode),
		isp:         isp,
		logger:      logger,
	}
}

// WithBaseURL overrides the lookup endpoint. Used by tests.
func (s *Service) WithBaseURL(url string) *Service {
	s.baseURL = url
	return s
}

// Lookup resolves ip. A private or loopback address means the caller
// reached us through the VPN's internal network and is protected by
// definition.
func (s *Service) Lookup(ctx context.Context, ip string) (*Result, error) {
	if isPrivateIP(ip) {
		s.logger.Info("geoip: private IP, caller is on VPN", zap.String("ip", ip))
		return &Result{
			IP:          "VPN",
			Country:     "VPN network",
			CountryCode: s.countryCode,
			ISP:         s.isp,
			Protected:   true,
			CheckedAt:   time.Now(),
		}, nil
	}

	var body struct {
		Status      string `json:"status"`
		Message     string `json:"message"`
		Country     string `json:"country"`
		CountryCode string `json:"countryCode"`
		City        string `json:"city"`
		ISP         string `json:"isp"`
		Query       string `json:"query"`
	}
	resp, err := s.client.Request().
		SetContext(ctx).
		SetQueryParam("fields", "status,message,country,countryCode,city,isp,query").
		SetResult(&body).
		Get(s.baseURL + "/json/" + ip)
	if err != nil {
		s.logger.Error("geoip: request failed", zap.String("ip", ip), zap.Error(err))
		return nil, fmt.Errorf("geoip lookup: %w", err)
	}
	if !resp.IsSuccess() {
		s.logger.Error("geoip: request failed", zap.String("ip", ip), zap.Int("status", resp.StatusCode()))
		return nil, fmt.Errorf("geoip lookup: status %d", resp.StatusCode())
	}
	if body.Status != "success" {
		s.logger.Error("geoip: lookup failed", zap.String("ip", ip), zap.String("message", body.Message))
		return nil, fmt.Errorf("geoip lookup: %s", body.Message)
	}

	result := &Result{
		IP:          body.Query,
		City:        body.City,
		Country:     body.Country,
		CountryCode: body.CountryCode,
		ISP:         body.ISP,
		Protected:   s.isProtected(body.CountryCode, body.ISP),
		CheckedAt:   time.Now(),
	}
	if result.IP == "" {
		result.IP = ip
	}
	return result, nil
}

// isProtected requires both the exit country and the exit ISP to match:
// either alone produces false positives for users who simply live near
// the VPN exit.
func (s *Service) isProtected(countryCode, isp string) bool {
	return strings.EqualFold(countryCode, s.countryCode) &&
		strings.Contains(strings.ToLower(isp), strings.ToLower(s.isp))
}

func isPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified()
}
