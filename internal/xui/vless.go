package xui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

type streamSettings struct {
	Network         string `json:"network"`
	Security        string `json:"security"`
	RealitySettings struct {
		ServerNames []string `json:"serverNames"`
		ShortIDs    []string `json:"shortIds"`
		Settings    struct {
			PublicKey   string `json:"publicKey"`
			Fingerprint string `json:"fingerprint"`
			SpiderX     string `json:"spiderX"`
		} `json:"settings"`
	} `json:"realitySettings"`
}

// VlessLink builds the client's vless:// connection URI from the
// inbound's stream settings. For reality inbounds the handshake
// parameters (sni, pbk, sid, spx, fp) come from the panel config.
func (s *Service) VlessLink(ctx context.Context, client *Client) (string, error) {
	inbound, err := s.fetchInbound(ctx)
	if err != nil {
		s.logger.Error("xui: failed to get inbound for vless link", zap.Error(err))
		return "", err
	}

	var stream streamSettings
	_ = json.Unmarshal([]byte(inbound.StreamSettings), &stream)

	network := stream.Network
	if network == "" {
		network = "tcp"
	}
	security := stream.Security
	if security == "" {
		security = "reality"
	}
	flow := client.Flow
	if flow == "" {
		flow = defaultFlow
	}

	params := url.Values{}
	params.Set("type", network)
	params.Set("encryption", "none")
	params.Set("security", security)
	params.Set("flow", flow)

	if security == "reality" {
		reality := stream.RealitySettings
		if len(reality.ServerNames) > 0 && reality.ServerNames[0] != "" {
			params.Set("sni", reality.ServerNames[0])
		}
		if reality.Settings.PublicKey != "" {
			params.Set("pbk", reality.Settings.PublicKey)
		}
		if len(reality.ShortIDs) > 0 && reality.ShortIDs[0] != "" {
			params.Set("sid", reality.ShortIDs[0])
		}
		if reality.Settings.SpiderX != "" {
			params.Set("spx", reality.Settings.SpiderX)
		}
		if reality.Settings.Fingerprint != "" {
			params.Set("fp", reality.Settings.Fingerprint)
		} else {
			params.Set("fp", "chrome")
		}
	}

	address := s.opts.ServerAddress
	if address == "" {
		address = s.transport.Host()
	}
	port := inbound.Port
	if port == 0 {
		port = 443
	}

	remark := client.Email
	if remark == "" {
		remark = "VPN"
	}

	return fmt.Sprintf("vless://%s@%s:%d?%s#%s",
		client.UUID, address, port, params.Encode(), url.QueryEscape(remark)), nil
}
