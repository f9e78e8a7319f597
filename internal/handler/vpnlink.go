package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"vpnbot/internal/links"
)

// VPNLinkHandler bridges https pages to the VPN apps' custom URL
// schemes. Telegram inline buttons only accept http(s) URLs, so the
// auto-connect button points here and we bounce to v2raytun:// or
// hiddify://.
type VPNLinkHandler struct{}

func NewVPNLinkHandler() *VPNLinkHandler {
	return &VPNLinkHandler{}
}

func (h *VPNLinkHandler) Handle(c echo.Context) error {
	target := c.QueryParam("url")
	if target == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}
	if !links.ValidImportScheme(target) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unsupported url scheme"})
	}
	return c.Redirect(http.StatusFound, target)
}
