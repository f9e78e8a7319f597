package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"vpnbot/internal/geoip"
	"vpnbot/internal/i18n"
	"vpnbot/internal/speedtest"
)

func (b *Bot) showMainMenu(c tele.Context, lang string) error {
	return c.Edit(i18n.T(lang, "menu.main_menu"), mainMenuKeyboard(lang), tele.ModeHTML)
}

func (b *Bot) showDeviceMenu(c tele.Context, lang string) error {
	return c.Edit(i18n.T(lang, "device.choose_title"), deviceMenuKeyboard(lang), tele.ModeHTML)
}

func (b *Bot) showDevice(c tele.Context, lang, device string) error {
	ctx := context.Background()
	sender := c.Sender()

	client := b.clients.FindByTelegramID(ctx, sender.ID)
	if client == nil {
		var err error
		client, err = b.clients.Create(ctx, sender.ID, sender.FirstName, sender.LastName)
		if err != nil {
			return err
		}
	}

	linkSet := b.links.Build(client, device)

	title := i18n.T(lang, "device."+device+"_title")
	var msg strings.Builder
	msg.WriteString("<b>" + title + "</b>\n\n")
	msg.WriteString(i18n.T(lang, "device.instructions") + "\n")
	msg.WriteString("1. " + i18n.T(lang, "device.step1") + "\n")
	msg.WriteString("2. " + i18n.T(lang, "device.step2") + "\n\n")
	msg.WriteString(i18n.T(lang, "device.verify_hint") + " <code>ip.me</code>")

	return c.Edit(msg.String(), deviceKeyboard(lang, device, linkSet), tele.ModeHTML)
}

func (b *Bot) sendQRCode(c tele.Context, lang string) error {
	ctx := context.Background()

	client := b.clients.FindByTelegramID(ctx, c.Sender().ID)
	if client == nil {
		return c.Send(i18n.T(lang, "profile.no_account"), tele.ModeHTML)
	}

	png, err := b.links.QRCode(client)
	if err != nil {
		return err
	}
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(png))}
	return c.Send(photo)
}

func (b *Bot) sendVlessLink(c tele.Context, lang string) error {
	ctx := context.Background()

	client := b.clients.FindByTelegramID(ctx, c.Sender().ID)
	if client == nil {
		return c.Send(i18n.T(lang, "profile.no_account"), tele.ModeHTML)
	}

	// The subscription endpoint is authoritative; building from the
	// inbound config is the fallback when it is unreachable.
	link, err := b.links.FetchVlessLink(ctx, client)
	if err != nil {
		b.logger.Warn("subscription fetch failed, building vless link locally", zap.Error(err))
		link, err = b.clients.VlessLink(ctx, client)
	}
	if err != nil {
		return c.Send(i18n.T(lang, "device.vless_link_error"), tele.ModeHTML)
	}

	// Standalone message without formatting, for easy copying.
	return c.Send(link)
}

func (b *Bot) showProfile(c tele.Context, lang string) error {
	ctx := context.Background()

	client := b.clients.FindByTelegramID(ctx, c.Sender().ID)
	if client == nil {
		return c.Edit(i18n.T(lang, "profile.no_account"), backKeyboard(lang), tele.ModeHTML)
	}

	traffic, err := b.clients.Traffic(ctx, client.Email)
	if err != nil {
		return err
	}

	status := i18n.T(lang, "profile.disabled")
	if client.Enabled {
		status = i18n.T(lang, "profile.enabled")
	}

	var msg strings.Builder
	msg.WriteString("<b>" + i18n.T(lang, "profile.title") + "</b>\n\n")
	msg.WriteString(i18n.T(lang, "profile.status") + ": " + status + "\n")
	msg.WriteString(i18n.T(lang, "profile.upload") + ": " + traffic.FormattedUpload() + "\n")
	msg.WriteString(i18n.T(lang, "profile.download") + ": " + traffic.FormattedDownload() + "\n")
	if client.UnlimitedExpiry() {
		msg.WriteString(i18n.T(lang, "profile.expires") + ": " + i18n.T(lang, "profile.expires_never"))
	} else {
		expiry := time.UnixMilli(client.ExpiryTime).Format("02.01.2006")
		msg.WriteString(i18n.T(lang, "profile.expires") + ": " + expiry)
	}

	return c.Edit(msg.String(), backKeyboard(lang), tele.ModeHTML)
}

func (b *Bot) showIPCheckPrompt(c tele.Context, lang string) error {
	checkURL := fmt.Sprintf("%s/check-ip?uid=%d", b.cfg.Server.URL, c.Sender().ID)
	text := "<b>" + i18n.T(lang, "ip_check.check_title") + "</b>\n\n" +
		i18n.T(lang, "ip_check.check_description")
	return c.Edit(text, ipCheckPromptKeyboard(lang, checkURL), tele.ModeHTML)
}

// showIPCheckResult renders the geo lookup stored by the /check-ip
// endpoint. Payload shape: ipcheck_{uid}_{token}.
func (b *Bot) showIPCheckResult(c tele.Context, lang, payload string) error {
	ctx := context.Background()

	parts := strings.SplitN(payload, "_", 3)
	if len(parts) != 3 {
		return c.Send(i18n.T(lang, "ip_check.expired"), mainMenuKeyboard(lang), tele.ModeHTML)
	}
	uid, token := parts[1], parts[2]

	val, ok := b.store.Get(ctx, "ipcheck:"+uid+":"+token)
	if !ok {
		return c.Send(i18n.T(lang, "ip_check.expired"), mainMenuKeyboard(lang), tele.ModeHTML)
	}

	var result geoip.Result
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return c.Send(i18n.T(lang, "ip_check.error"), mainMenuKeyboard(lang), tele.ModeHTML)
	}

	var msg strings.Builder
	msg.WriteString("<b>" + i18n.T(lang, "ip_check.title") + "</b>\n\n")
	msg.WriteString(i18n.T(lang, "ip_check.ip") + ": <code>" + result.MaskedIP() + "</code>\n")
	location := result.City
	if location != "" && result.Country != "" {
		location += ", "
	}
	location += result.Country
	if flag := result.Flag(); flag != "" {
		location = flag + " " + location
	}
	msg.WriteString(i18n.T(lang, "ip_check.location") + ": " + location + "\n")
	msg.WriteString(i18n.T(lang, "ip_check.isp") + ": " + result.ISP + "\n\n")
	if result.Protected {
		msg.WriteString("✅ <b>" + i18n.T(lang, "ip_check.protected") + "</b>\n")
		msg.WriteString(i18n.T(lang, "ip_check.protected_desc"))
	} else {
		msg.WriteString("⚠️ <b>" + i18n.T(lang, "ip_check.not_protected") + "</b>\n")
		msg.WriteString(i18n.T(lang, "ip_check.not_protected_desc"))
	}

	return c.Send(msg.String(), ipCheckResultKeyboard(lang, result.Protected), tele.ModeHTML)
}

func (b *Bot) runSpeedTest(c tele.Context, lang string) error {
	ctx := context.Background()

	if cached := b.speed.Cached(ctx); cached != nil {
		return c.Edit(speedTestText(lang, cached), backKeyboard(lang), tele.ModeHTML)
	}

	if err := c.Edit(i18n.T(lang, "speedtest.running"), backKeyboard(lang), tele.ModeHTML); err != nil {
		return err
	}

	// A measurement takes up to two minutes; don't hold the webhook.
	go func() {
		result, err := b.speed.Run(context.Background())
		if err != nil {
			_, _ = b.tb.Send(c.Chat(), i18n.T(lang, "speedtest.error"), tele.ModeHTML)
			return
		}
		_, _ = b.tb.Send(c.Chat(), speedTestText(lang, result), backKeyboard(lang), tele.ModeHTML)
	}()
	return nil
}

func speedTestText(lang string, r *speedtest.Result) string {
	var msg strings.Builder
	msg.WriteString("<b>" + i18n.T(lang, "speedtest.title") + "</b>\n\n")
	msg.WriteString("⬇️ " + i18n.T(lang, "speedtest.download") + ": " + r.FormattedDownload() + "\n")
	msg.WriteString("⬆️ " + i18n.T(lang, "speedtest.upload") + ": " + r.FormattedUpload() + "\n")
	msg.WriteString("📶 " + i18n.T(lang, "speedtest.ping") + ": " + r.FormattedPing())
	return msg.String()
}

func (b *Bot) showLanguageMenu(c tele.Context, lang string) error {
	return c.Edit(i18n.T(lang, "menu.select_language"), languageKeyboard(lang), tele.ModeHTML)
}

func (b *Bot) setLanguage(c tele.Context, newLang string) error {
	ctx := context.Background()

	supported := false
	for _, l := range i18n.Supported {
		if l == newLang {
			supported = true
			break
		}
	}
	if !supported {
		newLang = i18n.DefaultLanguage
	}

	b.setLang(ctx, c.Sender().ID, newLang)
	return b.showMainMenu(c, newLang)
}
