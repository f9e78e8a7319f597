// Package bot implements the Telegram front end: the /start command and
// the inline-keyboard menus for connecting devices, checking the user's
// profile and protection status, and switching languages.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"vpnbot/internal/cache"
	"vpnbot/internal/config"
	"vpnbot/internal/i18n"
	"vpnbot/internal/links"
	"vpnbot/internal/speedtest"
	"vpnbot/internal/xui"
)

const (
	// Suppresses double-taps on inline buttons.
	callbackDebounce = 3 * time.Second
	// Language preference lifetime.
	langTTL = 365 * 24 * time.Hour
)

// Bot wraps the telebot instance and its handlers.
type Bot struct {
	tb         *tele.Bot
	webhook    *tele.Webhook
	useWebhook bool
	cfg        *config.Config
	clients    *xui.Service
	links      *links.Service
	speed      *speedtest.Service
	store      cache.Store
	logger     *zap.Logger
}

// Deps bundles the services the bot handlers need.
type Deps struct {
	Clients *xui.Service
	Links   *links.Service
	Speed   *speedtest.Service
	Store   cache.Store
}

// New creates and configures a Bot. With a webhook URL configured the
// bot mounts on the HTTP server; otherwise it long-polls.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*Bot, error) {
	useWebhook := strings.TrimSpace(cfg.Bot.WebhookURL) != ""

	var poller tele.Poller
	var webhook *tele.Webhook
	if useWebhook {
		webhook = &tele.Webhook{
			Listen:   "", // mounted on Echo, not telebot's own server
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Bot.WebhookURL},
		}
		poller = webhook
	} else {
		poller = &tele.LongPoller{Timeout: 10 * time.Second}
	}

	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: poller,
		OnError: func(err error, c tele.Context) {
			logger.Error("telebot error", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}

	b := &Bot{
		tb:         tb,
		webhook:    webhook,
		useWebhook: useWebhook,
		cfg:        cfg,
		clients:    deps.Clients,
		links:      deps.Links,
		speed:      deps.Speed,
		store:      deps.Store,
		logger:     logger,
	}

	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle(tele.OnCallback, b.handleCallback)

	return b, nil
}

// WebhookHandler returns the handler for mounting on Echo, or nil in
// long-polling mode.
func (b *Bot) WebhookHandler() http.Handler {
	return b.webhook
}

// Start begins webhook or polling processing. Blocks.
func (b *Bot) Start() {
	if b.useWebhook {
		b.logger.Info("starting Telegram bot",
			zap.String("mode", "webhook"),
			zap.String("webhook_url", b.cfg.Bot.WebhookURL))
	} else {
		if err := b.tb.RemoveWebhook(true); err != nil {
			b.logger.Warn("failed to remove webhook before long polling", zap.Error(err))
		}
		b.logger.Info("starting Telegram bot", zap.String("mode", "polling"))
	}
	b.tb.Start()
}

// Stop gracefully shuts down the bot.
func (b *Bot) Stop() {
	b.tb.Stop()
}

// lang returns the user's stored language preference.
func (b *Bot) lang(ctx context.Context, userID int64) string {
	if v, ok := b.store.Get(ctx, fmt.Sprintf("lang:%d", userID)); ok {
		return v
	}
	return i18n.DefaultLanguage
}

func (b *Bot) setLang(ctx context.Context, userID int64, lang string) {
	b.store.Set(ctx, fmt.Sprintf("lang:%d", userID), lang, langTTL)
}

// debounced reports whether the same user pressed the same button within
// the debounce window. First press wins.
func (b *Bot) debounced(ctx context.Context, userID int64, action string) bool {
	key := fmt.Sprintf("callback:%d:%s", userID, action)
	return !b.store.SetNX(ctx, key, "1", callbackDebounce)
}

// ── /start ────────────────────────────────────────────────────────────

func (b *Bot) handleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	lang := b.lang(ctx, sender.ID)

	// Deep links from the IP-check redirect: /start ipcheck_{uid}_{token}
	if payload := c.Message().Payload; strings.HasPrefix(payload, "ipcheck_") {
		return b.showIPCheckResult(c, lang, payload)
	}

	client, err := b.clients.GetOrCreate(ctx, sender.ID, sender.FirstName, sender.LastName)
	if err != nil {
		b.logger.Error("start failed",
			zap.Int64("telegram_id", sender.ID),
			zap.Error(err))
		return c.Send(i18n.T(lang, "menu.error_occurred"), tele.ModeHTML)
	}

	b.logger.Info("user started bot",
		zap.Int64("telegram_id", sender.ID),
		zap.String("client_email", client.Email))

	text := i18n.T(lang, "menu.welcome", "Name=="+sender.FirstName) + "\n\n" +
		i18n.T(lang, "menu.welcome_description")
	return c.Send(text, mainMenuKeyboard(lang), tele.ModeHTML)
}

// ── Callbacks ─────────────────────────────────────────────────────────

func (b *Bot) handleCallback(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	data := strings.TrimSpace(strings.TrimPrefix(c.Callback().Data, "\f"))
	lang := b.lang(ctx, sender.ID)

	if b.debounced(ctx, sender.ID, data) {
		return c.Respond()
	}

	var err error
	switch {
	case data == "choose_device" || data == "back_to_devices":
		err = b.showDeviceMenu(c, lang)
	case strings.HasPrefix(data, "device_"):
		err = b.showDevice(c, lang, strings.TrimPrefix(data, "device_"))
	case data == "show_qr":
		err = b.sendQRCode(c, lang)
	case data == "show_vless_link":
		err = b.sendVlessLink(c, lang)
	case data == "profile":
		err = b.showProfile(c, lang)
	case data == "check_ip":
		err = b.showIPCheckPrompt(c, lang)
	case data == "speed_test":
		err = b.runSpeedTest(c, lang)
	case data == "select_language":
		err = b.showLanguageMenu(c, lang)
	case strings.HasPrefix(data, "set_language_"):
		err = b.setLanguage(c, strings.TrimPrefix(data, "set_language_"))
	case data == "back_to_menu":
		err = b.showMainMenu(c, lang)
	default:
		b.logger.Warn("unknown callback data", zap.String("data", data))
	}

	if err != nil {
		b.logger.Error("callback handler failed",
			zap.String("data", data),
			zap.Error(err))
		return c.Respond(&tele.CallbackResponse{
			Text:      i18n.T(lang, "menu.error_occurred"),
			ShowAlert: true,
		})
	}
	return c.Respond()
}
