package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnbot/internal/bot"
	"vpnbot/internal/cache"
	"vpnbot/internal/config"
	cronpkg "vpnbot/internal/cron"
	"vpnbot/internal/geoip"
	"vpnbot/internal/i18n"
	"vpnbot/internal/links"
	"vpnbot/internal/pkg/telegram"
	"vpnbot/internal/rename"
	"vpnbot/internal/router"
	"vpnbot/internal/speedtest"
	"vpnbot/internal/xui"
)

func main() {
	setWebhook := flag.Bool("set-webhook", false, "register the webhook URL with Telegram and exit")
	webhookURL := flag.String("url", "", "webhook URL override for --set-webhook")
	updateNames := flag.Bool("update-names", false, "migrate legacy client labels on the panel and exit")
	dryRun := flag.Bool("dry-run", false, "with --update-names, report without writing")
	flag.Parse()

	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if *setWebhook {
		if err := runSetWebhook(cfg, *webhookURL, logger); err != nil {
			logger.Fatal("Webhook registration failed", zap.Error(err))
		}
		return
	}

	// --- Cache (Redis with in-memory fallback) ---
	store, cacheErr := cache.New(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB)
	if cacheErr != nil {
		logger.Warn("Redis unavailable, using in-memory cache", zap.Error(cacheErr))
	}

	// --- Panel client ---
	sessions := xui.NewSessionCache(store, cfg.Panel.SessionTTL)
	transport := xui.NewTransport(cfg.Panel.BaseURL(), cfg.Panel.Username, cfg.Panel.Password, sessions, logger)
	clients := xui.NewService(transport, xui.Options{
		InboundID:      cfg.Panel.InboundID,
		DeviceLimit:    cfg.VPN.DeviceLimit,
		TrafficLimitGB: cfg.VPN.TrafficLimitGB,
		ServerAddress:  cfg.VPN.PanelDomain,
	}, logger)

	if *updateNames {
		if err := runUpdateNames(cfg, clients, *dryRun, logger); err != nil {
			logger.Fatal("Client label migration failed", zap.Error(err))
		}
		return
	}

	// --- Translations ---
	if err := i18n.Init(); err != nil {
		logger.Fatal("Failed to load translations", zap.Error(err))
	}

	// --- Services ---
	geo := geoip.New(cfg.VPN.CountryCode, cfg.VPN.ISP, logger)
	speed := speedtest.New(store, logger)
	linkService := links.New(cfg.VPN.PrimaryDomain, cfg.VPN.PanelDomain, cfg.VPN.SubscriptionPort)

	// --- Bot ---
	teleBot, err := bot.New(cfg, bot.Deps{
		Clients: clients,
		Links:   linkService,
		Speed:   speed,
		Store:   store,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true
	router.Setup(e, geo, store, cfg.Bot.Username, teleBot.WebhookHandler(), logger)

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(clients, speed, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start cron scheduler", zap.Error(err))
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	go teleBot.Start()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	teleBot.Stop()
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func runSetWebhook(cfg *config.Config, override string, logger *zap.Logger) error {
	url := override
	if url == "" {
		url = cfg.Bot.WebhookURL
	}
	if url == "" {
		return fmt.Errorf("no webhook URL: set BOT_WEBHOOK_URL or pass --url")
	}

	botAPI := telegram.NewBotAPI(cfg.Bot.Token)
	if err := botAPI.SetWebhook(url); err != nil {
		return err
	}
	logger.Info("Webhook registered", zap.String("url", url))
	return nil
}

func runUpdateNames(cfg *config.Config, clients *xui.Service, dryRun bool, logger *zap.Logger) error {
	botAPI := telegram.NewBotAPI(cfg.Bot.Token)
	runner := rename.New(clients, botAPI, dryRun, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := runner.Run(ctx)
	if report != nil {
		logger.Info("Client label migration finished",
			zap.Int("total", report.Total),
			zap.Int("renamed", report.Renamed),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
			zap.Bool("dry_run", dryRun))

		if cfg.Bot.AdminID != 0 && !dryRun {
			summary := fmt.Sprintf("Client label migration: %d renamed, %d skipped, %d failed of %d total",
				report.Renamed, report.Skipped, report.Failed, report.Total)
			if sendErr := botAPI.SendMessage(cfg.Bot.AdminID, summary); sendErr != nil {
				logger.Warn("Failed to notify admin", zap.Error(sendErr))
			}
		}
	}
	return err
}
