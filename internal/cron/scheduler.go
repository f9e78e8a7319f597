package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"vpnbot/internal/speedtest"
	"vpnbot/internal/xui"
)

// Scheduler manages the background jobs: keeping the speed test cache
// warm and probing panel reachability.
type Scheduler struct {
	cron    *cron.Cron
	clients *xui.Service
	speed   *speedtest.Service
	logger  *zap.Logger
}

// New creates a new cron scheduler.
func New(clients *xui.Service, speed *speedtest.Service, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		clients: clients,
		speed:   speed,
		logger:  logger,
	}
}

// Start registers all jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	// Warm the speed test cache every 6 hours so users usually hit a
	// fresh cached result instead of waiting out a live measurement.
	if _, err := s.cron.AddFunc("0 0 */6 * * *", s.warmSpeedTest); err != nil {
		return err
	}

	// Panel reachability probe. Also keeps the session cookie fresh.
	if _, err := s.cron.AddFunc("0 */15 * * * *", s.probePanel); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started")
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("cron scheduler stopped")
}

func (s *Scheduler) warmSpeedTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	result, err := s.speed.Run(ctx)
	if err != nil {
		s.logger.Warn("scheduled speed test failed", zap.Error(err))
		return
	}
	s.logger.Info("speed test cache warmed",
		zap.Float64("download_mbps", result.DownloadMbps),
		zap.Float64("upload_mbps", result.UploadMbps))
}

func (s *Scheduler) probePanel() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clients := s.clients.AllClients(ctx)
	s.logger.Debug("panel probe completed", zap.Int("clients", len(clients)))
}
