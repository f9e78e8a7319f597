// Package rename migrates panel client labels from the legacy tg_*
// format to the readable "{name}-{uuid prefix}" format, resolving names
// through the Telegram getChat API.
package rename

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"vpnbot/internal/pkg/telegram"
	"vpnbot/internal/xui"
)

// Delay between panel writes. The panel rewrites the whole inbound
// settings document on every update, so give it breathing room.
const writeDelay = 100 * time.Millisecond

const lockFile = "/tmp/vpnbot-rename.lock"

// Report summarizes a migration run.
type Report struct {
	Total   int
	Renamed int
	Skipped int
	Failed  int
}

// Runner walks every client on the inbound and renames the ones still
// carrying a legacy label.
type Runner struct {
	clients  *xui.Service
	botAPI   *telegram.BotAPI
	logger   *zap.Logger
	dryRun   bool
	lockPath string
}

func New(clients *xui.Service, botAPI *telegram.BotAPI, dryRun bool, logger *zap.Logger) *Runner {
	return &Runner{
		clients:  clients,
		botAPI:   botAPI,
		logger:   logger,
		dryRun:   dryRun,
		lockPath: lockFile,
	}
}

// WithLockPath overrides the lock file location. Used by tests.
func (r *Runner) WithLockPath(path string) *Runner {
	r.lockPath = path
	return r
}

// Run executes the migration. Only one run may touch the panel at a
// time; a second invocation fails fast instead of queueing.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	lock := flock.New(r.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire rename lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another rename run is already in progress")
	}
	defer lock.Unlock()

	clients := r.clients.AllClients(ctx)
	report := &Report{Total: len(clients)}

	for i := range clients {
		client := &clients[i]

		newEmail, skip := r.newEmailFor(client)
		if skip {
			report.Skipped++
			continue
		}

		if r.dryRun {
			r.logger.Info("would rename client",
				zap.String("from", client.Email),
				zap.String("to", newEmail))
			report.Renamed++
			continue
		}

		if err := r.clients.Rename(ctx, client.Email, newEmail); err != nil {
			r.logger.Error("rename failed",
				zap.String("email", client.Email),
				zap.Error(err))
			report.Failed++
			continue
		}

		r.logger.Info("renamed client",
			zap.String("from", client.Email),
			zap.String("to", newEmail))
		report.Renamed++

		time.Sleep(writeDelay)
	}

	if report.Failed > 0 {
		return report, fmt.Errorf("%d of %d renames failed", report.Failed, report.Total)
	}
	return report, nil
}

// newEmailFor computes the target label, or skip when the client has no
// Telegram owner, already carries the new format, or the rename would
// be a no-op.
func (r *Runner) newEmailFor(client *xui.Client) (string, bool) {
	if client.TelegramID == 0 {
		r.logger.Debug("skipping client without telegram id",
			zap.String("email", client.Email))
		return "", true
	}
	if xui.IsNewFormatEmail(client.Email) {
		return "", true
	}

	var first, last string
	chat, err := r.botAPI.GetChat(client.TelegramID)
	if err != nil {
		r.logger.Warn("getChat failed, falling back to generic label",
			zap.Int64("telegram_id", client.TelegramID),
			zap.Error(err))
	} else {
		first, last = chat.FirstName, chat.LastName
	}

	newEmail := xui.ClientEmail(client.UUID, first, last)
	if newEmail == client.Email {
		return "", true
	}
	return newEmail, false
}
