// Package speedtest measures server-side bandwidth by shelling out to
// speedtest-cli and caches the result so button mashing cannot queue up
// two-minute measurements.
package speedtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"vpnbot/internal/cache"
)

const (
	runTimeout = 120 * time.Second
	cacheTTL   = 5 * time.Minute
	cacheKey   = "speedtest:result"
)

// Result is one completed measurement.
type Result struct {
	DownloadMbps float64   `json:"downloadMbps"`
	UploadMbps   float64   `json:"uploadMbps"`
	PingMs       float64   `json:"pingMs"`
	TestedAt     time.Time `json:"testedAt"`
}

func (r *Result) FormattedDownload() string {
	return fmt.Sprintf("%.1f Mbps", r.DownloadMbps)
}

func (r *Result) FormattedUpload() string {
	return fmt.Sprintf("%.1f Mbps", r.UploadMbps)
}

func (r *Result) FormattedPing() string {
	return fmt.Sprintf("%.0f ms", math.Round(r.PingMs))
}

type Service struct {
	store   cache.Store
	logger  *zap.Logger
	command string
}

func New(store cache.Store, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		logger:  logger,
		command: "speedtest-cli",
	}
}

// WithCommand overrides the binary invoked. Used by tests.
func (s *Service) WithCommand(cmd string) *Service {
	s.command = cmd
	return s
}

// Run returns the cached result when fresh, otherwise invokes
// speedtest-cli and caches the new measurement.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	if cached := s.Cached(ctx); cached != nil {
		return cached, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	out, err := exec.CommandContext(runCtx, s.command, "--json").Output()
	if err != nil {
		s.logger.Error("speedtest: command failed", zap.Error(err))
		return nil, fmt.Errorf("speedtest: %w", err)
	}

	var data struct {
		Download float64 `json:"download"` // bits per second
		Upload   float64 `json:"upload"`
		Ping     float64 `json:"ping"` // ms
	}
	if err := json.Unmarshal(out, &data); err != nil {
		s.logger.Error("speedtest: invalid JSON output", zap.Error(err))
		return nil, fmt.Errorf("speedtest: decode output: %w", err)
	}

	result := &Result{
		DownloadMbps: data.Download / 1e6,
		UploadMbps:   data.Upload / 1e6,
		PingMs:       data.Ping,
		TestedAt:     time.Now(),
	}

	if encoded, err := json.Marshal(result); err == nil {
		s.store.Set(ctx, cacheKey, string(encoded), cacheTTL)
	}

	s.logger.Info("speedtest: completed",
		zap.String("download", result.FormattedDownload()),
		zap.String("upload", result.FormattedUpload()),
		zap.String("ping", result.FormattedPing()))

	return result, nil
}

// Cached returns the last measurement if it is still within the cache
// TTL, else nil.
func (s *Service) Cached(ctx context.Context) *Result {
	val, ok := s.store.Get(ctx, cacheKey)
	if !ok {
		return nil
	}
	var result Result
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil
	}
	return &result
}
