// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/design-team/pkg/config"
	"github.com/codeready-toolchain/design-team/pkg/metrics"
)

// Pruner deletes expired sessions. Implemented by sessions.Store.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteEmptyOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically enforces retention policies:
//   - Deletes sessions older than the retention period (when enabled)
//   - Deletes sessions that never received an event once past their TTL
//
// All operations are idempotent and safe to run from multiple replicas.
type Service struct {
	config  *config.RetentionConfig
	store   Pruner
	metrics *metrics.Metrics
	now     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, store Pruner, m *metrics.Metrics) *Service {
	return &Service{
		config:  cfg,
		store:   store,
		metrics: m,
		now:     time.Now,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"session_retention_days", s.config.SessionRetentionDays,
		"empty_session_ttl", s.config.EmptySessionTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce applies every enabled retention rule once.
func (s *Service) RunOnce(ctx context.Context) {
	s.deleteExpiredSessions(ctx)
	s.deleteEmptySessions(ctx)
}

func (s *Service) deleteExpiredSessions(ctx context.Context) {
	if s.config.SessionRetentionDays <= 0 {
		return
	}
	cutoff := s.now().AddDate(0, 0, -s.config.SessionRetentionDays)
	count, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: delete expired sessions failed", "error", err)
		return
	}
	s.metrics.SessionsPruned("expired", count)
	if count > 0 {
		slog.Info("Retention: deleted expired sessions", "count", count, "cutoff", cutoff)
	}
}

func (s *Service) deleteEmptySessions(ctx context.Context) {
	if s.config.EmptySessionTTL <= 0 {
		return
	}
	cutoff := s.now().Add(-s.config.EmptySessionTTL)
	count, err := s.store.DeleteEmptyOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: delete empty sessions failed", "error", err)
		return
	}
	s.metrics.SessionsPruned("empty", count)
	if count > 0 {
		slog.Info("Retention: deleted empty sessions", "count", count, "cutoff", cutoff)
	}
}
