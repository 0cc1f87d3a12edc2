package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"convertbot/internal/convert"
	"convertbot/internal/storage"
)

// SweepService deletes temp files nobody is going to use anymore: entries
// of the workspace older than the TTL that are not a user's pending file.
type SweepService struct {
	users     storage.UserStore
	workspace *convert.Workspace
	ttl       time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewSweepService(users storage.UserStore, workspace *convert.Workspace, ttl time.Duration, logger *zap.Logger) *SweepService {
	return &SweepService{
		users:     users,
		workspace: workspace,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger.Named("sweep"),
	}
}

// Sweep removes expired entries and returns how many were removed.
func (s *SweepService) Sweep(ctx context.Context) (int, error) {
	pending, err := s.users.PendingFiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending files: %w", err)
	}
	keep := make(map[string]bool, len(pending))
	for _, path := range pending {
		keep[path] = true
	}

	expired, err := s.workspace.Expired(s.now().Add(-s.ttl))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range expired {
		if keep[path] {
			continue
		}
		if err := s.workspace.RemoveAll(path); err != nil {
			s.logger.Warn("Failed to delete expired temp file", zap.Error(err), zap.String("file", path))
			continue
		}
		removed++
	}

	s.logger.Info("Temp folder swept",
		zap.Int("expired", len(expired)),
		zap.Int("removed", removed),
		zap.Int("pending", len(pending)),
	)
	return removed, nil
}

// Job adapts Sweep to the scheduler, logging failures.
func (s *SweepService) Job(ctx context.Context) func() {
	return func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("Temp folder sweep failed", zap.Error(err))
		}
	}
}
