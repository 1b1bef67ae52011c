package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredSweeper removes expired counter and lock rows
type ExpiredSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// ActivityTrimmer bounds the activity log
type ActivityTrimmer interface {
	Trim(ctx context.Context, keep int) (int64, error)
}

// CleanupManager periodically sweeps expired defense state and trims the
// activity log. Either collaborator may be nil.
type CleanupManager struct {
	sweeper  ExpiredSweeper
	trimmer  ActivityTrimmer
	keep     int
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sweeper ExpiredSweeper,
	trimmer ActivityTrimmer,
	keep int,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sweeper:  sweeper,
		trimmer:  trimmer,
		keep:     keep,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if cm.sweeper != nil {
		rows, err := cm.sweeper.DeleteExpired(cleanupCtx)
		if err != nil {
			cm.logger.Error("failed to sweep expired defense state", slog.Any("error", err))
		} else if rows > 0 {
			cm.logger.Info("expired defense state removed", slog.Int64("rows_deleted", rows))
		}
	}

	if cm.trimmer != nil {
		rows, err := cm.trimmer.Trim(cleanupCtx, cm.keep)
		if err != nil {
			cm.logger.Error("failed to trim activity log", slog.Any("error", err))
		} else if rows > 0 {
			cm.logger.Info("activity log trimmed", slog.Int64("rows_deleted", rows))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
