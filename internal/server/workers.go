package server

import (
	"context"
	"log/slog"
	"time"
)

const (
	archivePruneEvery   = time.Hour
	limiterCleanupEvery = time.Minute
)

// StartWorkers launches all background goroutines. Call with a cancellable
// context for graceful shutdown.
func (s *Server) StartWorkers(ctx context.Context) {
	go s.runLimiterCleanup(ctx)
	if s.archive != nil && s.retention > 0 {
		go s.runArchivePrune(ctx)
	}
}

// --- Rate limiter cleanup ---

func (s *Server) runLimiterCleanup(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(limiterCleanupEvery):
			s.limiter.cleanup()
		}
	}
}

// --- Archive retention ---

// runArchivePrune deletes archived knowledge older than the retention
// period, once at startup and then hourly.
func (s *Server) runArchivePrune(ctx context.Context) {
	s.pruneArchive(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(archivePruneEvery):
			s.pruneArchive(time.Now())
		}
	}
}

// pruneArchive removes entries older than now minus the retention period
// and returns how many went.
func (s *Server) pruneArchive(now time.Time) int64 {
	n, err := s.archive.Prune(now.Add(-s.retention))
	if err != nil {
		s.logger.Error("prune knowledge archive", slog.String("error", err.Error()))
		return 0
	}
	if n > 0 {
		s.logger.Info("pruned knowledge archive", slog.Int64("entries", n))
	}
	return n
}
