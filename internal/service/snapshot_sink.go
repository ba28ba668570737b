package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/govledger/internal/accounting"
	"github.com/alanyoungcy/govledger/internal/domain"
)

// SnapshotArchiver stores a full copy of a published snapshot.
type SnapshotArchiver interface {
	Archive(ctx context.Context, snap *domain.BalanceSnapshot) (string, error)
	LatestVersion(ctx context.Context, accountID string) (uint64, error)
}

// SnapshotSink persists derived data for every published snapshot: market
// summaries go to the vote summary store and the raw records to the archive.
// Either destination may be nil.
type SnapshotSink struct {
	store     *BalanceStore
	engine    *accounting.Engine
	summaries domain.VoteSummaryStore
	archiver  SnapshotArchiver
	logger    *slog.Logger

	lastVersion uint64
}

// NewSnapshotSink creates a SnapshotSink.
func NewSnapshotSink(store *BalanceStore, engine *accounting.Engine, summaries domain.VoteSummaryStore, archiver SnapshotArchiver, logger *slog.Logger) *SnapshotSink {
	return &SnapshotSink{
		store:     store,
		engine:    engine,
		summaries: summaries,
		archiver:  archiver,
		logger:    logger.With(slog.String("component", "snapshot_sink")),
	}
}

// Resume continues the store's version numbering after the newest version
// either destination already holds for accountID, so versions written by an
// earlier run are never reused. Call it before the first refresh.
func (s *SnapshotSink) Resume(ctx context.Context, accountID string) error {
	var latest uint64
	if s.summaries != nil {
		v, err := s.summaries.LatestVersion(ctx, accountID)
		if err != nil {
			return fmt.Errorf("snapshot sink: resume: %w", err)
		}
		latest = max(latest, v)
	}
	if s.archiver != nil {
		v, err := s.archiver.LatestVersion(ctx, accountID)
		if err != nil {
			return fmt.Errorf("snapshot sink: resume: %w", err)
		}
		latest = max(latest, v)
	}
	s.store.SeedVersion(latest)
	if latest > 0 {
		s.logger.InfoContext(ctx, "resuming snapshot versions",
			slog.String("account", accountID),
			slog.Uint64("after", latest),
		)
	}
	return nil
}

// Run persists the current snapshot and every later one until ctx is done.
func (s *SnapshotSink) Run(ctx context.Context) error {
	events, unsubscribe := s.store.Subscribe(4)
	defer unsubscribe()

	s.Persist(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Cleared {
				continue
			}
			s.Persist(ctx)
		}
	}
}

// Persist writes out the store's current snapshot. Versions already written
// are skipped. Failures are logged; the next snapshot retries.
func (s *SnapshotSink) Persist(ctx context.Context) {
	snap := s.store.Snapshot()
	if snap == nil || snap.Version <= s.lastVersion {
		return
	}

	ok := true
	if s.summaries != nil {
		sums := s.engine.SnapshotSummaries(snap, snap.AccountID)
		if err := s.summaries.ReplaceForAccount(ctx, snap.AccountID, snap.Version, sums); err != nil {
			s.logger.ErrorContext(ctx, "persist vote summaries",
				slog.Uint64("version", snap.Version),
				slog.String("error", err.Error()),
			)
			ok = false
		} else {
			s.logger.DebugContext(ctx, "vote summaries persisted",
				slog.Uint64("version", snap.Version),
				slog.Int("markets", len(sums)),
			)
		}
	}
	if s.archiver != nil {
		key, err := s.archiver.Archive(ctx, snap)
		if err != nil {
			s.logger.ErrorContext(ctx, "archive snapshot",
				slog.Uint64("version", snap.Version),
				slog.String("error", err.Error()),
			)
			ok = false
		} else {
			s.logger.InfoContext(ctx, "snapshot archived", slog.String("key", key))
		}
	}
	if ok {
		s.lastVersion = snap.Version
	}
}
