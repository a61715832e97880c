package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skaldworks/skald/docstore"
	"github.com/skaldworks/skald/hydrate"
)

// SnapshotterConfig configures the periodic snapshot engine.
type SnapshotterConfig struct {
	Store     docstore.Store
	Snapshots docstore.SnapshotStore
	OwnerID   string
	Interval  time.Duration // default 10m
	Keep      int           // snapshots retained, default 5
	Logger    *slog.Logger
}

func (c *SnapshotterConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.Keep <= 0 {
		c.Keep = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Snapshotter captures documents-only snapshots on a timer, pruning old
// captures so at most Keep remain. One failed cycle logs and the timer
// keeps running.
type Snapshotter struct {
	cfg SnapshotterConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSnapshotter creates a stopped snapshot engine.
func NewSnapshotter(cfg SnapshotterConfig) *Snapshotter {
	cfg.defaults()
	return &Snapshotter{cfg: cfg}
}

// Start begins periodic capture. Calling Start while running cancels the
// previous run first, so there is never more than one ticker.
func (s *Snapshotter) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.run(runCtx, done)
}

// Stop halts the ticker and waits for the current cycle to finish.
func (s *Snapshotter) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Snapshotter) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *Snapshotter) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Capture(ctx); err != nil {
				s.cfg.Logger.Warn("snapshot cycle failed", "owner", s.cfg.OwnerID, "error", err)
			}
		}
	}
}

// Capture takes one snapshot now and prunes beyond the retention limit.
func (s *Snapshotter) Capture(ctx context.Context) error {
	docs, err := s.cfg.Store.ListByOwner(ctx, s.cfg.OwnerID)
	if err != nil {
		return fmt.Errorf("bundle: snapshot list: %w", err)
	}
	for i, doc := range docs {
		docs[i] = hydrate.DehydrateDocument(doc)
	}

	now := time.Now().UTC()
	snap := docstore.Snapshot{
		Key:       fmt.Sprintf("snap_%d", now.UnixMilli()),
		OwnerID:   s.cfg.OwnerID,
		CreatedAt: now,
		Documents: docs,
	}
	if err := s.cfg.Snapshots.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("bundle: snapshot save: %w", err)
	}
	s.cfg.Logger.Info("snapshot captured", "key", snap.Key, "documents", len(docs))

	return s.prune(ctx)
}

// prune deletes the oldest snapshots until at most Keep remain.
func (s *Snapshotter) prune(ctx context.Context) error {
	keys, err := s.cfg.Snapshots.ListSnapshotKeys(ctx, s.cfg.OwnerID)
	if err != nil {
		return fmt.Errorf("bundle: snapshot prune: %w", err)
	}
	for len(keys) > s.cfg.Keep {
		key := keys[0]
		keys = keys[1:]
		if err := s.cfg.Snapshots.DeleteSnapshot(ctx, key); err != nil {
			return fmt.Errorf("bundle: snapshot prune %s: %w", key, err)
		}
		s.cfg.Logger.Debug("snapshot pruned", "key", key)
	}
	return nil
}
