// Package session holds one open document: the hydrated working tree, the
// display-ref cache backing it, and a debounced autosave that keeps the
// durable record close behind the edits.
//
// All mutation methods apply copy-on-write tree operations under the
// session lock and schedule a save. Destructive operations forward the
// attachment ids they release to blob deletion, so asset lifetime follows
// document structure.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/docstore"
	"github.com/skaldworks/skald/doctree"
	"github.com/skaldworks/skald/hydrate"
)

// Config configures an editing session.
type Config struct {
	Docs     docstore.Store
	Blobs    blobstore.Store
	Debounce time.Duration // autosave delay, default 2s
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is one open document with live display references.
type Session struct {
	docs     docstore.Store
	blobs    blobstore.Store
	engine   *hydrate.Engine
	logger   *slog.Logger
	debounce time.Duration

	mu     sync.Mutex
	doc    *doctree.Document
	timer  *time.Timer
	closed bool
}

// Open loads and hydrates the document. If hydration migrated legacy
// inline attachments, the migrated form is persisted immediately so the
// durable record never regresses.
func Open(ctx context.Context, cfg Config, documentID string) (*Session, error) {
	cfg.defaults()
	doc, err := cfg.Docs.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", documentID, err)
	}

	engine := hydrate.New(hydrate.Config{Blobs: cfg.Blobs, Logger: cfg.Logger})
	hydrated, report, err := engine.Hydrate(ctx, doc.Content.Sections)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("session: hydrate %s: %w", documentID, err)
	}
	doc.Content.Sections = hydrated

	s := &Session{
		docs:     cfg.Docs,
		blobs:    cfg.Blobs,
		engine:   engine,
		logger:   cfg.Logger,
		debounce: cfg.Debounce,
		doc:      doc,
	}

	if report.Migrated > 0 {
		s.logger.Info("persisting migrated attachments",
			"document", documentID, "migrated", report.Migrated)
		if err := s.save(ctx); err != nil {
			engine.Close()
			return nil, err
		}
	}
	return s, nil
}

// Document returns a snapshot of the working document.
func (s *Session) Document() *doctree.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Hydrator exposes the session's hydration engine for uploads and media
// inserts. Blocks it produces must be added through InsertBlock.
func (s *Session) Hydrator() *hydrate.Engine { return s.engine }

// SetTitle renames the document.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Title = title
	s.touchLocked()
}

// InsertSection adds a section under parentID, or at the root when
// parentID is empty.
func (s *Session) InsertSection(title, parentID string) doctree.Section {
	sec := doctree.NewSection(title)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Content.Sections = doctree.InsertSection(s.doc.Content.Sections, parentID, sec)
	s.touchLocked()
	return sec
}

// DeleteSection removes the section subtree and deletes every asset it
// referenced.
func (s *Session) DeleteSection(ctx context.Context, id string) error {
	s.mu.Lock()
	next, released, err := doctree.DeleteSection(s.doc.Content.Sections, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.doc.Content.Sections = next
	s.touchLocked()
	s.mu.Unlock()

	s.releaseAssets(ctx, released)
	return nil
}

// UpdateSectionTitle renames a section.
func (s *Session) UpdateSectionTitle(id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Content.Sections = doctree.UpdateSectionTitle(s.doc.Content.Sections, id, title)
	s.touchLocked()
}

// MoveSection reparents a section. Reports whether the move happened.
func (s *Session) MoveSection(id, newParentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, moved := doctree.MoveSection(s.doc.Content.Sections, id, newParentID)
	if moved {
		s.doc.Content.Sections = next
		s.touchLocked()
	}
	return moved
}

// InsertBlock places b in the section, after afterBlockID or appended.
func (s *Session) InsertBlock(sectionID string, b doctree.Block, afterBlockID string) {
	s.withSectionContent(sectionID, func(content []doctree.Block) ([]doctree.Block, string) {
		return doctree.InsertBlock(content, b, afterBlockID), ""
	})
}

// UpdateBlock replaces the block with the same id.
func (s *Session) UpdateBlock(sectionID string, b doctree.Block) {
	s.withSectionContent(sectionID, func(content []doctree.Block) ([]doctree.Block, string) {
		return doctree.UpdateBlock(content, b), ""
	})
}

// DeleteBlock removes the block and deletes its asset if it carried one.
func (s *Session) DeleteBlock(ctx context.Context, sectionID, blockID string) {
	released := s.withSectionContent(sectionID, func(content []doctree.Block) ([]doctree.Block, string) {
		return doctree.DeleteBlock(content, blockID)
	})
	if released != "" {
		s.releaseAssets(ctx, []string{released})
	}
}

// MoveBlock reorders the block within its section.
func (s *Session) MoveBlock(sectionID, blockID string, toIndex int) {
	s.withSectionContent(sectionID, func(content []doctree.Block) ([]doctree.Block, string) {
		return doctree.MoveBlock(content, blockID, toIndex), ""
	})
}

// withSectionContent applies op to the section's block list under the
// session lock. Unknown section ids are a no-op.
func (s *Session) withSectionContent(sectionID string, op func([]doctree.Block) ([]doctree.Block, string)) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := doctree.FindSection(s.doc.Content.Sections, sectionID)
	if sec == nil {
		return ""
	}
	next, released := op(sec.Content)
	s.doc.Content.Sections = doctree.ReplaceSectionContent(s.doc.Content.Sections, sectionID, next)
	s.touchLocked()
	return released
}

// releaseAssets evicts cached display refs and deletes the payloads.
func (s *Session) releaseAssets(ctx context.Context, ids []string) {
	for _, id := range ids {
		s.engine.Cache().Evict(id)
		if err := s.blobs.Delete(ctx, id); err != nil {
			s.logger.Warn("asset delete failed", "asset", id, "error", err)
		}
	}
}

// touchLocked stamps the modification time and schedules an autosave.
// Caller holds s.mu.
func (s *Session) touchLocked() {
	s.doc.LastModified = time.Now().UTC()
	if s.closed {
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.autosave)
		return
	}
	s.timer.Reset(s.debounce)
}

// autosave persists the tree as it stands when the debounce fires.
func (s *Session) autosave() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.save(ctx); err != nil {
		s.logger.Warn("autosave failed", "error", err)
	}
}

// save writes the dehydrated document. The snapshot is taken by value
// under the lock; the write happens outside it.
func (s *Session) save(ctx context.Context) error {
	s.mu.Lock()
	snapshot := hydrate.DehydrateDocument(s.doc)
	s.mu.Unlock()
	if err := s.docs.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("session: save %s: %w", snapshot.ID, err)
	}
	return nil
}

// Flush cancels any pending autosave and persists immediately.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	return s.save(ctx)
}

// Close flushes pending changes and releases every display reference the
// session holds. Safe to call once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	err := s.save(ctx)
	s.engine.Close()
	return err
}

// DeleteDocument removes the document and every asset the whole tree
// references, then closes the session.
func (s *Session) DeleteDocument(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session: already closed")
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	id := s.doc.ID
	assetIDs := doctree.CollectAttachmentIDs(s.doc.Content.Sections)
	s.mu.Unlock()

	s.releaseAssets(ctx, assetIDs)
	s.engine.Close()
	if err := s.docs.Delete(ctx, id); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}
