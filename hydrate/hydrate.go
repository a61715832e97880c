// Package hydrate bridges the durable block representation (attachment ids
// only) and the working representation (ids plus resolved display
// references).
//
// Load path: Hydrate resolves every media block's attachment to a display
// reference through a per-session cache, migrating legacy inline-encoded
// attachments to blob-store references on the way. Save path: Dehydrate
// strips the ephemeral references so the durable record never contains
// them.
package hydrate

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/doctree"
)

// Config configures an Engine.
type Config struct {
	Blobs  blobstore.Store
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine resolves attachments for one editing session. Close releases
// every display reference the session acquired.
type Engine struct {
	blobs  blobstore.Store
	logger *slog.Logger
	cache  *RefCache
}

// New creates a hydration engine with a fresh session cache.
func New(cfg Config) *Engine {
	cfg.defaults()
	return &Engine{
		blobs:  cfg.Blobs,
		logger: cfg.Logger,
		cache:  NewRefCache(cfg.Blobs),
	}
}

// Cache exposes the session's display-ref cache.
func (e *Engine) Cache() *RefCache { return e.cache }

// Close releases all cached display references.
func (e *Engine) Close() { e.cache.Close() }

// Report summarizes one Hydrate pass. Failed counts blocks whose asset
// could not be resolved; their content degrades to missing, the pass still
// succeeds.
type Report struct {
	Hydrated int
	Migrated int
	Failed   int
}

// Hydrate returns a copy of the tree with every media block's
// AttachmentData set to a resolved display URL. Blocks holding legacy
// inline payloads (AttachmentData without AttachmentID) are migrated: the
// payload is stored in the blob store and the block rewritten to reference
// form. When the report shows Migrated > 0 the caller must re-persist so
// the durable record never regresses to inline form.
//
// A blob-store failure on one block never aborts the pass: the block's
// AttachmentData stays unset and the failure is counted in the report.
// Blocks within a section hydrate concurrently; sections are walked
// independently.
func (e *Engine) Hydrate(ctx context.Context, sections []doctree.Section) ([]doctree.Section, *Report, error) {
	out := doctree.CloneTree(sections)
	report := &Report{}
	var mu sync.Mutex

	var walk func(list []doctree.Section)
	walk = func(list []doctree.Section) {
		for i := range list {
			var wg sync.WaitGroup
			for j := range list[i].Content {
				block := &list[i].Content[j]
				if !block.Type.IsMedia() {
					continue
				}
				if block.AttachmentID == "" && !isInlineData(block.AttachmentData) {
					// Empty media block: nothing to resolve or migrate.
					block.AttachmentData = ""
					continue
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					migrated, err := e.hydrateBlock(ctx, block)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err != nil:
						report.Failed++
					case migrated:
						report.Migrated++
						report.Hydrated++
					default:
						report.Hydrated++
					}
				}()
			}
			wg.Wait()
			walk(list[i].Children)
		}
	}
	walk(out)

	if report.Failed > 0 {
		e.logger.Warn("hydration completed with degraded blocks",
			"failed", report.Failed, "hydrated", report.Hydrated)
	}
	return out, report, nil
}

// hydrateBlock mutates one owned block in place. Returns whether a legacy
// migration happened.
func (e *Engine) hydrateBlock(ctx context.Context, b *doctree.Block) (bool, error) {
	migrated := false

	if b.AttachmentID == "" {
		// Reached only with inline legacy data; the walk filters empties.
		if err := e.migrateInline(ctx, b); err != nil {
			e.logger.Warn("inline attachment migration failed", "block", b.ID, "error", err)
			b.AttachmentData = ""
			return false, err
		}
		migrated = true
	}

	ref, err := e.cache.Get(ctx, b.AttachmentID)
	if err != nil {
		e.logger.Warn("attachment resolve failed",
			"block", b.ID, "attachment", b.AttachmentID, "error", err)
		b.AttachmentData = ""
		return migrated, err
	}
	b.AttachmentData = ref.URL
	return migrated, nil
}

// migrateInline persists a legacy data-URL payload to the blob store and
// rewrites the block to reference form.
func (e *Engine) migrateInline(ctx context.Context, b *doctree.Block) error {
	mimeType, payload, err := decodeDataURL(b.AttachmentData)
	if err != nil {
		return fmt.Errorf("decode inline payload: %w", err)
	}
	name := b.AttachmentName
	if name == "" {
		name = b.ID
	}
	asset, err := e.blobs.Save(ctx, payload, name, mimeType)
	if err != nil {
		return fmt.Errorf("store inline payload: %w", err)
	}
	b.AttachmentID = asset.ID
	b.AttachmentName = asset.Name
	b.AttachmentType = asset.Type
	e.logger.Info("migrated inline attachment", "block", b.ID, "asset", asset.ID, "size", asset.Size)
	return nil
}

// Dehydrate returns a copy of the tree with AttachmentData stripped from
// every block. The durable record carries attachment ids only.
func Dehydrate(sections []doctree.Section) []doctree.Section {
	out := doctree.CloneTree(sections)
	var walk func(list []doctree.Section)
	walk = func(list []doctree.Section) {
		for i := range list {
			for j := range list[i].Content {
				list[i].Content[j].AttachmentData = ""
			}
			walk(list[i].Children)
		}
	}
	walk(out)
	return out
}

// DehydrateDocument is Dehydrate over a whole document, returning a
// persistence-ready copy.
func DehydrateDocument(doc *doctree.Document) *doctree.Document {
	out := doc.Clone()
	out.Content.Sections = Dehydrate(out.Content.Sections)
	return out
}

// StoreMedia runs the single-phase media insert for pdf and video blocks:
// store the payload, then build a block referencing the new asset with its
// display reference already resolved in the session cache.
func (e *Engine) StoreMedia(ctx context.Context, blockType doctree.BlockType, name, mimeType string, data []byte) (doctree.Block, error) {
	if !blockType.IsMedia() {
		return doctree.Block{}, fmt.Errorf("hydrate: %s is not a media block type", blockType)
	}
	asset, err := e.blobs.Save(ctx, data, name, mimeType)
	if err != nil {
		return doctree.Block{}, fmt.Errorf("hydrate: store media: %w", err)
	}
	b := doctree.NewBlock(blockType)
	b.AttachmentID = asset.ID
	b.AttachmentName = asset.Name
	b.AttachmentType = asset.Type

	ref, err := e.cache.Get(ctx, asset.ID)
	if err != nil {
		// The asset is durably stored; the block just renders as missing
		// until the next successful hydrate.
		e.logger.Warn("display ref unavailable for new media", "asset", asset.ID, "error", err)
		return b, nil
	}
	b.AttachmentData = ref.URL
	return b, nil
}

func isInlineData(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// decodeDataURL splits a "data:<mime>;base64,<payload>" string.
func decodeDataURL(s string) (mimeType string, payload []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	mimeType = meta
	if cut, found := strings.CutSuffix(meta, ";base64"); found {
		mimeType = cut
	} else {
		return "", nil, fmt.Errorf("unsupported data URL encoding %q", meta)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	payload, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decode base64: %w", err)
	}
	return mimeType, payload, nil
}
