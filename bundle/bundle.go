// Package bundle moves whole document sets across process boundaries: full
// owner backups with embedded asset payloads, single-document project
// archives, markdown export, and the periodic snapshot engine.
package bundle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/docstore"
	"github.com/skaldworks/skald/doctree"
	"github.com/skaldworks/skald/hydrate"
)

// Version is the backup format version this package writes and accepts.
const Version = "2.0"

// ErrInvalidBundle is returned when a backup payload fails shape validation.
var ErrInvalidBundle = errors.New("bundle: invalid backup")

// AssetEntry is one asset record with its payload inlined.
type AssetEntry struct {
	blobstore.Asset
	Data string `json:"data"` // base64 payload
}

// Backup is the portable owner-level backup document.
type Backup struct {
	Version   string              `json:"version"`
	Timestamp time.Time           `json:"timestamp"`
	Documents []*doctree.Document `json:"documents"`
	Assets    []AssetEntry        `json:"assets"`
}

// Export captures every document owned by ownerID plus each asset any of
// them references, payloads included. Documents are stored dehydrated.
// Assets that no longer resolve are skipped with a diagnostic; the backup
// still covers everything that exists.
func Export(ctx context.Context, store docstore.Store, blobs blobstore.Store, ownerID string) (*Backup, error) {
	docs, err := store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("bundle: list documents: %w", err)
	}

	b := &Backup{
		Version:   Version,
		Timestamp: time.Now().UTC(),
		Documents: make([]*doctree.Document, 0, len(docs)),
	}

	seen := map[string]bool{}
	for _, doc := range docs {
		b.Documents = append(b.Documents, hydrate.DehydrateDocument(doc))
		for _, id := range doctree.CollectAttachmentIDs(doc.Content.Sections) {
			if seen[id] {
				continue
			}
			seen[id] = true
			asset, data, err := blobs.Get(ctx, id)
			if err != nil {
				slog.Warn("backup skipping unresolvable asset", "asset", id, "error", err)
				continue
			}
			b.Assets = append(b.Assets, AssetEntry{
				Asset: asset,
				Data:  base64.StdEncoding.EncodeToString(data),
			})
		}
	}
	return b, nil
}

// Write encodes the backup as indented JSON.
func Write(w io.Writer, b *Backup) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("bundle: encode backup: %w", err)
	}
	return nil
}

// Read decodes and validates a backup. The payload must carry a version
// string and a documents array; anything else is ErrInvalidBundle.
func Read(r io.Reader) (*Backup, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("bundle: read backup: %w", err)
	}

	var probe struct {
		Version   *string          `json:"version"`
		Documents *json.RawMessage `json:"documents"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", ErrInvalidBundle, err)
	}
	if probe.Version == nil || *probe.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidBundle)
	}
	if probe.Documents == nil {
		return nil, fmt.Errorf("%w: missing documents array", ErrInvalidBundle)
	}

	var b Backup
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	return &b, nil
}

// RestoreReport summarizes one restore pass.
type RestoreReport struct {
	Documents int      // documents written
	Assets    int      // assets written
	Skipped   int      // documents belonging to another owner
	Failed    []string // document ids whose save failed
}

// Restore writes the backup's documents and referenced assets into the
// given stores. Only documents owned by ownerID are restored, and only
// assets some restored document references. Per-document failures are
// reported; siblings continue.
func Restore(ctx context.Context, b *Backup, store docstore.Store, blobs blobstore.Store, ownerID string) (*RestoreReport, error) {
	if b.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidBundle, b.Version)
	}

	report := &RestoreReport{}
	referenced := map[string]bool{}
	var restore []*doctree.Document
	for _, doc := range b.Documents {
		if doc.OwnerID != ownerID {
			report.Skipped++
			continue
		}
		restore = append(restore, doc)
		for _, id := range doctree.CollectAttachmentIDs(doc.Content.Sections) {
			referenced[id] = true
		}
	}

	for _, entry := range b.Assets {
		if !referenced[entry.ID] {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(entry.Data)
		if err != nil {
			slog.Warn("restore skipping undecodable asset", "asset", entry.ID, "error", err)
			continue
		}
		if err := blobs.Put(ctx, entry.Asset, data); err != nil {
			slog.Warn("restore asset write failed", "asset", entry.ID, "error", err)
			continue
		}
		report.Assets++
	}

	for _, doc := range restore {
		if err := store.Save(ctx, hydrate.DehydrateDocument(doc)); err != nil {
			slog.Warn("restore document write failed", "document", doc.ID, "error", err)
			report.Failed = append(report.Failed, doc.ID)
			continue
		}
		report.Documents++
	}
	return report, nil
}
