// Package export writes JSON snapshots of all notes to object storage.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kuitang/tagnotes/internal/notes"
	"github.com/kuitang/tagnotes/internal/obs"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "exports/"

// SnapshotVersion is bumped when the document shape changes.
const SnapshotVersion = 1

// Snapshot is the exported document.
type Snapshot struct {
	Version    int          `json:"version"`
	ExportedAt time.Time    `json:"exported_at"`
	Count      int          `json:"count"`
	Notes      []notes.Note `json:"notes"`
}

// Lister is satisfied by *notes.Service.
type Lister interface {
	ListAll(ctx context.Context) ([]notes.Note, error)
}

// ObjectStore is satisfied by *s3client.Client.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Exporter snapshots notes into an ObjectStore.
type Exporter struct {
	notes   Lister
	objects ObjectStore
	prefix  string
	now     func() time.Time
}

// New creates an Exporter. An empty prefix takes DefaultPrefix.
func New(lister Lister, objects ObjectStore, prefix string) *Exporter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Exporter{notes: lister, objects: objects, prefix: prefix, now: time.Now}
}

// Export writes one snapshot and returns its object key.
func (e *Exporter) Export(ctx context.Context) (string, *Snapshot, error) {
	all, err := e.notes.ListAll(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to list notes: %w", err)
	}

	now := e.now().UTC()
	snap := &Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: now,
		Count:      len(all),
		Notes:      all,
	}
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := e.objectKey(now)
	if err := e.objects.PutObject(ctx, key, body, "application/json"); err != nil {
		return "", nil, fmt.Errorf("failed to upload snapshot: %w", err)
	}

	obs.From(ctx).Info("notes exported", "key", key, "count", snap.Count, "bytes", len(body))
	return key, snap, nil
}

// Load reads a snapshot previously written by Export.
func (e *Exporter) Load(ctx context.Context, key string) (*Snapshot, error) {
	body, err := e.objects.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// objectKey sorts lexically by time; the uuid suffix keeps concurrent exports apart.
func (e *Exporter) objectKey(now time.Time) string {
	return e.prefix + "notes-" + now.Format("20060102T150405.000Z") + "-" + uuid.NewString() + ".json"
}
