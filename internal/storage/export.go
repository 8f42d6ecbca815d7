package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/usersearch/go-services/internal/models"
)

// PresignTTL is how long export download links stay valid.
const PresignTTL = 15 * time.Minute

// ObjectStore is the object storage capability snapshot export needs.
type ObjectStore interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// SnapshotKey names an export object by its UTC creation time.
func SnapshotKey(now time.Time) string {
	return "exports/users-" + now.UTC().Format("20060102T150405Z") + ".ndjson"
}

// Snapshot is the result of WriteSnapshot.
type Snapshot struct {
	Key   string `json:"key"`
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// WriteSnapshot uploads hits as newline-delimited JSON (one {id, details}
// object per line) and returns a presigned download link.
func WriteSnapshot(ctx context.Context, store ObjectStore, key string, hits []models.Hit) (*Snapshot, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, h := range hits {
		if err := enc.Encode(h); err != nil {
			return nil, fmt.Errorf("encode %s: %w", h.ID, err)
		}
	}
	if err := store.UploadFile(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/x-ndjson"); err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}
	link, err := store.GetPresignedURL(ctx, key, PresignTTL)
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}
	return &Snapshot{Key: key, URL: link, Count: len(hits)}, nil
}
