// Package gcs stores imported documents in a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/google/uuid"
)

const uploadTimeout = 2 * time.Minute

// Storage writes document bytes under per-organization keys.
type Storage struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewStorage creates a Storage with its own client.
// It assumes Application Default Credentials are configured.
func NewStorage(ctx context.Context, bucket string) (*Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStorage: creating storage client: %w", err)
	}
	return NewStorageWithClient(client, bucket), nil
}

// NewStorageWithClient creates a Storage on an existing client.
func NewStorageWithClient(client *storage.Client, bucket string) *Storage {
	return &Storage{client: client, bucket: bucket, now: time.Now}
}

// Close closes the storage client.
func (s *Storage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Save uploads data and returns its key, size and SHA-256 checksum.
func (s *Storage) Save(ctx context.Context, orgID string, data []byte, mimeType, originalName string) (*domain.StoredObject, error) {
	sum := sha256.Sum256(data)
	key := ObjectKey(orgID, s.now().UTC(), uuid.NewString(), originalName)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = mimeType
	w.Metadata = map[string]string{"original_name": originalName}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("Save: copy to GCS writer: %w", err)
	}
	// Close finalizes the upload
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("Save: finalize upload: %w", err)
	}

	return &domain.StoredObject{
		Key:            key,
		Size:           int64(len(data)),
		ChecksumSHA256: hex.EncodeToString(sum[:]),
	}, nil
}

// Delete removes the object stored under key. An object that is already
// gone counts as deleted.
func (s *Storage) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("Delete: removing GCS object %q: %w", key, err)
	}
	return nil
}

// ObjectKey builds the storage key for a document:
// documents/<org>/<yyyy>/<mm>/<id>-<name>.
func ObjectKey(orgID string, at time.Time, id, originalName string) string {
	return path.Join("documents", orgID, at.Format("2006"), at.Format("01"), id+"-"+safeName(originalName))
}

func safeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 || name == "." || name == "/" {
		return "document"
	}
	return b.String()
}

var _ pipeline.DocumentStorage = (*Storage)(nil)
