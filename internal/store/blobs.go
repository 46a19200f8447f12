package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BlobMeta describes a stored container blob.
type BlobMeta struct {
	Container string
	Size      int
	UpdatedAt time.Time
}

// SaveBlob writes the record blob for a container, replacing any earlier
// one.
func (s *Store) SaveBlob(ctx context.Context, container string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO container_blobs (container, blob, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(container) DO UPDATE SET
			blob = excluded.blob,
			updated_at = excluded.updated_at
	`, container, blob, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save blob %s: %w", container, err)
	}
	return nil
}

// LoadBlob returns the stored blob for a container, or nil when none was
// saved.
func (s *Store) LoadBlob(ctx context.Context, container string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT blob FROM container_blobs WHERE container = ?
	`, container).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load blob %s: %w", container, err)
	}
	return blob, nil
}

// DeleteBlob removes a container's blob. Missing blobs are not an error.
func (s *Store) DeleteBlob(ctx context.Context, container string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM container_blobs WHERE container = ?`, container); err != nil {
		return fmt.Errorf("delete blob %s: %w", container, err)
	}
	return nil
}

// ListBlobs describes every stored blob, ordered by container.
func (s *Store) ListBlobs(ctx context.Context) ([]BlobMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT container, length(blob), updated_at
		FROM container_blobs
		ORDER BY container COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query blobs: %w", err)
	}
	defer rows.Close()

	metas := []BlobMeta{}
	for rows.Next() {
		var (
			m       BlobMeta
			updated int64
		)
		if err := rows.Scan(&m.Container, &m.Size, &updated); err != nil {
			return nil, fmt.Errorf("scan blob: %w", err)
		}
		m.UpdatedAt = time.UnixMilli(updated)
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blobs: %w", err)
	}
	return metas, nil
}
