package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FSStore keeps chunk bytes on the local filesystem, one directory per
// session, one zero-padded file per chunk index.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns the store.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk root %q: %w", root, err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Put(ctx context.Context, sessionID uuid.UUID, index int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(s.chunkPath(sessionID, index), data, 0o644); err != nil {
		return fmt.Errorf("write chunk %d: %w", index, err)
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, sessionID uuid.UUID, index int) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.chunkPath(sessionID, index))
	if err != nil {
		return nil, fmt.Errorf("open chunk %d: %w", index, err)
	}
	return f, nil
}

func (s *FSStore) DeleteAll(ctx context.Context, sessionID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}

// Sessions lists session ids that still hold chunk data. Entries that are not
// session directories are ignored.
func (s *FSStore) Sessions(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read chunk root: %w", err)
	}

	var ids []uuid.UUID
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := uuid.Parse(entry.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *FSStore) sessionDir(sessionID uuid.UUID) string {
	return filepath.Join(s.root, sessionID.String())
}

func (s *FSStore) chunkPath(sessionID uuid.UUID, index int) string {
	return filepath.Join(s.sessionDir(sessionID), fmt.Sprintf("chunk_%05d", index))
}
