package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// MinIOChunkStore stages chunk bytes in a dedicated temporary bucket, keyed
// "<sessionID>/chunk_<index>". Useful when API instances don't share a disk.
type MinIOChunkStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOChunkStore constructs a chunk store over the given temp bucket.
func NewMinIOChunkStore(client *minio.Client, bucket string) *MinIOChunkStore {
	return &MinIOChunkStore{client: client, bucket: bucket}
}

func (s *MinIOChunkStore) Put(ctx context.Context, sessionID uuid.UUID, index int, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.chunkKey(sessionID, index),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("stage chunk %d: %w", index, err)
	}
	return nil
}

func (s *MinIOChunkStore) Get(ctx context.Context, sessionID uuid.UUID, index int) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.chunkKey(sessionID, index), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch chunk %d: %w", index, err)
	}
	return obj, nil
}

func (s *MinIOChunkStore) DeleteAll(ctx context.Context, sessionID uuid.UUID) error {
	prefix := sessionID.String() + "/"
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("list staged chunks: %w", obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove staged chunk %q: %w", obj.Key, err)
		}
	}
	return nil
}

// Sessions lists session ids that still hold staged chunks.
func (s *MinIOChunkStore) Sessions(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: false}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list staged sessions: %w", obj.Err)
		}
		name := strings.TrimSuffix(obj.Key, "/")
		id, err := uuid.Parse(name)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MinIOChunkStore) chunkKey(sessionID uuid.UUID, index int) string {
	return fmt.Sprintf("%s/chunk_%05d", sessionID.String(), index)
}
