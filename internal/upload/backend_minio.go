package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

// MinIOBackend persists assembled objects to a MinIO bucket.
type MinIOBackend struct {
	client *minio.Client
	bucket string
}

// NewMinIOBackend constructs the backend over the default bucket. A session's
// target bucket, when set, overrides it per object.
func NewMinIOBackend(client *minio.Client, bucket string) *MinIOBackend {
	return &MinIOBackend{client: client, bucket: bucket}
}

func (b *MinIOBackend) Store(ctx context.Context, info ObjectInfo, open func() (io.ReadCloser, error), size int64) (StoredObject, error) {
	bucket := b.bucket
	if info.Bucket != "" {
		bucket = info.Bucket
	}
	objectName := fmt.Sprintf("%s/%s", info.OwnerID.String(), info.SessionID.String())

	body, err := open()
	if err != nil {
		return StoredObject{}, fmt.Errorf("open assembled object: %w", err)
	}
	defer body.Close()

	hasher := sha256.New()
	reader := io.TeeReader(body, hasher)

	_, err = b.client.PutObject(ctx, bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: info.MimeType,
		UserMetadata: map[string]string{
			"original-filename": info.FileName,
		},
	})
	if err != nil {
		return StoredObject{}, fmt.Errorf("store object: %w", err)
	}

	return StoredObject{
		Location:    fmt.Sprintf("%s/%s", bucket, objectName),
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}
