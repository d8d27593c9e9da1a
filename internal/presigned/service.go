package presigned

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// Service issues short-lived download URLs for objects persisted to MinIO.
// It only applies to sessions finalized through the MinIO backend; objects
// handed to an HTTP backend are served by that service instead.
type Service struct {
	minioClient *minio.Client
	ttl         time.Duration
}

func NewService(minioClient *minio.Client, ttl time.Duration) *Service {
	return &Service{
		minioClient: minioClient,
		ttl:         ttl,
	}
}

// DownloadURL presigns a GET for the stored object at location and reports
// when the URL expires. Requested TTLs outside (0, s.ttl] fall back to the
// service default. The filename is offered to the browser through a
// content-disposition override, since object keys carry session identifiers
// rather than the original name.
func (s *Service) DownloadURL(ctx context.Context, location, filename string, ttl time.Duration) (string, time.Time, error) {
	bucket, object, err := splitLocation(location)
	if err != nil {
		return "", time.Time{}, err
	}
	ttl = s.clampTTL(ttl)

	reqParams := make(url.Values)
	if filename != "" {
		reqParams.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}

	u, err := s.minioClient.PresignedGetObject(
		ctx,
		bucket,
		object,
		ttl,
		reqParams,
	)
	if err != nil {
		return "", time.Time{}, err
	}

	return u.String(), time.Now().Add(ttl), nil
}

func (s *Service) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > s.ttl {
		return s.ttl
	}
	return ttl
}

// splitLocation parses "bucket/owner-id/session-id" into bucket and object key.
func splitLocation(location string) (bucket, object string, err error) {
	bucket, object, ok := strings.Cut(location, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("location %q is not a bucket-qualified object key", location)
	}
	return bucket, object, nil
}
