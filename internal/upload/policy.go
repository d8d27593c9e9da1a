package upload

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/docker/go-units"
)

// Chunk size ladder: small files get small chunks to keep retry cost low,
// large files get large chunks to keep per-chunk overhead down.
var sizeLadder = []struct {
	upTo  int64
	chunk int64
}{
	{16 * units.MiB, 1 * units.MiB},
	{256 * units.MiB, 4 * units.MiB},
	{1 * units.GiB, 8 * units.MiB},
	{4 * units.GiB, 16 * units.MiB},
}

const ladderCeiling = 32 * units.MiB

// chunkSizeFor picks a chunk size from the ladder for the given total,
// clamped to the configured bounds.
func chunkSizeFor(totalSize, minChunk, maxChunk int64) int64 {
	chunk := int64(ladderCeiling)
	for _, step := range sizeLadder {
		if totalSize <= step.upTo {
			chunk = step.chunk
			break
		}
	}
	if chunk < minChunk {
		chunk = minChunk
	}
	if chunk > maxChunk {
		chunk = maxChunk
	}
	return chunk
}

// retryBackoff computes the hint for the given prior-failure count:
// min(base * 2^attempt, limit).
func retryBackoff(base, limit time.Duration, attempt int) time.Duration {
	backoff := base
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	if backoff > limit {
		return limit
	}
	return backoff
}

func (s *Service) validateCreate(in CreateInput) error {
	if err := validateFilename(in.FileName, s.cfg.MaxFilenameLength); err != nil {
		return err
	}
	if in.TotalSize <= 0 {
		return &ValidationError{Field: "total_size", Reason: "must be positive"}
	}
	if s.cfg.MaxFileSize > 0 && in.TotalSize > s.cfg.MaxFileSize {
		return &ValidationError{
			Field:  "total_size",
			Reason: fmt.Sprintf("exceeds limit of %s", units.BytesSize(float64(s.cfg.MaxFileSize))),
		}
	}
	if err := validateMimeType(in.MimeType, s.cfg.AllowedMIMETypes); err != nil {
		return err
	}
	if in.ExpectedSHA256 != "" && !isHexDigest(in.ExpectedSHA256) {
		return &ValidationError{Field: "expected_sha256", Reason: "must be a 64-character hex digest"}
	}
	return nil
}

// resolveChunkSize applies the ladder, or validates a caller-requested size
// against the configured bounds. Out-of-bounds requests are rejected rather
// than silently clamped.
func (s *Service) resolveChunkSize(totalSize, requested int64) (int64, error) {
	if requested == 0 {
		return chunkSizeFor(totalSize, s.cfg.MinChunkSize, s.cfg.MaxChunkSize), nil
	}
	if requested < s.cfg.MinChunkSize || requested > s.cfg.MaxChunkSize {
		return 0, &ValidationError{
			Field: "chunk_size",
			Reason: fmt.Sprintf("must be between %s and %s",
				units.BytesSize(float64(s.cfg.MinChunkSize)),
				units.BytesSize(float64(s.cfg.MaxChunkSize))),
		}
	}
	return requested, nil
}

func validateFilename(name string, maxLen int) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "file_name", Reason: "must not be empty"}
	}
	if maxLen > 0 && len(name) > maxLen {
		return &ValidationError{Field: "file_name", Reason: fmt.Sprintf("longer than %d characters", maxLen)}
	}
	if strings.ContainsAny(name, `/\`) {
		return &ValidationError{Field: "file_name", Reason: "must not contain path separators"}
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return &ValidationError{Field: "file_name", Reason: "must not contain control characters"}
		}
	}
	if name == "." || name == ".." {
		return &ValidationError{Field: "file_name", Reason: "reserved name"}
	}
	return nil
}

func validateMimeType(mimeType string, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if strings.HasSuffix(a, "/") {
			if strings.HasPrefix(mimeType, a) {
				return nil
			}
			continue
		}
		if mimeType == a {
			return nil
		}
	}
	return &ValidationError{Field: "mime_type", Reason: fmt.Sprintf("%q is not allowed", mimeType)}
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func normalizeMimeType(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
