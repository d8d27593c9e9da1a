package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// finalizeLocked reassembles and verifies a fully uploaded session, hands the
// object to the storage backend and settles the terminal state. The caller
// holds e.mu; since only the submission that observes the last chunk under
// that lock reaches here, the trigger is exactly-once. Verification failures
// and backend failures both leave chunk storage in place: the former for
// diagnosis, the latter so finalization can be retried without re-uploading.
func (s *Service) finalizeLocked(ctx context.Context, e *session) ([]Event, error) {
	now := s.clock.Now()

	verifiedHash, err := s.verifyAssembled(ctx, e)
	if err != nil {
		evs := s.failLocked(ctx, e, now, err.Error())
		return evs, &TerminalError{Stage: "reassembly", Index: -1, Err: err}
	}

	info := ObjectInfo{
		SessionID: e.id,
		OwnerID:   e.owner,
		FileName:  e.fileName,
		MimeType:  e.mimeType,
		Bucket:    e.targetBucket,
	}
	open := func() (io.ReadCloser, error) {
		return s.assembledReader(ctx, e.id, len(e.chunks)), nil
	}

	stored, err := s.backend.Store(ctx, info, open, e.totalSize)
	if err != nil {
		evs := s.failLocked(ctx, e, now, fmt.Sprintf("finalize: %v", err))
		return evs, &TerminalError{Stage: "finalize", Index: -1, Err: err}
	}

	e.state = StateCompleted
	e.location = stored.Location
	e.contentHash = stored.ContentHash
	if e.contentHash == "" {
		e.contentHash = verifiedHash
	}
	e.lastActivity = now
	s.persistSession(ctx, e.snapshot())

	if err := s.chunks.DeleteAll(ctx, e.id); err != nil {
		s.log.Warn("release chunk storage",
			zap.String("session_id", e.id.String()), zap.Error(err))
	}

	return []Event{e.event(EventSessionCompleted, -1, now)}, nil
}

// verifyAssembled streams every chunk in ascending index order, checking the
// assembled size and, when one was declared at creation, the whole-object
// hash. Returns the computed hash.
func (s *Service) verifyAssembled(ctx context.Context, e *session) (string, error) {
	hasher := sha256.New()
	n, err := s.streamChunks(ctx, e.id, len(e.chunks), hasher)
	if err != nil {
		return "", err
	}
	if n != e.totalSize {
		return "", &SizeMismatchError{Index: -1, Expected: e.totalSize, Actual: n}
	}
	computed := hex.EncodeToString(hasher.Sum(nil))
	if e.expectedSHA256 != "" && !strings.EqualFold(e.expectedSHA256, computed) {
		return "", &HashMismatchError{Index: -1, Expected: strings.ToLower(e.expectedSHA256), Actual: computed}
	}
	return computed, nil
}

func (s *Service) streamChunks(ctx context.Context, sessionID uuid.UUID, count int, w io.Writer) (int64, error) {
	var total int64
	for i := 0; i < count; i++ {
		rc, err := s.chunks.Get(ctx, sessionID, i)
		if err != nil {
			return total, fmt.Errorf("read chunk %d: %w", i, err)
		}
		n, err := io.Copy(w, rc)
		rc.Close()
		total += n
		if err != nil {
			return total, fmt.Errorf("read chunk %d: %w", i, err)
		}
	}
	return total, nil
}

// assembledReader exposes the concatenated chunks as a single object stream.
func (s *Service) assembledReader(ctx context.Context, sessionID uuid.UUID, count int) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := s.streamChunks(ctx, sessionID, count, pw)
		pw.CloseWithError(err)
	}()
	return pr
}
