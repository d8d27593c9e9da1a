package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

// StoredSession is a durable session record with its uploaded chunk rows.
type StoredSession struct {
	Session Session
	Chunks  []ChunkRecord
}

// Repository mirrors registry state to PostgreSQL so uploads survive process
// restarts. The in-memory registry stays the source of truth during a run.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a new upload repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveSession upserts the session record.
func (r *Repository) SaveSession(ctx context.Context, snap Session) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO upload_sessions (
	id, owner_id, file_name, mime_type, total_size, chunk_size, chunk_count,
	state, uploaded_size, expected_sha256, target_bucket, location,
	content_hash, failure_reason, created_at, last_activity, expires_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (id) DO UPDATE SET
	state = EXCLUDED.state,
	uploaded_size = EXCLUDED.uploaded_size,
	location = EXCLUDED.location,
	content_hash = EXCLUDED.content_hash,
	failure_reason = EXCLUDED.failure_reason,
	last_activity = EXCLUDED.last_activity,
	expires_at = EXCLUDED.expires_at;`

	_, err := r.pool.Exec(ctx, query,
		snap.ID,
		snap.OwnerID,
		snap.FileName,
		snap.MimeType,
		snap.TotalSize,
		snap.ChunkSize,
		snap.ChunkCount,
		string(snap.State),
		snap.UploadedSize,
		snap.ExpectedSHA256,
		snap.TargetBucket,
		snap.Location,
		snap.ContentHash,
		snap.FailureReason,
		snap.CreatedAt,
		snap.LastActivity,
		snap.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save upload session: %w", err)
	}
	return nil
}

// SaveChunk upserts one chunk record.
func (r *Repository) SaveChunk(ctx context.Context, sessionID uuid.UUID, rec ChunkRecord) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO upload_chunks (session_id, chunk_index, size, sha256, retries, uploaded, last_attempt, uploaded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id, chunk_index) DO UPDATE SET
	sha256 = EXCLUDED.sha256,
	retries = EXCLUDED.retries,
	uploaded = EXCLUDED.uploaded,
	last_attempt = EXCLUDED.last_attempt,
	uploaded_at = EXCLUDED.uploaded_at;`

	_, err := r.pool.Exec(ctx, query,
		sessionID,
		rec.Index,
		rec.Size,
		rec.SHA256,
		rec.Retries,
		rec.Uploaded,
		rec.LastAttempt,
		rec.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("save upload chunk: %w", err)
	}
	return nil
}

// LoadActive returns the non-terminal sessions with their uploaded chunks,
// for registry recovery at startup.
func (r *Repository) LoadActive(ctx context.Context) ([]StoredSession, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT id, owner_id, file_name, mime_type, total_size, chunk_size, chunk_count,
       state, uploaded_size, expected_sha256, target_bucket, location,
       content_hash, failure_reason, created_at, last_activity, expires_at
FROM upload_sessions
WHERE state IN ('active', 'paused')
ORDER BY created_at;`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load active sessions: %w", err)
	}
	defer rows.Close()

	var stored []StoredSession
	for rows.Next() {
		var snap Session
		var state string
		if err := rows.Scan(
			&snap.ID, &snap.OwnerID, &snap.FileName, &snap.MimeType,
			&snap.TotalSize, &snap.ChunkSize, &snap.ChunkCount,
			&state, &snap.UploadedSize, &snap.ExpectedSHA256, &snap.TargetBucket,
			&snap.Location, &snap.ContentHash, &snap.FailureReason,
			&snap.CreatedAt, &snap.LastActivity, &snap.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan upload session: %w", err)
		}
		snap.State = State(state)
		stored = append(stored, StoredSession{Session: snap})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upload sessions: %w", err)
	}

	for i := range stored {
		chunks, err := r.loadChunks(ctx, stored[i].Session.ID)
		if err != nil {
			return nil, err
		}
		stored[i].Chunks = chunks
	}
	return stored, nil
}

func (r *Repository) loadChunks(ctx context.Context, sessionID uuid.UUID) ([]ChunkRecord, error) {
	query := `
SELECT chunk_index, size, sha256, retries, uploaded, last_attempt, uploaded_at
FROM upload_chunks
WHERE session_id = $1
ORDER BY chunk_index;`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		var rec ChunkRecord
		if err := rows.Scan(&rec.Index, &rec.Size, &rec.SHA256, &rec.Retries,
			&rec.Uploaded, &rec.LastAttempt, &rec.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan chunk record: %w", err)
		}
		chunks = append(chunks, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk records: %w", err)
	}
	return chunks, nil
}
