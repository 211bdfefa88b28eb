package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/chorus-fm/chorus/models"
)

// DefaultMaxAttempts is the retry budget of a newly enqueued job.
const DefaultMaxAttempts = 5

// RetryPolicy computes the delay before a failed job becomes pending
// again: min(Base × Multiplier^(attempts−1), Cap).
type RetryPolicy struct {
	Base       time.Duration
	Multiplier int
	Cap        time.Duration
}

func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := p.Base
	for i := 1; i < attempts; i++ {
		d *= time.Duration(p.Multiplier)
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// EnqueueJob inserts a job unless an active (pending or running) job for
// the same (kind, entity_kind, entity_id) exists; the partial-unique
// index rejects the duplicate atomically and the existing job id is
// returned with Created=false.
func (db *DB) EnqueueJob(kind, entityKind, entityID string, priority int) (*models.EnqueueResult, error) {
	now := time.Now().UTC()
	id := uuid.NewString()

	_, err := db.Exec(`
	INSERT INTO enrichment_jobs (id, kind, entity_kind, entity_id, status, priority, attempts, max_attempts, run_after, created_at, updated_at)
	VALUES (?, ?, ?, ?, 'pending', ?, 0, ?, ?, ?, ?)`,
		id, kind, entityKind, entityID, priority, DefaultMaxAttempts, now, now, now)

	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			var existingID string
			err = db.QueryRow(`
			SELECT id FROM enrichment_jobs
			WHERE kind = ? AND entity_kind = ? AND entity_id = ? AND status IN ('pending', 'running')`,
				kind, entityKind, entityID).Scan(&existingID)
			if err != nil {
				return nil, err
			}
			return &models.EnqueueResult{JobID: existingID, Created: false, Reason: "already_active"}, nil
		}
		return nil, err
	}

	return &models.EnqueueResult{JobID: id, Created: true}, nil
}

const jobColumns = `id, kind, entity_kind, entity_id, status, priority, attempts, max_attempts, run_after, locked_at, locked_by, last_error, created_at, updated_at`

// ClaimJobs atomically transitions up to limit jobs to running for this
// worker. Eligible rows are pending with run_after due, or running with
// an expired lease (a crashed worker's leftovers). The ordered sub-select
// and the single UPDATE make the claim race-free: SQLite admits one
// writer at a time, so concurrent workers never observe a half-claimed
// batch.
func (db *DB) ClaimJobs(workerID string, limit int, leaseTimeout time.Duration) ([]*models.EnrichmentJob, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-leaseTimeout)

	rows, err := db.Query(`
	UPDATE enrichment_jobs
	SET status = 'running', locked_at = ?, locked_by = ?, updated_at = ?
	WHERE id IN (
		SELECT id FROM enrichment_jobs
		WHERE (status = 'pending' AND run_after <= ?)
		   OR (status = 'running' AND locked_at IS NOT NULL AND locked_at < ?)
		ORDER BY priority DESC, created_at ASC
		LIMIT ?
	)
	RETURNING `+jobColumns,
		now, workerID, now, now, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.EnrichmentJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CompleteJob marks a job succeeded, clears its lock and stamps the
// entity's last_enriched_at column.
func (db *DB) CompleteJob(job *models.EnrichmentJob) error {
	now := time.Now().UTC()

	_, err := db.Exec(`
	UPDATE enrichment_jobs
	SET status = 'succeeded', locked_at = NULL, locked_by = NULL, updated_at = ?
	WHERE id = ?`, now, job.ID)
	if err != nil {
		return err
	}

	return db.SetLastEnrichedAt(job.EntityKind, job.EntityID, now)
}

// FailJob increments attempts and either marks the job failed (budget
// exhausted) or reschedules it with exponential backoff.
func (db *DB) FailJob(job *models.EnrichmentJob, jobErr string, policy RetryPolicy) error {
	now := time.Now().UTC()
	attempts := job.Attempts + 1

	if attempts >= job.MaxAttempts {
		_, err := db.Exec(`
		UPDATE enrichment_jobs
		SET status = 'failed', attempts = ?, locked_at = NULL, locked_by = NULL, last_error = ?, updated_at = ?
		WHERE id = ?`, attempts, jobErr, now, job.ID)
		return err
	}

	runAfter := now.Add(policy.Backoff(attempts))
	_, err := db.Exec(`
	UPDATE enrichment_jobs
	SET status = 'pending', attempts = ?, run_after = ?, locked_at = NULL, locked_by = NULL, last_error = ?, updated_at = ?
	WHERE id = ?`, attempts, runAfter, jobErr, now, job.ID)
	return err
}

// ReapJobs deletes terminal jobs untouched for longer than ttl.
func (db *DB) ReapJobs(ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	res, err := db.Exec(`
	DELETE FROM enrichment_jobs
	WHERE status IN ('succeeded', 'failed') AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetJob returns nil, nil when the job does not exist.
func (db *DB) GetJob(id string) (*models.EnrichmentJob, error) {
	row := db.QueryRow(`SELECT `+jobColumns+` FROM enrichment_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetQueueStats counts jobs per status.
func (db *DB) GetQueueStats() (*models.QueueStats, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM enrichment_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &models.QueueStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case models.JobStatusPending:
			stats.Pending = count
		case models.JobStatusRunning:
			stats.Running = count
		case models.JobStatusSucceeded:
			stats.Succeeded = count
		case models.JobStatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.EnrichmentJob, error) {
	job := &models.EnrichmentJob{}
	err := row.Scan(
		&job.ID, &job.Kind, &job.EntityKind, &job.EntityID, &job.Status,
		&job.Priority, &job.Attempts, &job.MaxAttempts, &job.RunAfter,
		&job.LockedAt, &job.LockedBy, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return job, nil
}
