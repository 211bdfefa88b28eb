package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chorus-fm/chorus/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Initialize())
	t.Cleanup(func() { database.Close() })
	return database
}

func TestEnqueueJobDeduplicatesActive(t *testing.T) {
	database := newTestDB(t)

	first, err := database.EnqueueJob(models.JobArtistResolveMBID, models.EntityArtist, "artist-1", 0)
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := database.EnqueueJob(models.JobArtistResolveMBID, models.EntityArtist, "artist-1", 0)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.JobID, second.JobID)
	require.Equal(t, "already_active", second.Reason)

	// A different kind for the same entity is its own job.
	other, err := database.EnqueueJob(models.JobArtistSyncRelations, models.EntityArtist, "artist-1", 0)
	require.NoError(t, err)
	require.True(t, other.Created)
}

func TestEnqueueAllowedAgainAfterTerminal(t *testing.T) {
	database := newTestDB(t)

	first, err := database.EnqueueJob(models.JobTrackSync, models.EntityTrack, "track-1", 0)
	require.NoError(t, err)

	claimed, err := database.ClaimJobs("w1", 10, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, database.CompleteJob(claimed[0]))

	second, err := database.EnqueueJob(models.JobTrackSync, models.EntityTrack, "track-1", 0)
	require.NoError(t, err)
	require.True(t, second.Created)
	require.NotEqual(t, first.JobID, second.JobID)
}

func TestClaimJobsOrderAndLocking(t *testing.T) {
	database := newTestDB(t)

	low, err := database.EnqueueJob(models.JobTrackSync, models.EntityTrack, "track-low", 0)
	require.NoError(t, err)
	high, err := database.EnqueueJob(models.JobTrackSync, models.EntityTrack, "track-high", 5)
	require.NoError(t, err)

	claimed, err := database.ClaimJobs("w1", 1, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, high.JobID, claimed[0].ID)
	require.Equal(t, models.JobStatusRunning, claimed[0].Status)
	require.Equal(t, "w1", *claimed[0].LockedBy)

	// The running job is invisible to a second claimer while its lease
	// holds.
	claimed, err = database.ClaimJobs("w2", 10, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, low.JobID, claimed[0].ID)

	claimed, err = database.ClaimJobs("w3", 10, 30*time.Minute)
	require.NoError(t, err)
	require.Empty(t, claimed)
}

func TestClaimReclaimsStaleLease(t *testing.T) {
	database := newTestDB(t)

	res, err := database.EnqueueJob(models.JobTrackSync, models.EntityTrack, "track-1", 0)
	require.NoError(t, err)

	claimed, err := database.ClaimJobs("crashed", 1, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Zero lease timeout makes any running job's lease stale immediately.
	reclaimed, err := database.ClaimJobs("survivor", 1, 0)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	require.Equal(t, res.JobID, reclaimed[0].ID)
	require.Equal(t, "survivor", *reclaimed[0].LockedBy)
}

func TestFailJobBackoffAndExhaustion(t *testing.T) {
	database := newTestDB(t)
	policy := RetryPolicy{Base: time.Minute, Multiplier: 2, Cap: time.Hour}

	res, err := database.EnqueueJob(models.JobTrackSync, models.EntityTrack, "track-1", 0)
	require.NoError(t, err)

	for attempt := 1; attempt < DefaultMaxAttempts; attempt++ {
		// Backoff from the previous failure pushed run_after into the
		// future; pull it back so the job is due again.
		_, err = database.Exec(`UPDATE enrichment_jobs SET run_after = ? WHERE id = ?`,
			time.Now().UTC().Add(-time.Second), res.JobID)
		require.NoError(t, err)

		claimed, err := database.ClaimJobs("w1", 1, 0)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		require.NoError(t, database.FailJob(claimed[0], "boom", policy))

		job, err := database.GetJob(res.JobID)
		require.NoError(t, err)
		require.Equal(t, models.JobStatusPending, job.Status)
		require.Equal(t, attempt, job.Attempts)
		require.Equal(t, "boom", *job.LastError)
		require.Nil(t, job.LockedBy)

		wantDelay := policy.Backoff(attempt)
		gotDelay := job.RunAfter.Sub(job.UpdatedAt)
		require.InDelta(t, wantDelay.Seconds(), gotDelay.Seconds(), 1.0)
	}

	// run_after is in the future now; force the claim by treating the
	// pending row as due.
	_, err = database.Exec(`UPDATE enrichment_jobs SET run_after = ? WHERE id = ?`, time.Now().UTC().Add(-time.Second), res.JobID)
	require.NoError(t, err)

	claimed, err := database.ClaimJobs("w1", 1, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, database.FailJob(claimed[0], "boom", policy))

	job, err := database.GetJob(res.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFailed, job.Status)
	require.Equal(t, DefaultMaxAttempts, job.Attempts)
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := RetryPolicy{Base: time.Minute, Multiplier: 2, Cap: time.Hour}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{6, 32 * time.Minute},
		{7, time.Hour},
		{20, time.Hour},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, policy.Backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestReapJobsDeletesOnlyOldTerminal(t *testing.T) {
	database := newTestDB(t)

	done, err := database.EnqueueJob(models.JobTrackSync, models.EntityTrack, "track-done", 0)
	require.NoError(t, err)
	pending, err := database.EnqueueJob(models.JobTrackSync, models.EntityTrack, "track-pending", 0)
	require.NoError(t, err)

	claimed, err := database.ClaimJobs("w1", 1, 30*time.Minute)
	require.NoError(t, err)
	require.Equal(t, done.JobID, claimed[0].ID)
	require.NoError(t, database.CompleteJob(claimed[0]))

	// Nothing is old enough yet.
	n, err := database.ReapJobs(time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)

	// Age the terminal row past the ttl.
	_, err = database.Exec(`UPDATE enrichment_jobs SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-2*time.Hour), done.JobID)
	require.NoError(t, err)

	n, err = database.ReapJobs(time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	job, err := database.GetJob(pending.JobID)
	require.NoError(t, err)
	require.NotNil(t, job)
}

func TestGetQueueStats(t *testing.T) {
	database := newTestDB(t)

	_, err := database.EnqueueJob(models.JobTrackSync, models.EntityTrack, "t1", 0)
	require.NoError(t, err)
	_, err = database.EnqueueJob(models.JobTrackSync, models.EntityTrack, "t2", 0)
	require.NoError(t, err)

	claimed, err := database.ClaimJobs("w1", 1, 30*time.Minute)
	require.NoError(t, err)
	require.NoError(t, database.CompleteJob(claimed[0]))

	stats, err := database.GetQueueStats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Pending)
	require.Equal(t, 0, stats.Running)
	require.Equal(t, 1, stats.Succeeded)
}
