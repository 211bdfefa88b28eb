package models

import "time"

// Job statuses. Pending and running jobs count as active; at most one
// active job may exist per (kind, entity_kind, entity_id).
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// Job kinds dispatched by the enrichment worker.
const (
	JobArtistResolveMBID   = "artist.resolve_mbid"
	JobArtistSyncRelations = "artist.sync_relationships"
	JobAlbumResolveMBID    = "album.resolve_mbid"
	JobAlbumSync           = "album.sync"
	JobTrackResolveMBID    = "track.resolve_mbid"
	JobTrackSync           = "track.sync"
)

// Entity kinds jobs can reference.
const (
	EntityArtist = "artist"
	EntityAlbum  = "album"
	EntityTrack  = "track"
)

type EnrichmentJob struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	EntityKind  string     `json:"entityKind"`
	EntityID    string     `json:"entityId"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	RunAfter    time.Time  `json:"runAfter"`
	LockedAt    *time.Time `json:"lockedAt,omitempty"`
	LockedBy    *string    `json:"lockedBy,omitempty"`
	LastError   *string    `json:"lastError,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// EnqueueResult reports the outcome of an enqueue attempt. When an active
// job already exists for the same (kind, entity) the existing id is
// returned with Created=false.
type EnqueueResult struct {
	JobID   string `json:"jobId"`
	Created bool   `json:"created"`
	Reason  string `json:"reason,omitempty"`
}

// QueueStats is the aggregate view served by GET /api/v1/jobs.
type QueueStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
