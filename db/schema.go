package db

// Initialize sets up the database tables and indexes.
func (db *DB) Initialize() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			username TEXT UNIQUE,
			role TEXT NOT NULL DEFAULT 'user',
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			external_id TEXT NOT NULL UNIQUE,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at INTEGER NOT NULL, -- absolute epoch seconds
			scope TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, provider),
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		`CREATE TABLE IF NOT EXISTS artists (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			mbid TEXT UNIQUE,
			type TEXT,
			gender TEXT,
			begin_date_raw TEXT,
			end_date_raw TEXT,
			begin_date TEXT,
			end_date TEXT,
			image_url TEXT,
			last_enriched_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artists_name ON artists(name)`,

		// Raw stint dates default to '' rather than NULL so the uniqueness
		// over (member, group, raw-begin, raw-end) holds for unknown dates.
		`CREATE TABLE IF NOT EXISTS artist_group_memberships (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			begin_date TEXT,
			end_date TEXT,
			begin_date_raw TEXT NOT NULL DEFAULT '',
			end_date_raw TEXT NOT NULL DEFAULT '',
			ended BOOLEAN NOT NULL DEFAULT 0,
			UNIQUE (member_id, group_id, begin_date_raw, end_date_raw),
			FOREIGN KEY (member_id) REFERENCES artists(id),
			FOREIGN KEY (group_id) REFERENCES artists(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_member ON artist_group_memberships(member_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_group ON artist_group_memberships(group_id)`,

		`CREATE TABLE IF NOT EXISTS albums (
			id TEXT PRIMARY KEY,
			artist_id TEXT NOT NULL,
			title TEXT NOT NULL,
			release_date TEXT,
			mbid TEXT UNIQUE,
			image_url TEXT,
			last_enriched_at TIMESTAMP,
			FOREIGN KEY (artist_id) REFERENCES artists(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_albums_artist_title ON albums(artist_id, title)`,

		`CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			duration_ms INTEGER,
			mbid TEXT UNIQUE,
			isrc TEXT UNIQUE,
			explicit BOOLEAN NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS track_artists (
			track_id TEXT NOT NULL,
			artist_id TEXT NOT NULL,
			is_primary BOOLEAN NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0,
			join_phrase TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (track_id, artist_id),
			FOREIGN KEY (track_id) REFERENCES tracks(id),
			FOREIGN KEY (artist_id) REFERENCES artists(id)
		)`,

		`CREATE TABLE IF NOT EXISTS track_albums (
			track_id TEXT NOT NULL,
			album_id TEXT NOT NULL,
			disc_number INTEGER,
			position INTEGER,
			PRIMARY KEY (track_id, album_id),
			FOREIGN KEY (track_id) REFERENCES tracks(id),
			FOREIGN KEY (album_id) REFERENCES albums(id)
		)`,

		// played_at is provider-authoritative, stored as Unix milliseconds
		// so the dedupe windows are plain integer range scans.
		`CREATE TABLE IF NOT EXISTS scrobbles (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			album_id TEXT,
			played_at INTEGER NOT NULL,
			played_duration_ms INTEGER NOT NULL,
			skipped BOOLEAN NOT NULL DEFAULT 0,
			source TEXT NOT NULL,
			import_batch_id TEXT,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, track_id, played_at),
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (track_id) REFERENCES tracks(id),
			FOREIGN KEY (album_id) REFERENCES albums(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scrobbles_user_played ON scrobbles(user_id, played_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scrobbles_user_track_played ON scrobbles(user_id, track_id, played_at)`,

		`CREATE TABLE IF NOT EXISTS scrobble_cursors (
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			last_played_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, provider),
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		`CREATE TABLE IF NOT EXISTS playback_sessions (
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			track_uri TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			last_seen_at INTEGER NOT NULL,
			last_progress_ms INTEGER NOT NULL,
			accumulated_ms INTEGER NOT NULL DEFAULT 0,
			is_playing BOOLEAN NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			snapshot TEXT,
			scrobbled BOOLEAN NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, provider),
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		`CREATE TABLE IF NOT EXISTS enrichment_jobs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			entity_kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			priority INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 5,
			run_after TIMESTAMP NOT NULL,
			locked_at TIMESTAMP,
			locked_by TEXT,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active
			ON enrichment_jobs(kind, entity_kind, entity_id)
			WHERE status IN ('pending', 'running')`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_claim ON enrichment_jobs(status, run_after, priority)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_reap ON enrichment_jobs(status, updated_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
