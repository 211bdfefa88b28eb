package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chorus-fm/chorus/db"
	"github.com/chorus-fm/chorus/models"
	"github.com/chorus-fm/chorus/session"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxBulkSync      = 50
)

func jsonResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func jsonError(w http.ResponseWriter, statusCode int, msg string) {
	jsonResponse(w, statusCode, map[string]string{"error": msg})
}

func listLimit(r *http.Request) int {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

func (app *application) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := app.database.Ping(); err != nil {
		jsonError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (app *application) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.GetUserID(r.Context())

	user, err := app.database.GetUserByID(userID)
	if err != nil {
		app.logger.Error().Err(err).Msg("fetching user")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// handleCurrentlyPlaying serves the live session row, the engine's view
// of what the user is hearing right now.
func (app *application) handleCurrentlyPlaying(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.GetUserID(r.Context())

	s, err := app.database.GetPlaybackSession(userID, provider)
	if err != nil {
		app.logger.Error().Err(err).Msg("fetching session")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if s == nil {
		jsonResponse(w, http.StatusOK, map[string]any{"playing": false})
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"playing":       s.IsPlaying,
		"track":         s.Snapshot,
		"progressMs":    s.LastProgressMs,
		"accumulatedMs": s.AccumulatedMs,
		"startedAt":     s.StartedAt,
	})
}

func (app *application) handleRecentlyPlayed(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.GetUserID(r.Context())

	views, err := app.database.GetRecentScrobbles(userID, listLimit(r))
	if err != nil {
		app.logger.Error().Err(err).Msg("fetching scrobbles")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if views == nil {
		views = []*db.ScrobbleView{}
	}
	jsonResponse(w, http.StatusOK, views)
}

func (app *application) handleTopGroups(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.GetUserID(r.Context())
	app.serveTopArtists(w, userID, r, app.database.GetTopGroups)
}

func (app *application) handleTopSoloArtists(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.GetUserID(r.Context())
	app.serveTopArtists(w, userID, r, app.database.GetTopSoloArtists)
}

func (app *application) serveTopArtists(w http.ResponseWriter, userID string, r *http.Request, query func(string, int) ([]*db.ArtistPlayCount, error)) {
	counts, err := query(userID, listLimit(r))
	if err != nil {
		app.logger.Error().Err(err).Msg("fetching top artists")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if counts == nil {
		counts = []*db.ArtistPlayCount{}
	}
	jsonResponse(w, http.StatusOK, counts)
}

// handleArtist serves the artist with both sides of its membership graph:
// the groups a person plays in, and the members a group is made of.
func (app *application) handleArtist(w http.ResponseWriter, r *http.Request) {
	artistID := chi.URLParam(r, "id")

	artist, err := app.database.GetArtistByID(artistID)
	if err != nil {
		app.logger.Error().Err(err).Msg("fetching artist")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if artist == nil {
		jsonError(w, http.StatusNotFound, "artist not found")
		return
	}

	members, err := app.database.ListGroupMembers(artistID)
	if err != nil {
		app.logger.Error().Err(err).Msg("fetching members")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	groups, err := app.database.ListMemberGroups(artistID)
	if err != nil {
		app.logger.Error().Err(err).Msg("fetching groups")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"artist":  artist,
		"members": members,
		"groups":  groups,
	})
}

func (app *application) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := app.database.GetQueueStats()
	if err != nil {
		app.logger.Error().Err(err).Msg("fetching queue stats")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

func (app *application) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := app.database.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		app.logger.Error().Err(err).Msg("fetching job")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if job == nil {
		jsonError(w, http.StatusNotFound, "job not found")
		return
	}
	jsonResponse(w, http.StatusOK, job)
}

type syncRequest struct {
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId,omitempty"`
	Type       string `json:"type"` // "sync" or "resolve"
	Limit      int    `json:"limit,omitempty"`
}

// handleSync enqueues enrichment on demand: one entity when entityId is
// given, else a bulk pass over eligible entities. Always 202; the work
// happens in the background.
func (app *application) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Type != "sync" && req.Type != "resolve" {
		jsonError(w, http.StatusBadRequest, `type must be "sync" or "resolve"`)
		return
	}

	kind, ok := jobKindFor(req.EntityKind, req.Type)
	if !ok {
		jsonError(w, http.StatusBadRequest, "unknown entity kind")
		return
	}

	if req.EntityID != "" {
		result, err := app.database.EnqueueJob(kind, req.EntityKind, req.EntityID, 0)
		if err != nil {
			app.logger.Error().Err(err).Msg("enqueueing job")
			jsonError(w, http.StatusInternalServerError, "internal error")
			return
		}
		jsonResponse(w, http.StatusAccepted, result)
		return
	}

	limit := req.Limit
	if limit <= 0 || limit > maxBulkSync {
		limit = maxBulkSync
	}

	ids, err := app.database.ListEntitiesForBulkSync(req.EntityKind, req.Type, limit)
	if err != nil {
		app.logger.Error().Err(err).Msg("listing entities for bulk sync")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	results := make([]*models.EnqueueResult, 0, len(ids))
	for _, id := range ids {
		result, err := app.database.EnqueueJob(kind, req.EntityKind, id, 0)
		if err != nil {
			app.logger.Error().Err(err).Str("entity", id).Msg("enqueueing job")
			continue
		}
		results = append(results, result)
	}
	jsonResponse(w, http.StatusAccepted, map[string]any{"enqueued": results})
}

func jobKindFor(entityKind, syncType string) (string, bool) {
	switch entityKind {
	case models.EntityArtist:
		if syncType == "resolve" {
			return models.JobArtistResolveMBID, true
		}
		return models.JobArtistSyncRelations, true
	case models.EntityAlbum:
		if syncType == "resolve" {
			return models.JobAlbumResolveMBID, true
		}
		return models.JobAlbumSync, true
	case models.EntityTrack:
		if syncType == "resolve" {
			return models.JobTrackResolveMBID, true
		}
		return models.JobTrackSync, true
	default:
		return "", false
	}
}
