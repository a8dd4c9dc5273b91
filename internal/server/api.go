package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jspada200/dailies-relay/internal/bus"
	"github.com/jspada200/dailies-relay/internal/storage"
	"github.com/jspada200/dailies-relay/internal/transcript"
)

// MeetingService is the surface the HTTP glue calls into. It never reaches
// into the session mapping or the registry directly.
type MeetingService interface {
	StartMeeting(ctx context.Context, playlistID int64, platform, meetingID string) error
	StopMeeting(ctx context.Context, playlistID int64) error
	FeedState() string
	SubscriptionCount() int
}

// MetaStore is the slice of the durable store the HTTP surface needs.
type MetaStore interface {
	GetSessionMeta(playlistID int64) (*storage.SessionMeta, error)
	SetInReviewVersion(playlistID, versionID int64) error
	SetPaused(playlistID int64, paused bool) error
	GetSegments(playlistID, versionID int64) ([]transcript.Segment, error)
	GetSettings(playlistID int64) (storage.Settings, error)
	SaveSettings(settings storage.Settings) error
}

// Publisher publishes typed events onto the bus.
type Publisher interface {
	Publish(eventType string, payload any)
}

type startMeetingRequest struct {
	Platform  string `json:"platform"`
	MeetingID string `json:"meeting_id"`
}

type reviewRequest struct {
	VersionID int64 `json:"version_id"`
}

func registerAPIRoutes(mux *http.ServeMux, svc MeetingService, store MetaStore, publisher Publisher, registry *Registry, warnings []string) {
	mux.HandleFunc("POST /api/playlists/{id}/meeting", func(w http.ResponseWriter, r *http.Request) {
		playlistID, ok := playlistIDFromPath(w, r)
		if !ok {
			return
		}

		var req startMeetingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
		if req.Platform == "" || req.MeetingID == "" {
			writeJSONError(w, http.StatusBadRequest, "platform and meeting_id are required")
			return
		}

		if err := svc.StartMeeting(r.Context(), playlistID, req.Platform, req.MeetingID); err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("start meeting: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /api/playlists/{id}/meeting", func(w http.ResponseWriter, r *http.Request) {
		playlistID, ok := playlistIDFromPath(w, r)
		if !ok {
			return
		}

		if err := svc.StopMeeting(r.Context(), playlistID); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stop meeting: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("PUT /api/playlists/{id}/review", func(w http.ResponseWriter, r *http.Request) {
		playlistID, ok := playlistIDFromPath(w, r)
		if !ok {
			return
		}

		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}

		if err := store.SetInReviewVersion(playlistID, req.VersionID); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("set in-review version: %v", err))
			return
		}

		publisher.Publish(bus.VersionUpdated, map[string]any{
			"playlist_id": playlistID,
			"version_id":  req.VersionID,
		})
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/playlists/{id}/pause", pauseHandler(store, publisher, true))
	mux.HandleFunc("POST /api/playlists/{id}/resume", pauseHandler(store, publisher, false))

	mux.HandleFunc("GET /api/playlists/{id}/segments", func(w http.ResponseWriter, r *http.Request) {
		playlistID, ok := playlistIDFromPath(w, r)
		if !ok {
			return
		}

		versionID, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
		if err != nil {
			meta, metaErr := store.GetSessionMeta(playlistID)
			if metaErr != nil {
				writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session: %v", metaErr))
				return
			}
			if meta == nil || meta.InReviewVersionID == 0 {
				writeJSONError(w, http.StatusBadRequest, "version query parameter required when no version is in review")
				return
			}
			versionID = meta.InReviewVersionID
		}

		segments, err := store.GetSegments(playlistID, versionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get segments: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, segments)
	})

	mux.HandleFunc("GET /api/playlists/{id}/settings", func(w http.ResponseWriter, r *http.Request) {
		playlistID, ok := playlistIDFromPath(w, r)
		if !ok {
			return
		}

		settings, err := store.GetSettings(playlistID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get settings: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, settings)
	})

	mux.HandleFunc("PUT /api/playlists/{id}/settings", func(w http.ResponseWriter, r *http.Request) {
		playlistID, ok := playlistIDFromPath(w, r)
		if !ok {
			return
		}

		var settings storage.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
		settings.PlaylistID = playlistID

		if err := store.SaveSettings(settings); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("save settings: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"feed_state":    svc.FeedState(),
			"subscriptions": svc.SubscriptionCount(),
			"clients":       registry.Len(),
			"warnings":      warnings,
		})
	})
}

func pauseHandler(store MetaStore, publisher Publisher, paused bool) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		playlistID, ok := playlistIDFromPath(w, r)
		if !ok {
			return
		}

		if err := store.SetPaused(playlistID, paused); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("set paused: %v", err))
			return
		}

		publisher.Publish(bus.BotStatusChanged, map[string]any{
			"playlist_id": playlistID,
			"paused":      paused,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

func playlistIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid playlist id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
