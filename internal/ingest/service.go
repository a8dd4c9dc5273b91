package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jspada200/dailies-relay/internal/bus"
	"github.com/jspada200/dailies-relay/internal/feed"
	"github.com/jspada200/dailies-relay/internal/storage"
	"github.com/jspada200/dailies-relay/internal/transcript"
)

// Service owns the session mapping and coordinates the feed client, the
// store gateway, and the event bus. It is the only entry point the
// surrounding application uses; nothing upstream touches the mapping
// directly.
type Service struct {
	store      Store
	feed       Feed
	publisher  Publisher
	mapping    *SessionMap
	reconciler *Reconciler
}

func NewService(store Store, feedClient Feed, publisher Publisher) *Service {
	mapping := NewSessionMap()
	return &Service{
		store:      store,
		feed:       feedClient,
		publisher:  publisher,
		mapping:    mapping,
		reconciler: NewReconciler(mapping, store, publisher),
	}
}

// StartMeeting persists session metadata for the playlist, subscribes to
// the provider session, and announces the started transcription.
func (s *Service) StartMeeting(ctx context.Context, playlistID int64, platform, meetingID string) error {
	meta := storage.SessionMeta{
		PlaylistID:        playlistID,
		Platform:          platform,
		ExternalSessionID: meetingID,
	}
	if existing, err := s.store.GetSessionMeta(playlistID); err != nil {
		return fmt.Errorf("load session meta: %w", err)
	} else if existing != nil {
		meta.InReviewVersionID = existing.InReviewVersionID
		meta.ProviderSessionID = existing.ProviderSessionID
	}

	if err := s.store.SaveSessionMeta(meta); err != nil {
		return fmt.Errorf("save session meta: %w", err)
	}

	if err := s.feed.Subscribe(platform, meetingID); err != nil {
		return fmt.Errorf("subscribe to session: %w", err)
	}

	s.mapping.Put(feed.SessionKey{Platform: platform, MeetingID: meetingID}, playlistID)

	s.publisher.Publish(bus.TranscriptionStarted, map[string]any{
		"playlist_id": playlistID,
		"platform":    platform,
		"meeting_id":  meetingID,
	})
	return nil
}

// StopMeeting unsubscribes the playlist's session and clears its state.
// Stopping a playlist without a session is a no-op.
func (s *Service) StopMeeting(ctx context.Context, playlistID int64) error {
	meta, err := s.store.GetSessionMeta(playlistID)
	if err != nil {
		return fmt.Errorf("load session meta: %w", err)
	}
	if meta == nil {
		return nil
	}

	key := feed.SessionKey{Platform: meta.Platform, MeetingID: meta.ExternalSessionID}
	if err := s.feed.Unsubscribe(key.Platform, key.MeetingID); err != nil {
		log.Printf("warning: unsubscribe %s: %v", key, err)
	}
	s.mapping.Delete(key)

	if err := s.store.DeleteSessionMeta(playlistID); err != nil {
		return fmt.Errorf("delete session meta: %w", err)
	}

	s.publisher.Publish(bus.TranscriptionCompleted, map[string]any{
		"playlist_id": playlistID,
		"platform":    key.Platform,
		"meeting_id":  key.MeetingID,
	})
	return nil
}

// FeedState reports the provider connection state for the status endpoint.
func (s *Service) FeedState() string {
	return s.feed.State()
}

// SubscriptionCount reports how many sessions are subscribed.
func (s *Service) SubscriptionCount() int {
	return s.feed.SubscriptionCount()
}

// OnTranscript implements feed.Handler.
func (s *Service) OnTranscript(key feed.SessionKey, segments []transcript.RawSegment) {
	s.reconciler.Ingest(key, segments)
}

// OnStatusChange implements feed.Handler. Terminal statuses tear the
// session's mapping down; trailing data after that is dropped by Ingest.
func (s *Service) OnStatusChange(key feed.SessionKey, status string) {
	playlistID, ok := s.mapping.Resolve(key)
	if !ok {
		log.Printf("dropping status %q for unmapped session %s", status, key)
		return
	}

	s.publisher.Publish(bus.BotStatusChanged, map[string]any{
		"playlist_id": playlistID,
		"platform":    key.Platform,
		"meeting_id":  key.MeetingID,
		"status":      status,
	})

	if !terminalStatus(status) {
		return
	}

	s.mapping.Delete(key)
	if err := s.feed.Unsubscribe(key.Platform, key.MeetingID); err != nil {
		log.Printf("warning: unsubscribe %s after terminal status: %v", key, err)
	}

	eventType := bus.TranscriptionCompleted
	if strings.EqualFold(status, "failed") {
		eventType = bus.TranscriptionError
	}
	s.publisher.Publish(eventType, map[string]any{
		"playlist_id": playlistID,
		"platform":    key.Platform,
		"meeting_id":  key.MeetingID,
		"status":      status,
	})
}

// OnError implements feed.Handler.
func (s *Service) OnError(key feed.SessionKey, message string) {
	playlistID, ok := s.mapping.Resolve(key)
	if !ok {
		log.Printf("feed error for unmapped session %s: %s", key, message)
		return
	}

	s.publisher.Publish(bus.TranscriptionError, map[string]any{
		"playlist_id": playlistID,
		"platform":    key.Platform,
		"meeting_id":  key.MeetingID,
		"message":     message,
	})
}

func terminalStatus(status string) bool {
	switch strings.ToLower(status) {
	case "completed", "failed", "stopped":
		return true
	}
	return false
}
