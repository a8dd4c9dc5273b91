package ingest

import (
	"context"
	"fmt"
	"log"

	"github.com/jspada200/dailies-relay/internal/bus"
	"github.com/jspada200/dailies-relay/internal/feed"
)

// Recover rebuilds the in-memory session mapping after a process restart.
// It runs once, before new subscribe requests are accepted: every
// non-terminal session the provider still reports is cross-referenced with
// persisted session metadata, reattached, and re-announced with a
// recovered marker so clients can tell replayed state from fresh state.
// A failure on one session never aborts recovery of the rest.
func (s *Service) Recover(ctx context.Context) error {
	sessions, err := s.feed.ActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}

	recovered := 0
	for _, session := range sessions {
		if session.Terminal() {
			continue
		}

		meta, err := s.store.GetSessionMetaByExternalID(session.MeetingID)
		if err != nil {
			log.Printf("recovery: lookup session %s: %v", session.Key(), err)
			continue
		}
		if meta == nil {
			// An active remote session nobody owns locally is
			// unrecoverable, not fatal.
			log.Printf("recovery: skipping session %s: no local owner", session.Key())
			continue
		}

		key := feed.SessionKey{Platform: meta.Platform, MeetingID: meta.ExternalSessionID}
		s.mapping.Put(key, meta.PlaylistID)

		providerID := meta.ProviderSessionID
		if providerID == 0 {
			providerID = session.SessionID
			if providerID != 0 {
				if err := s.store.SetProviderSessionID(meta.PlaylistID, providerID); err != nil {
					log.Printf("recovery: persist provider session id for playlist %d: %v", meta.PlaylistID, err)
				}
			}
		}
		if providerID != 0 {
			s.feed.RegisterSessionID(providerID, key.Platform, key.MeetingID)
		}

		if err := s.feed.Subscribe(key.Platform, key.MeetingID); err != nil {
			log.Printf("recovery: resubscribe %s: %v", key, err)
			continue
		}

		s.publisher.Publish(bus.BotStatusChanged, map[string]any{
			"playlist_id": meta.PlaylistID,
			"platform":    key.Platform,
			"meeting_id":  key.MeetingID,
			"status":      session.Status,
			"recovered":   true,
		})
		recovered++
	}

	log.Printf("recovery complete: %d of %d active session(s) reattached", recovered, len(sessions))
	return nil
}
