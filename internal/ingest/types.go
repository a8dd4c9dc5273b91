package ingest

import (
	"context"

	"github.com/jspada200/dailies-relay/internal/feed"
	"github.com/jspada200/dailies-relay/internal/storage"
	"github.com/jspada200/dailies-relay/internal/transcript"
)

// Store is the durable store gateway the ingestion core depends on.
type Store interface {
	UpsertSegment(playlistID, versionID int64, id string, raw transcript.RawSegment) (transcript.Segment, bool, error)
	GetSessionMeta(playlistID int64) (*storage.SessionMeta, error)
	GetSessionMetaByExternalID(externalID string) (*storage.SessionMeta, error)
	SaveSessionMeta(meta storage.SessionMeta) error
	SetProviderSessionID(playlistID, providerSessionID int64) error
	DeleteSessionMeta(playlistID int64) error
}

// Feed is the transcription provider client.
type Feed interface {
	Subscribe(platform, meetingID string) error
	Unsubscribe(platform, meetingID string) error
	RegisterSessionID(sessionID int64, platform, meetingID string)
	ActiveSessions(ctx context.Context) ([]feed.ActiveSession, error)
	State() string
	SubscriptionCount() int
}

// Publisher publishes typed events onto the bus.
type Publisher interface {
	Publish(eventType string, payload any)
}
