package ingest

import (
	"context"
	"testing"

	"github.com/jspada200/dailies-relay/internal/bus"
	"github.com/jspada200/dailies-relay/internal/feed"
	"github.com/jspada200/dailies-relay/internal/storage"
)

func TestRecoverReattachesOwnedSessions(t *testing.T) {
	store := newStoreMock()
	store.meta[42] = &storage.SessionMeta{
		PlaylistID:        42,
		Platform:          "google_meet",
		ExternalSessionID: "abc-123",
		ProviderSessionID: 1234,
		InReviewVersionID: 5,
	}

	feedClient := newFeedMock()
	feedClient.active = []feed.ActiveSession{
		{SessionID: 9001, Platform: "google_meet", MeetingID: "abc-123", Status: "in_call_recording"},
		{SessionID: 9002, Platform: "zoom", MeetingID: "done-1", Status: "completed"},
	}

	events := &busMock{}
	svc := NewService(store, feedClient, events)

	if err := svc.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	if playlistID, ok := svc.mapping.Resolve(testKey); !ok || playlistID != 42 {
		t.Fatalf("expected mapping %v -> 42, got %d (%v)", testKey, playlistID, ok)
	}
	// The persisted provider id wins over the freshly reported one.
	if key, ok := feedClient.sessionIDs[1234]; !ok || key != testKey {
		t.Fatalf("expected persisted provider id 1234 seeded, got %#v", feedClient.sessionIDs)
	}
	if _, ok := feedClient.sessionIDs[9001]; ok {
		t.Fatal("expected provider-reported id to be ignored when one is persisted")
	}
	if feedClient.sends() != 1 {
		t.Fatalf("expected one remote subscribe, got %d", feedClient.sends())
	}

	statusEvents := events.ofType(bus.BotStatusChanged)
	if len(statusEvents) != 1 {
		t.Fatalf("expected one bot.status_changed, got %d", len(statusEvents))
	}
	payload := statusEvents[0].Payload.(map[string]any)
	if payload["recovered"] != true {
		t.Fatalf("expected recovered marker, got %#v", payload)
	}
}

func TestRecoverSkipsUnownedSessions(t *testing.T) {
	feedClient := newFeedMock()
	feedClient.active = []feed.ActiveSession{
		{SessionID: 9001, Platform: "google_meet", MeetingID: "orphan-1", Status: "in_call"},
	}

	events := &busMock{}
	svc := NewService(newStoreMock(), feedClient, events)

	if err := svc.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	if feedClient.sends() != 0 {
		t.Fatalf("expected zero subscribes for unowned session, got %d", feedClient.sends())
	}
	if svc.mapping.Len() != 0 {
		t.Fatalf("expected empty mapping, got %d entries", svc.mapping.Len())
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no events, got %#v", events.events)
	}
}

func TestRecoverIdempotent(t *testing.T) {
	store := newStoreMock()
	store.meta[42] = &storage.SessionMeta{
		PlaylistID:        42,
		Platform:          "google_meet",
		ExternalSessionID: "abc-123",
		InReviewVersionID: 5,
	}

	feedClient := newFeedMock()
	feedClient.active = []feed.ActiveSession{
		{SessionID: 9001, Platform: "google_meet", MeetingID: "abc-123", Status: "in_call"},
	}

	svc := NewService(store, feedClient, &busMock{})

	if err := svc.Recover(context.Background()); err != nil {
		t.Fatalf("first Recover failed: %v", err)
	}
	if store.meta[42].ProviderSessionID != 9001 {
		t.Fatalf("expected freshly learned provider id to be persisted, got %d", store.meta[42].ProviderSessionID)
	}
	if err := svc.Recover(context.Background()); err != nil {
		t.Fatalf("second Recover failed: %v", err)
	}

	if feedClient.sends() != 1 {
		t.Fatalf("expected a single remote subscribe across both runs, got %d", feedClient.sends())
	}
	if svc.mapping.Len() != 1 {
		t.Fatalf("expected one mapping entry, got %d", svc.mapping.Len())
	}
}

func TestRecoverIsolatesPerSessionFailures(t *testing.T) {
	store := newStoreMock()
	store.metaErrFor = "broken-1"
	store.meta[42] = &storage.SessionMeta{
		PlaylistID:        42,
		Platform:          "google_meet",
		ExternalSessionID: "abc-123",
		InReviewVersionID: 5,
	}

	feedClient := newFeedMock()
	feedClient.active = []feed.ActiveSession{
		{SessionID: 9000, Platform: "zoom", MeetingID: "broken-1", Status: "in_call"},
		{SessionID: 9001, Platform: "google_meet", MeetingID: "abc-123", Status: "in_call"},
	}

	svc := NewService(store, feedClient, &busMock{})

	if err := svc.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	if _, ok := svc.mapping.Resolve(testKey); !ok {
		t.Fatal("expected healthy session to be recovered despite the broken one")
	}
	if feedClient.sends() != 1 {
		t.Fatalf("expected one subscribe, got %d", feedClient.sends())
	}
}
