package storage

import (
	"path/filepath"
	"testing"

	"github.com/jspada200/dailies-relay/internal/transcript"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestSQLitePragmas(t *testing.T) {
	store := newTestSQLiteStore(t)

	var mode string
	if err := store.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode failed: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected journal_mode wal, got %q", mode)
	}

	var timeout int
	if err := store.DB().QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("PRAGMA busy_timeout failed: %v", err)
	}
	if timeout < 5000 {
		t.Fatalf("expected busy_timeout >= 5000, got %d", timeout)
	}
}

func TestUpsertSegmentCreateThenUpdate(t *testing.T) {
	store := newTestSQLiteStore(t)

	raw := transcript.RawSegment{
		Text:              "Hello",
		Speaker:           "A",
		AbsoluteStartTime: "2026-02-26T10:00:00Z",
		AbsoluteEndTime:   "2026-02-26T10:00:02Z",
	}
	id := transcript.SegmentID(42, 5, raw.Speaker, raw.AbsoluteStartTime)

	seg, created, err := store.UpsertSegment(42, 5, id, raw)
	if err != nil {
		t.Fatalf("UpsertSegment failed: %v", err)
	}
	if !created {
		t.Fatal("expected first upsert to create")
	}
	if seg.ID != id || seg.Text != "Hello" {
		t.Fatalf("unexpected segment %#v", seg)
	}

	raw.Text = "Hello there, how are you"
	seg, created, err = store.UpsertSegment(42, 5, id, raw)
	if err != nil {
		t.Fatalf("second UpsertSegment failed: %v", err)
	}
	if created {
		t.Fatal("expected second upsert to update, not create")
	}
	if seg.Text != "Hello there, how are you" {
		t.Fatalf("expected grown text, got %q", seg.Text)
	}

	segments, err := store.GetSegments(42, 5)
	if err != nil {
		t.Fatalf("GetSegments failed: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected exactly one stored record, got %d", len(segments))
	}
	if segments[0].CreatedAt.After(segments[0].UpdatedAt) {
		t.Fatal("expected created_at <= updated_at after update")
	}
}

func TestSessionMetaRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)

	meta := SessionMeta{
		PlaylistID:        42,
		Platform:          "google_meet",
		ExternalSessionID: "abc-123",
		ProviderSessionID: 9001,
		InReviewVersionID: 5,
	}
	if err := store.SaveSessionMeta(meta); err != nil {
		t.Fatalf("SaveSessionMeta failed: %v", err)
	}

	got, err := store.GetSessionMeta(42)
	if err != nil {
		t.Fatalf("GetSessionMeta failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected session meta for playlist 42")
	}
	if got.ExternalSessionID != "abc-123" || got.ProviderSessionID != 9001 {
		t.Fatalf("unexpected session meta %#v", got)
	}

	byExternal, err := store.GetSessionMetaByExternalID("abc-123")
	if err != nil {
		t.Fatalf("GetSessionMetaByExternalID failed: %v", err)
	}
	if byExternal == nil || byExternal.PlaylistID != 42 {
		t.Fatalf("expected playlist 42 via external id, got %#v", byExternal)
	}

	missing, err := store.GetSessionMetaByExternalID("nope")
	if err != nil {
		t.Fatalf("GetSessionMetaByExternalID for unknown id failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown external id, got %#v", missing)
	}
}

func TestSessionMetaUpdates(t *testing.T) {
	store := newTestSQLiteStore(t)

	if err := store.SaveSessionMeta(SessionMeta{
		PlaylistID:        42,
		Platform:          "zoom",
		ExternalSessionID: "xyz-9",
	}); err != nil {
		t.Fatalf("SaveSessionMeta failed: %v", err)
	}

	if err := store.SetInReviewVersion(42, 7); err != nil {
		t.Fatalf("SetInReviewVersion failed: %v", err)
	}
	if err := store.SetPaused(42, true); err != nil {
		t.Fatalf("SetPaused failed: %v", err)
	}
	if err := store.SetProviderSessionID(42, 555); err != nil {
		t.Fatalf("SetProviderSessionID failed: %v", err)
	}

	meta, err := store.GetSessionMeta(42)
	if err != nil {
		t.Fatalf("GetSessionMeta failed: %v", err)
	}
	if meta.InReviewVersionID != 7 || !meta.Paused || meta.ProviderSessionID != 555 {
		t.Fatalf("unexpected session meta after updates: %#v", meta)
	}

	if err := store.DeleteSessionMeta(42); err != nil {
		t.Fatalf("DeleteSessionMeta failed: %v", err)
	}
	meta, err = store.GetSessionMeta(42)
	if err != nil {
		t.Fatalf("GetSessionMeta after delete failed: %v", err)
	}
	if meta != nil {
		t.Fatalf("expected nil after delete, got %#v", meta)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)

	settings, err := store.GetSettings(42)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings.PlaylistID != 42 || settings.LanguageHint != "" || settings.PublishNotes {
		t.Fatalf("expected default settings, got %#v", settings)
	}

	if err := store.SaveSettings(Settings{PlaylistID: 42, LanguageHint: "en-US", PublishNotes: true}); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	settings, err = store.GetSettings(42)
	if err != nil {
		t.Fatalf("GetSettings after save failed: %v", err)
	}
	if settings.LanguageHint != "en-US" || !settings.PublishNotes {
		t.Fatalf("unexpected settings %#v", settings)
	}
}
