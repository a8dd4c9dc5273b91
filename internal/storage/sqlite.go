package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jspada200/dailies-relay/internal/transcript"
)

// SessionMeta is the persisted record tying a live transcription session to
// the playlist it belongs to. It is written by the surrounding CRUD layer
// when a meeting starts or the reviewed version changes; the ingestion core
// only reads it.
type SessionMeta struct {
	PlaylistID        int64     `json:"playlist_id"`
	Platform          string    `json:"platform"`
	ExternalSessionID string    `json:"external_session_id"`
	ProviderSessionID int64     `json:"provider_session_id"`
	InReviewVersionID int64     `json:"in_review_version_id"`
	Paused            bool      `json:"paused"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Settings are per-playlist preferences consulted by the surrounding app.
type Settings struct {
	PlaylistID   int64  `json:"playlist_id"`
	LanguageHint string `json:"language_hint"`
	PublishNotes bool   `json:"publish_notes"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "dailies-relay.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS segments (
			id TEXT PRIMARY KEY,
			playlist_id INTEGER NOT NULL,
			version_id INTEGER NOT NULL,
			speaker TEXT NOT NULL,
			text TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL DEFAULT '',
			source_updated_at TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create segments table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_meta (
			playlist_id INTEGER PRIMARY KEY,
			platform TEXT NOT NULL,
			external_session_id TEXT NOT NULL UNIQUE,
			provider_session_id INTEGER NOT NULL DEFAULT 0,
			in_review_version_id INTEGER NOT NULL DEFAULT 0,
			paused INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create session_meta table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS playlist_settings (
			playlist_id INTEGER PRIMARY KEY,
			language_hint TEXT NOT NULL DEFAULT '',
			publish_notes INTEGER NOT NULL DEFAULT 0
		);
	`); err != nil {
		return fmt.Errorf("create playlist_settings table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_segments_playlist_version ON segments(playlist_id, version_id, start_time)"); err != nil {
		return fmt.Errorf("create segments index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// UpsertSegment writes a normalized segment under its content-derived id.
// It reports whether the write created a new record (as opposed to updating
// an existing one in place).
func (s *SQLiteStore) UpsertSegment(playlistID, versionID int64, id string, raw transcript.RawSegment) (transcript.Segment, bool, error) {
	if strings.TrimSpace(id) == "" {
		return transcript.Segment{}, false, errors.New("segment id is required")
	}

	now := time.Now().UTC()

	var createdAtRaw string
	err := s.db.QueryRow(`SELECT created_at FROM segments WHERE id = ?`, id).Scan(&createdAtRaw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec(
			`INSERT INTO segments(id, playlist_id, version_id, speaker, text, language, start_time, end_time, source_updated_at, created_at, updated_at)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, playlistID, versionID,
			raw.Speaker, raw.Text, raw.Language,
			raw.AbsoluteStartTime, raw.AbsoluteEndTime, raw.UpdatedAt,
			now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
		)
		if err != nil {
			return transcript.Segment{}, false, fmt.Errorf("insert segment %s: %w", id, err)
		}
		return segmentFromRaw(id, playlistID, versionID, raw, now, now), true, nil

	case err != nil:
		return transcript.Segment{}, false, fmt.Errorf("lookup segment %s: %w", id, err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtRaw)
	if err != nil {
		return transcript.Segment{}, false, fmt.Errorf("parse segment %s created_at: %w", id, err)
	}

	_, err = s.db.Exec(
		`UPDATE segments SET text = ?, language = ?, end_time = ?, source_updated_at = ?, updated_at = ? WHERE id = ?`,
		raw.Text, raw.Language, raw.AbsoluteEndTime, raw.UpdatedAt,
		now.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return transcript.Segment{}, false, fmt.Errorf("update segment %s: %w", id, err)
	}
	return segmentFromRaw(id, playlistID, versionID, raw, createdAt, now), false, nil
}

func (s *SQLiteStore) GetSegments(playlistID, versionID int64) ([]transcript.Segment, error) {
	rows, err := s.db.Query(
		`SELECT id, playlist_id, version_id, speaker, text, language, start_time, end_time, source_updated_at, created_at, updated_at
		 FROM segments
		 WHERE playlist_id = ? AND version_id = ?
		 ORDER BY start_time ASC`,
		playlistID, versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query segments for playlist %d version %d: %w", playlistID, versionID, err)
	}
	defer func() { _ = rows.Close() }()

	segments := make([]transcript.Segment, 0, 32)
	for rows.Next() {
		var seg transcript.Segment
		var createdAt, updatedAt string
		if err := rows.Scan(&seg.ID, &seg.PlaylistID, &seg.VersionID, &seg.Speaker, &seg.Text, &seg.Language, &seg.StartTime, &seg.EndTime, &seg.SourceUpdatedAt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if seg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse segment %s created_at: %w", seg.ID, err)
		}
		if seg.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("parse segment %s updated_at: %w", seg.ID, err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segment rows: %w", err)
	}

	return segments, nil
}

// GetSegmentsByDate returns every segment created on a UTC date
// (YYYY-MM-DD), across all playlists, for transcript exports.
func (s *SQLiteStore) GetSegmentsByDate(date string) ([]transcript.Segment, error) {
	rows, err := s.db.Query(
		`SELECT id, playlist_id, version_id, speaker, text, language, start_time, end_time, source_updated_at, created_at, updated_at
		 FROM segments
		 WHERE substr(created_at, 1, 10) = ?
		 ORDER BY start_time ASC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query segments for date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	segments := make([]transcript.Segment, 0, 32)
	for rows.Next() {
		var seg transcript.Segment
		var createdAt, updatedAt string
		if err := rows.Scan(&seg.ID, &seg.PlaylistID, &seg.VersionID, &seg.Speaker, &seg.Text, &seg.Language, &seg.StartTime, &seg.EndTime, &seg.SourceUpdatedAt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if seg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse segment %s created_at: %w", seg.ID, err)
		}
		if seg.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("parse segment %s updated_at: %w", seg.ID, err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segment rows: %w", err)
	}

	return segments, nil
}

// SaveSessionMeta inserts or replaces the session record for a playlist.
func (s *SQLiteStore) SaveSessionMeta(meta SessionMeta) error {
	if meta.PlaylistID == 0 {
		return errors.New("playlist id is required")
	}
	if strings.TrimSpace(meta.ExternalSessionID) == "" {
		return errors.New("external session id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO session_meta(playlist_id, platform, external_session_id, provider_session_id, in_review_version_id, paused, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(playlist_id) DO UPDATE SET
			platform = excluded.platform,
			external_session_id = excluded.external_session_id,
			provider_session_id = excluded.provider_session_id,
			in_review_version_id = excluded.in_review_version_id,
			paused = excluded.paused,
			updated_at = excluded.updated_at`,
		meta.PlaylistID, meta.Platform, meta.ExternalSessionID,
		meta.ProviderSessionID, meta.InReviewVersionID, boolToInt(meta.Paused),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session meta for playlist %d: %w", meta.PlaylistID, err)
	}
	return nil
}

// GetSessionMeta returns the session record for a playlist, or nil when the
// playlist has no session.
func (s *SQLiteStore) GetSessionMeta(playlistID int64) (*SessionMeta, error) {
	return s.querySessionMeta(`SELECT playlist_id, platform, external_session_id, provider_session_id, in_review_version_id, paused, updated_at
		FROM session_meta WHERE playlist_id = ?`, playlistID)
}

// GetSessionMetaByExternalID resolves a provider-facing session id back to
// its owning playlist, or nil when no playlist claims the session.
func (s *SQLiteStore) GetSessionMetaByExternalID(externalID string) (*SessionMeta, error) {
	return s.querySessionMeta(`SELECT playlist_id, platform, external_session_id, provider_session_id, in_review_version_id, paused, updated_at
		FROM session_meta WHERE external_session_id = ?`, externalID)
}

func (s *SQLiteStore) querySessionMeta(query string, arg any) (*SessionMeta, error) {
	var meta SessionMeta
	var paused int
	var updatedAt string
	err := s.db.QueryRow(query, arg).Scan(&meta.PlaylistID, &meta.Platform, &meta.ExternalSessionID, &meta.ProviderSessionID, &meta.InReviewVersionID, &paused, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session meta: %w", err)
	}

	meta.Paused = paused != 0
	if meta.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse session meta updated_at: %w", err)
	}
	return &meta, nil
}

// SetInReviewVersion points the session at the version currently under
// review. Incoming segments attach to this version.
func (s *SQLiteStore) SetInReviewVersion(playlistID, versionID int64) error {
	return s.updateSessionMeta(playlistID, `UPDATE session_meta SET in_review_version_id = ?, updated_at = ? WHERE playlist_id = ?`, versionID)
}

// SetPaused flips the paused flag for a playlist's session.
func (s *SQLiteStore) SetPaused(playlistID int64, paused bool) error {
	return s.updateSessionMeta(playlistID, `UPDATE session_meta SET paused = ?, updated_at = ? WHERE playlist_id = ?`, boolToInt(paused))
}

// SetProviderSessionID records the provider's internal id once it is known.
func (s *SQLiteStore) SetProviderSessionID(playlistID, providerSessionID int64) error {
	return s.updateSessionMeta(playlistID, `UPDATE session_meta SET provider_session_id = ?, updated_at = ? WHERE playlist_id = ?`, providerSessionID)
}

// DeleteSessionMeta removes the session record when a meeting ends.
func (s *SQLiteStore) DeleteSessionMeta(playlistID int64) error {
	if _, err := s.db.Exec(`DELETE FROM session_meta WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("delete session meta for playlist %d: %w", playlistID, err)
	}
	return nil
}

func (s *SQLiteStore) updateSessionMeta(playlistID int64, query string, value any) error {
	res, err := s.db.Exec(query, value, time.Now().UTC().Format(time.RFC3339Nano), playlistID)
	if err != nil {
		return fmt.Errorf("update session meta for playlist %d: %w", playlistID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session meta rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteStore) SaveSettings(settings Settings) error {
	if settings.PlaylistID == 0 {
		return errors.New("playlist id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO playlist_settings(playlist_id, language_hint, publish_notes)
		 VALUES(?, ?, ?)
		 ON CONFLICT(playlist_id) DO UPDATE SET
			language_hint = excluded.language_hint,
			publish_notes = excluded.publish_notes`,
		settings.PlaylistID, settings.LanguageHint, boolToInt(settings.PublishNotes),
	)
	if err != nil {
		return fmt.Errorf("save settings for playlist %d: %w", settings.PlaylistID, err)
	}
	return nil
}

// GetSettings returns stored preferences for a playlist, or defaults when
// none were ever saved.
func (s *SQLiteStore) GetSettings(playlistID int64) (Settings, error) {
	var settings Settings
	var publishNotes int
	err := s.db.QueryRow(
		`SELECT playlist_id, language_hint, publish_notes FROM playlist_settings WHERE playlist_id = ?`,
		playlistID,
	).Scan(&settings.PlaylistID, &settings.LanguageHint, &publishNotes)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{PlaylistID: playlistID}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("query settings for playlist %d: %w", playlistID, err)
	}

	settings.PublishNotes = publishNotes != 0
	return settings, nil
}

func segmentFromRaw(id string, playlistID, versionID int64, raw transcript.RawSegment, createdAt, updatedAt time.Time) transcript.Segment {
	return transcript.Segment{
		ID:              id,
		PlaylistID:      playlistID,
		VersionID:       versionID,
		Speaker:         raw.Speaker,
		Text:            raw.Text,
		Language:        raw.Language,
		StartTime:       raw.AbsoluteStartTime,
		EndTime:         raw.AbsoluteEndTime,
		SourceUpdatedAt: raw.UpdatedAt,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
