package transcript

import (
	"fmt"
	"strings"
	"time"
)

// UnknownSpeaker is the sentinel used when the provider omits the speaker.
const UnknownSpeaker = "Unknown"

// RawSegment is one entry of a provider transcript batch, exactly as it
// arrives on the wire. Timestamps are left as the provider's ISO-8601
// strings; the identity hash depends on the exact formatting.
type RawSegment struct {
	Text              string `json:"text"`
	Speaker           string `json:"speaker"`
	Language          string `json:"language"`
	AbsoluteStartTime string `json:"absolute_start_time"`
	AbsoluteEndTime   string `json:"absolute_end_time"`
	UpdatedAt         string `json:"updated_at"`
}

// Segment is a reconciled, durable transcript segment attached to a
// reviewed version within a playlist.
type Segment struct {
	ID              string    `json:"id"`
	PlaylistID      int64     `json:"playlist_id"`
	VersionID       int64     `json:"version_id"`
	Speaker         string    `json:"speaker"`
	Text            string    `json:"text"`
	Language        string    `json:"language"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	SourceUpdatedAt string    `json:"source_updated_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Normalize trims the raw segment and fills defaults. It returns false when
// the segment carries nothing ingestable: empty text after trimming, or no
// start time to derive an identity from.
func Normalize(raw RawSegment) (RawSegment, bool) {
	raw.Text = strings.TrimSpace(raw.Text)
	if raw.Text == "" {
		return raw, false
	}
	if strings.TrimSpace(raw.AbsoluteStartTime) == "" {
		return raw, false
	}
	if strings.TrimSpace(raw.Speaker) == "" {
		raw.Speaker = UnknownSpeaker
	}
	return raw, true
}

// FormatLine renders the segment as one transcript line for plain-text
// exports.
func (s Segment) FormatLine() string {
	return fmt.Sprintf("[%s] %s: %s", s.StartTime, s.Speaker, strings.TrimSpace(s.Text))
}
