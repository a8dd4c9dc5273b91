package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jspada200/dailies-relay/internal/transcript"
)

// SessionKey is the externally-addressable handle for one live
// transcription session: the meeting platform plus the platform's own
// meeting id. It is stable across reconnects of the same meeting.
type SessionKey struct {
	Platform  string `json:"platform"`
	MeetingID string `json:"meeting_id"`
}

func (k SessionKey) String() string {
	return k.Platform + "/" + k.MeetingID
}

// ActiveSession is one entry of the provider's active-session listing.
type ActiveSession struct {
	SessionID int64  `json:"session_id"`
	Platform  string `json:"platform"`
	MeetingID string `json:"meeting_id"`
	Status    string `json:"status"`
}

// Terminal reports whether the provider considers the session finished.
func (s ActiveSession) Terminal() bool {
	switch strings.ToLower(s.Status) {
	case "completed", "failed", "stopped":
		return true
	}
	return false
}

// Key returns the session's addressable handle.
func (s ActiveSession) Key() SessionKey {
	return SessionKey{Platform: s.Platform, MeetingID: s.MeetingID}
}

// Inbound message variants. Every frame the provider sends parses into
// exactly one of these; anything else is logged and dropped.

type subscribedAck struct {
	SessionID int64
	Key       SessionKey
}

type statusChange struct {
	SessionID int64
	Status    string
}

type transcriptBatch struct {
	SessionID int64
	Segments  []transcript.RawSegment
}

type feedError struct {
	SessionID int64
	Message   string
}

type keepalive struct{}

type inboundFrame struct {
	Type      string                  `json:"type"`
	SessionID int64                   `json:"session_id"`
	Platform  string                  `json:"platform"`
	MeetingID string                  `json:"meeting_id"`
	Status    string                  `json:"status"`
	Message   string                  `json:"message"`
	Segments  []transcript.RawSegment `json:"segments"`
}

type outboundFrame struct {
	Action    string `json:"action"`
	Platform  string `json:"platform"`
	MeetingID string `json:"meeting_id"`
}

// parseMessage decodes one provider frame into its typed variant.
func parseMessage(data []byte) (any, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch frame.Type {
	case "subscribed":
		if frame.Platform == "" || frame.MeetingID == "" {
			return nil, fmt.Errorf("subscribed ack missing session key: %s", string(data))
		}
		return subscribedAck{
			SessionID: frame.SessionID,
			Key:       SessionKey{Platform: frame.Platform, MeetingID: frame.MeetingID},
		}, nil
	case "status":
		return statusChange{SessionID: frame.SessionID, Status: frame.Status}, nil
	case "transcript":
		return transcriptBatch{SessionID: frame.SessionID, Segments: frame.Segments}, nil
	case "error":
		return feedError{SessionID: frame.SessionID, Message: frame.Message}, nil
	case "ping", "pong", "keepalive":
		return keepalive{}, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", frame.Type)
	}
}
