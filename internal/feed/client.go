package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jspada200/dailies-relay/internal/transcript"
)

// Connection states.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateReconnecting = "reconnecting"
)

// ErrNotConnected is returned by Subscribe when the feed transport is down.
var ErrNotConnected = errors.New("feed transport is not connected")

// Handler receives neutral session-scoped events translated from the
// provider's wire format. The session key is already resolved from the
// provider's internal session id.
type Handler interface {
	OnTranscript(key SessionKey, segments []transcript.RawSegment)
	OnStatusChange(key SessionKey, status string)
	OnError(key SessionKey, message string)
}

// Config controls the provider connection.
type Config struct {
	WSURL                string
	APIBaseURL           string
	APIKey               string
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
}

// Client holds one long-lived websocket connection to the transcription
// provider and the bookkeeping needed to route its session-scoped messages:
// the subscribed key set and the provider-internal-id-to-key mapping (some
// provider messages carry only the internal id).
type Client struct {
	cfg        Config
	handler    Handler
	httpClient *http.Client

	writeMu sync.Mutex

	mu         sync.Mutex
	conn       *websocket.Conn
	state      string
	subscribed map[SessionKey]bool
	sessionIDs map[int64]SessionKey
	closed     bool
}

func NewClient(cfg Config, handler Handler) *Client {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	return &Client{
		cfg:        cfg,
		handler:    handler,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		state:      StateDisconnected,
		subscribed: make(map[SessionKey]bool),
		sessionIDs: make(map[int64]SessionKey),
	}
}

// Connect dials the provider and starts the read loop. The loop runs until
// ctx is cancelled or reconnection is exhausted.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("connect to feed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WSURL, headers)
	return conn, err
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// State reports the connection state.
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SubscriptionCount reports how many session keys are currently subscribed.
func (c *Client) SubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribed)
}

// Subscribe asks the provider to start streaming events for a session.
// Duplicate subscribes for an already-subscribed or still-pending key are a
// no-op and send nothing.
func (c *Client) Subscribe(platform, meetingID string) error {
	key := SessionKey{Platform: platform, MeetingID: meetingID}

	c.mu.Lock()
	if _, ok := c.subscribed[key]; ok {
		c.mu.Unlock()
		return nil
	}
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	// Pending until the provider ack carries the internal session id.
	c.subscribed[key] = false
	c.mu.Unlock()

	if err := c.send(outboundFrame{Action: "subscribe", Platform: platform, MeetingID: meetingID}); err != nil {
		c.mu.Lock()
		delete(c.subscribed, key)
		c.mu.Unlock()
		return fmt.Errorf("send subscribe for %s: %w", key, err)
	}
	return nil
}

// Unsubscribe removes local bookkeeping for a session and, when the
// transport is open, tells the provider. A closed transport still counts as
// success: there is nothing to tell.
func (c *Client) Unsubscribe(platform, meetingID string) error {
	key := SessionKey{Platform: platform, MeetingID: meetingID}

	c.mu.Lock()
	delete(c.subscribed, key)
	for id, mapped := range c.sessionIDs {
		if mapped == key {
			delete(c.sessionIDs, id)
		}
	}
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		return nil
	}
	if err := c.send(outboundFrame{Action: "unsubscribe", Platform: platform, MeetingID: meetingID}); err != nil {
		log.Printf("warning: send unsubscribe for %s: %v", key, err)
	}
	return nil
}

// RegisterSessionID seeds the internal-id mapping without waiting for a
// provider ack. Recovery uses it with ids persisted in session metadata.
func (c *Client) RegisterSessionID(sessionID int64, platform, meetingID string) {
	if sessionID == 0 {
		return
	}
	c.mu.Lock()
	c.sessionIDs[sessionID] = SessionKey{Platform: platform, MeetingID: meetingID}
	c.mu.Unlock()
}

// ActiveSessions lists every session the provider currently considers
// non-terminal.
func (c *Client) ActiveSessions(ctx context.Context) ([]ActiveSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+"/sessions?status=active", nil)
	if err != nil {
		return nil, fmt.Errorf("build active sessions request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list active sessions: unexpected status %d", resp.StatusCode)
	}

	var sessions []ActiveSession
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("decode active sessions: %w", err)
	}
	return sessions, nil
}

func (c *Client) send(frame outboundFrame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || c.isClosed() {
				c.setState(StateDisconnected)
				return
			}
			log.Printf("warning: feed read error: %v", err)
			if !c.reconnect(ctx) {
				c.setState(StateDisconnected)
				return
			}
			continue
		}

		c.dispatch(payload)
	}
}

func (c *Client) dispatch(payload []byte) {
	msg, err := parseMessage(payload)
	if err != nil {
		log.Printf("dropping malformed feed message: %v", err)
		return
	}

	switch m := msg.(type) {
	case subscribedAck:
		c.mu.Lock()
		if _, ok := c.subscribed[m.Key]; ok {
			c.subscribed[m.Key] = true
		}
		if m.SessionID != 0 {
			// Prefer an id seeded by recovery over a fresh ack.
			if _, seeded := c.sessionIDs[m.SessionID]; !seeded {
				c.sessionIDs[m.SessionID] = m.Key
			}
		}
		c.mu.Unlock()
		log.Printf("subscribed to %s (provider session %d)", m.Key, m.SessionID)

	case statusChange:
		if key, ok := c.resolve(m.SessionID); ok {
			c.handler.OnStatusChange(key, m.Status)
		} else {
			log.Printf("dropping status for unknown provider session %d", m.SessionID)
		}

	case transcriptBatch:
		if key, ok := c.resolve(m.SessionID); ok {
			c.handler.OnTranscript(key, m.Segments)
		} else {
			log.Printf("dropping transcript batch for unknown provider session %d", m.SessionID)
		}

	case feedError:
		if key, ok := c.resolve(m.SessionID); ok {
			c.handler.OnError(key, m.Message)
		} else {
			log.Printf("feed error for unknown provider session %d: %s", m.SessionID, m.Message)
		}

	case keepalive:
		// Ignored.
	}
}

func (c *Client) resolve(sessionID int64) (SessionKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.sessionIDs[sessionID]
	return key, ok
}

// reconnect re-dials with exponential backoff and re-issues subscribe for
// every previously-subscribed key. It reports whether a connection was
// re-established.
func (c *Client) reconnect(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed || len(c.subscribed) == 0 {
		c.mu.Unlock()
		return false
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateReconnecting
	c.mu.Unlock()

	delay := c.cfg.ReconnectBaseDelay
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2

		conn, err := c.dial(ctx)
		if err != nil {
			log.Printf("warning: feed reconnect attempt %d/%d failed: %v", attempt, c.cfg.MaxReconnectAttempts, err)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return false
		}
		c.conn = conn
		c.state = StateConnected
		keys := make([]SessionKey, 0, len(c.subscribed))
		for key := range c.subscribed {
			c.subscribed[key] = false
			keys = append(keys, key)
		}
		c.mu.Unlock()

		for _, key := range keys {
			if err := c.send(outboundFrame{Action: "subscribe", Platform: key.Platform, MeetingID: key.MeetingID}); err != nil {
				log.Printf("warning: resubscribe %s after reconnect: %v", key, err)
			}
		}

		log.Printf("feed reconnected after %d attempt(s), %d session(s) resubscribed", attempt, len(keys))
		return true
	}

	log.Printf("feed reconnect gave up after %d attempts", c.cfg.MaxReconnectAttempts)
	return false
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setState(state string) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}
