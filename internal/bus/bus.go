package bus

import (
	"encoding/json"
	"log"
	"sync"
)

// Event types delivered to real-time clients. The string values are the
// wire contract and must not change.
const (
	TranscriptionStarted   = "transcription.started"
	TranscriptionUpdated   = "transcription.updated"
	TranscriptionCompleted = "transcription.completed"
	TranscriptionError     = "transcription.error"
	BotStatusChanged       = "bot.status_changed"
	SegmentCreated         = "segment.created"
	SegmentUpdated         = "segment.updated"
	PlaylistUpdated        = "playlist.updated"
	VersionUpdated         = "version.updated"
	DraftNoteUpdated       = "draft_note.updated"
)

// Envelope is the serialized form of one event as clients receive it.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Handler receives the payload of a published event.
type Handler func(payload any)

// Token identifies one subscription. Pass it back to Unsubscribe.
type Token struct {
	id uint64
}

// Broadcaster receives the serialized envelope of every published event for
// fan-out to remote clients.
type Broadcaster interface {
	Broadcast(msg []byte)
}

type subscriber struct {
	id uint64
	fn Handler
}

// Bus is a typed publish/subscribe hub. Delivery to in-process subscribers
// is sequential and synchronous within one Publish call: exact-type handlers
// in registration order, then wildcard handlers, then the remote broadcast.
type Bus struct {
	broadcaster Broadcaster

	mu     sync.Mutex
	nextID uint64
	byType map[string][]subscriber
	global []subscriber
}

// New builds a bus. The broadcaster may be nil, in which case events reach
// in-process subscribers only.
func New(broadcaster Broadcaster) *Bus {
	return &Bus{
		broadcaster: broadcaster,
		byType:      make(map[string][]subscriber),
	}
}

// Subscribe registers a handler for one exact event type.
func (b *Bus) Subscribe(eventType string, fn Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.byType[eventType] = append(b.byType[eventType], subscriber{id: b.nextID, fn: fn})
	return Token{id: b.nextID}
}

// SubscribeAll registers a handler that receives every event after the
// exact-type handlers have run.
func (b *Bus) SubscribeAll(fn Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.global = append(b.global, subscriber{id: b.nextID, fn: fn})
	return Token{id: b.nextID}
}

// Unsubscribe removes a subscription. Unknown or already-removed tokens are
// a no-op, so calling it twice is harmless.
func (b *Bus) Unsubscribe(tok Token) {
	if tok.id == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.byType {
		b.byType[eventType] = removeSubscriber(subs, tok.id)
	}
	b.global = removeSubscriber(b.global, tok.id)
}

// Publish delivers payload to every handler registered for eventType, then
// to every wildcard handler, then forwards the serialized envelope to the
// broadcaster. A panicking handler is logged and skipped; it never blocks
// sibling handlers or the broadcast.
func (b *Bus) Publish(eventType string, payload any) {
	b.mu.Lock()
	handlers := make([]subscriber, 0, len(b.byType[eventType])+len(b.global))
	handlers = append(handlers, b.byType[eventType]...)
	handlers = append(handlers, b.global...)
	b.mu.Unlock()

	for _, sub := range handlers {
		invoke(eventType, sub.fn, payload)
	}

	if b.broadcaster == nil {
		return
	}

	msg, err := json.Marshal(Envelope{Type: eventType, Payload: payload})
	if err != nil {
		log.Printf("event %s marshal error: %v", eventType, err)
		return
	}
	b.broadcaster.Broadcast(msg)
}

func invoke(eventType string, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("subscriber for %s panicked: %v", eventType, r)
		}
	}()
	fn(payload)
}

func removeSubscriber(subs []subscriber, id uint64) []subscriber {
	for i, sub := range subs {
		if sub.id == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
