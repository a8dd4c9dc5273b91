package bus

import (
	"encoding/json"
	"testing"
)

type broadcasterMock struct {
	messages [][]byte
}

func (b *broadcasterMock) Broadcast(msg []byte) {
	b.messages = append(b.messages, msg)
}

func TestPublishOrderAndWildcard(t *testing.T) {
	b := New(nil)

	var order []string
	b.Subscribe(SegmentCreated, func(any) { order = append(order, "typed-1") })
	b.Subscribe(SegmentCreated, func(any) { order = append(order, "typed-2") })
	b.SubscribeAll(func(any) { order = append(order, "wildcard") })
	b.Subscribe(SegmentUpdated, func(any) { order = append(order, "other-type") })

	b.Publish(SegmentCreated, map[string]any{"id": "abc"})

	want := []string{"typed-1", "typed-2", "wildcard"}
	if len(order) != len(want) {
		t.Fatalf("expected %d deliveries, got %#v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected delivery order %#v, got %#v", want, order)
		}
	}
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	broadcaster := &broadcasterMock{}
	b := New(broadcaster)

	var delivered bool
	b.Subscribe(TranscriptionError, func(any) { panic("boom") })
	b.Subscribe(TranscriptionError, func(any) { delivered = true })

	b.Publish(TranscriptionError, map[string]any{"message": "bad"})

	if !delivered {
		t.Fatal("expected sibling handler to run after a panic")
	}
	if len(broadcaster.messages) != 1 {
		t.Fatalf("expected broadcast despite panic, got %d messages", len(broadcaster.messages))
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := New(nil)

	var count int
	tok := b.Subscribe(BotStatusChanged, func(any) { count++ })

	b.Publish(BotStatusChanged, nil)
	b.Unsubscribe(tok)
	b.Unsubscribe(tok)
	b.Publish(BotStatusChanged, nil)

	if count != 1 {
		t.Fatalf("expected exactly one delivery, got %d", count)
	}
}

func TestEnvelopeWireShape(t *testing.T) {
	broadcaster := &broadcasterMock{}
	b := New(broadcaster)

	b.Publish(SegmentCreated, map[string]any{"id": "abc", "text": "hello"})

	if len(broadcaster.messages) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(broadcaster.messages))
	}

	var envelope map[string]any
	if err := json.Unmarshal(broadcaster.messages[0], &envelope); err != nil {
		t.Fatalf("unmarshal envelope failed: %v", err)
	}
	if envelope["type"] != SegmentCreated {
		t.Fatalf("expected type %q, got %#v", SegmentCreated, envelope["type"])
	}
	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload object, got %#v", envelope["payload"])
	}
	if payload["id"] != "abc" {
		t.Fatalf("expected payload id abc, got %#v", payload["id"])
	}
}
