package ingest

import (
	"log"

	"github.com/jspada200/dailies-relay/internal/bus"
	"github.com/jspada200/dailies-relay/internal/feed"
	"github.com/jspada200/dailies-relay/internal/transcript"
)

// Reconciler turns raw provider transcript batches into durable segment
// records and the matching segment.created / segment.updated events.
type Reconciler struct {
	mapping   *SessionMap
	store     Store
	publisher Publisher
}

func NewReconciler(mapping *SessionMap, store Store, publisher Publisher) *Reconciler {
	return &Reconciler{mapping: mapping, store: store, publisher: publisher}
}

// Ingest reconciles one raw batch for a session. An unresolvable batch
// (no owning playlist, no in-review version, or a paused session) is
// dropped with a logged reason; those are expected states, not errors.
// A storage failure on one segment never blocks its siblings.
func (r *Reconciler) Ingest(key feed.SessionKey, batch []transcript.RawSegment) {
	playlistID, ok := r.mapping.Resolve(key)
	if !ok {
		// Sessions can receive trailing data after unsubscribe.
		log.Printf("dropping batch for %s: no owner", key)
		return
	}

	meta, err := r.store.GetSessionMeta(playlistID)
	if err != nil {
		log.Printf("dropping batch for playlist %d: load session meta: %v", playlistID, err)
		return
	}
	if meta == nil || meta.InReviewVersionID == 0 {
		log.Printf("dropping batch for playlist %d: no version in review", playlistID)
		return
	}
	if meta.Paused {
		log.Printf("dropping batch for playlist %d: session paused", playlistID)
		return
	}

	for _, raw := range batch {
		raw, ok := transcript.Normalize(raw)
		if !ok {
			continue
		}

		id := transcript.SegmentID(playlistID, meta.InReviewVersionID, raw.Speaker, raw.AbsoluteStartTime)
		seg, created, err := r.store.UpsertSegment(playlistID, meta.InReviewVersionID, id, raw)
		if err != nil {
			log.Printf("upsert segment %s for playlist %d failed: %v", id, playlistID, err)
			continue
		}

		if created {
			r.publisher.Publish(bus.SegmentCreated, seg)
		} else {
			r.publisher.Publish(bus.SegmentUpdated, seg)
		}
	}
}
