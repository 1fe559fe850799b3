// Package events moves span event payloads into the event store before span
// persistence and resolves them back on read, keeping stored spans small.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DataDog/zstd"
	"github.com/google/uuid"

	"github.com/flowline-ai/linerun-collector/internal/model"
	"github.com/flowline-ai/linerun-collector/internal/semconv"
	"github.com/flowline-ai/linerun-collector/internal/store"
)

type Externalizer struct {
	store store.EventStore
}

func NewExternalizer(st store.EventStore) *Externalizer {
	return &Externalizer{store: st}
}

// Externalize persists every event payload of the span to the event store and
// returns a new Span value whose events carry only the generated reference
// ids. A span already in reference-only state is returned unchanged, so the
// transform is never applied twice.
func (e *Externalizer) Externalize(ctx context.Context, span *model.Span) (*model.Span, error) {
	if span.EventsExternalized {
		return span, nil
	}
	out := span.Clone()
	for i := range out.Events {
		eventID := uuid.NewString()
		payload, err := encodeEvent(out.Events[i])
		if err != nil {
			return nil, fmt.Errorf("encode event %q of span %s: %w", out.Events[i].Name, span.SpanID, err)
		}
		err = e.store.Persist(ctx, store.StoredEvent{
			EventID: eventID,
			TraceID: span.TraceID,
			SpanID:  span.SpanID,
			Payload: payload,
		})
		if err != nil {
			return nil, fmt.Errorf("persist event %s: %w", eventID, err)
		}
		out.Events[i].Attributes = map[string]string{semconv.EventAttrEventID: eventID}
	}
	out.EventsExternalized = true
	return out, nil
}

// Resolve is the inverse transform: it loads every referenced payload back
// from the event store and returns a new Span with full events, recording the
// loaded ids in ExternalEventIDs. A dangling reference is a data-integrity
// fault and surfaces as store.ErrEventNotFound.
func (e *Externalizer) Resolve(ctx context.Context, span *model.Span) (*model.Span, error) {
	if !span.EventsExternalized {
		return span, nil
	}
	out := span.Clone()
	out.ExternalEventIDs = make([]string, 0, len(out.Events))
	for i := range out.Events {
		eventID, ok := out.Events[i].Attributes[semconv.EventAttrEventID]
		if !ok {
			return nil, fmt.Errorf("event %d of span %s has no reference id: %w",
				i, span.SpanID, store.ErrEventNotFound)
		}
		event, err := e.ResolveEvent(ctx, eventID)
		if err != nil {
			return nil, err
		}
		out.Events[i] = event
		out.ExternalEventIDs = append(out.ExternalEventIDs, eventID)
	}
	out.EventsExternalized = false
	return out, nil
}

// ResolveEvent loads a single event payload by reference id.
func (e *Externalizer) ResolveEvent(ctx context.Context, eventID string) (model.Event, error) {
	payload, err := e.store.Get(ctx, eventID)
	if err != nil {
		return model.Event{}, fmt.Errorf("resolve event %s: %w", eventID, err)
	}
	event, err := decodeEvent(payload)
	if err != nil {
		return model.Event{}, fmt.Errorf("decode event %s: %w", eventID, err)
	}
	return event, nil
}

// Payloads are stored as zstd-compressed JSON.

func encodeEvent(event model.Event) ([]byte, error) {
	j, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return zstd.Compress(nil, j)
}

func decodeEvent(payload []byte) (model.Event, error) {
	j, err := zstd.Decompress(nil, payload)
	if err != nil {
		return model.Event{}, err
	}
	var event model.Event
	if err := json.Unmarshal(j, &event); err != nil {
		return model.Event{}, err
	}
	return event, nil
}
