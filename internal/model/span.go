package model

import (
	"time"

	"github.com/flowline-ai/linerun-collector/internal/semconv"
)

// Canonical span status codes. Protocol-specific codes are mapped onto this
// set at decode time.
const (
	StatusCodeUnset = "UNSET"
	StatusCodeOK    = "OK"
	StatusCodeError = "ERROR"
)

type Status struct {
	Code        string `json:"status_code"`
	Description string `json:"description"`
}

type SpanContext struct {
	TraceID    string `json:"trace_id"`
	SpanID     string `json:"span_id"`
	TraceState string `json:"trace_state"`
}

type Link struct {
	Context    SpanContext       `json:"context"`
	Attributes map[string]string `json:"attributes"`
}

type Event struct {
	Name       string            `json:"name"`
	Timestamp  time.Time         `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

type Resource struct {
	Attributes map[string]string `json:"attributes"`
	SchemaURL  string            `json:"schema_url,omitempty"`
}

// Span is the canonical in-memory form of one OpenTelemetry span. It is
// created once by the decoder and treated as immutable; externalization
// produces a new Span value rather than mutating a shared one.
type Span struct {
	TraceID   string
	SpanID    string
	ParentID  string // empty for the trace's root span
	Name      string
	Kind      string
	StartTime time.Time
	EndTime   time.Time
	Status    Status

	Attributes map[string]string
	Resource   Resource
	Links      []Link
	Events     []Event

	// EventsExternalized marks the events as reference-only: each event's
	// attributes hold a single event-store id instead of the original payload.
	EventsExternalized bool

	// ExternalEventIDs records which event ids were loaded back from the
	// event store when the span was resolved on read.
	ExternalEventIDs []string
}

// IsRoot reports whether the span is the root of its trace.
func (s *Span) IsRoot() bool { return s.ParentID == "" }

// Context returns the span's own context in link form.
func (s *Span) Context() SpanContext {
	return SpanContext{TraceID: s.TraceID, SpanID: s.SpanID}
}

// Clone returns a deep copy. Stores and transforms operate on clones so that
// concurrent processing of the same span never aliases nested maps.
func (s *Span) Clone() *Span {
	out := *s
	out.Attributes = cloneStringMap(s.Attributes)
	out.Resource.Attributes = cloneStringMap(s.Resource.Attributes)
	if s.Links != nil {
		out.Links = make([]Link, len(s.Links))
		for i, l := range s.Links {
			out.Links[i] = Link{Context: l.Context, Attributes: cloneStringMap(l.Attributes)}
		}
	}
	if s.Events != nil {
		out.Events = make([]Event, len(s.Events))
		for i, e := range s.Events {
			out.Events[i] = Event{Name: e.Name, Timestamp: e.Timestamp, Attributes: cloneStringMap(e.Attributes)}
		}
	}
	if s.ExternalEventIDs != nil {
		out.ExternalEventIDs = append([]string(nil), s.ExternalEventIDs...)
	}
	return &out
}

// RestObject renders the span as a plain mapping for downstream consumers.
// Timestamps become ISO-8601 strings. Event ids that were externalized and not
// resolved back are moved out of the event attributes into the
// external_event_data_uris list, per the large-data contract.
func (s *Span) RestObject() map[string]any {
	events := make([]map[string]any, len(s.Events))
	externalURIs := append([]string(nil), s.ExternalEventIDs...)
	for i, ev := range s.Events {
		attrs := cloneStringMap(ev.Attributes)
		if len(s.ExternalEventIDs) == 0 {
			if id, ok := attrs[semconv.EventAttrEventID]; ok {
				delete(attrs, semconv.EventAttrEventID)
				externalURIs = append(externalURIs, id)
			}
		}
		events[i] = map[string]any{
			"name":       ev.Name,
			"timestamp":  ev.Timestamp.Format(time.RFC3339Nano),
			"attributes": attrs,
		}
	}
	if externalURIs == nil {
		externalURIs = []string{}
	}
	links := make([]map[string]any, len(s.Links))
	for i, l := range s.Links {
		links[i] = map[string]any{
			"context": map[string]any{
				"trace_id":    l.Context.TraceID,
				"span_id":     l.Context.SpanID,
				"trace_state": l.Context.TraceState,
			},
			"attributes": cloneStringMap(l.Attributes),
		}
	}
	var parent any
	if s.ParentID != "" {
		parent = s.ParentID
	}
	return map[string]any{
		"name": s.Name,
		"context": map[string]any{
			"trace_id": s.TraceID,
			"span_id":  s.SpanID,
		},
		"kind":       s.Kind,
		"parent_id":  parent,
		"start_time": s.StartTime.Format(time.RFC3339Nano),
		"end_time":   s.EndTime.Format(time.RFC3339Nano),
		"status": map[string]any{
			"status_code": s.Status.Code,
			"description": s.Status.Description,
		},
		"attributes": cloneStringMap(s.Attributes),
		"links":      links,
		"events":     events,
		"resource": map[string]any{
			"attributes": cloneStringMap(s.Resource.Attributes),
			"schema_url": s.Resource.SchemaURL,
		},
		"external_event_data_uris": externalURIs,
	}
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
