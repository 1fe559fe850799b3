// Package memory provides in-memory implementations of the store contracts.
// Writes are conditional (create rejects duplicates, update rejects missing
// rows) so the stores can back the ingestion idempotency tests and the offline
// CLI without an external database.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowline-ai/linerun-collector/internal/model"
	"github.com/flowline-ai/linerun-collector/internal/store"
)

type SpanStore struct {
	mu    sync.RWMutex
	spans map[string]*model.Span
}

func NewSpanStore() *SpanStore {
	return &SpanStore{spans: make(map[string]*model.Span)}
}

func spanKey(traceID, spanID string) string { return traceID + "/" + spanID }

func (s *SpanStore) Persist(_ context.Context, span *model.Span) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans[spanKey(span.TraceID, span.SpanID)] = span.Clone()
	return nil
}

func (s *SpanStore) Get(_ context.Context, traceID, spanID string) (*model.Span, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	span, ok := s.spans[spanKey(traceID, spanID)]
	if !ok {
		return nil, fmt.Errorf("span %s/%s: %w", traceID, spanID, store.ErrSpanNotFound)
	}
	return span.Clone(), nil
}

func (s *SpanStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.spans)
}

type EventStore struct {
	mu     sync.RWMutex
	events map[string]store.StoredEvent
}

func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string]store.StoredEvent)}
}

func (s *EventStore) Persist(_ context.Context, event store.StoredEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.EventID] = event
	return nil
}

func (s *EventStore) Get(_ context.Context, eventID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, store.ErrEventNotFound)
	}
	return event.Payload, nil
}

func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

type LineRunStore struct {
	mu   sync.RWMutex
	runs map[string]*model.LineRun
}

func NewLineRunStore() *LineRunStore {
	return &LineRunStore{runs: make(map[string]*model.LineRun)}
}

func (s *LineRunStore) Get(_ context.Context, lineRunID string) (*model.LineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lineRun, ok := s.runs[lineRunID]
	if !ok {
		return nil, fmt.Errorf("line run %s: %w", lineRunID, store.ErrLineRunNotFound)
	}
	return lineRun.Clone(), nil
}

func (s *LineRunStore) Create(_ context.Context, lineRun *model.LineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[lineRun.LineRunID]; ok {
		return fmt.Errorf("line run %s: %w", lineRun.LineRunID, store.ErrLineRunExists)
	}
	s.runs[lineRun.LineRunID] = lineRun.Clone()
	return nil
}

func (s *LineRunStore) Update(_ context.Context, lineRun *model.LineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[lineRun.LineRunID]; !ok {
		return fmt.Errorf("line run %s: %w", lineRun.LineRunID, store.ErrLineRunNotFound)
	}
	s.runs[lineRun.LineRunID] = lineRun.Clone()
	return nil
}

func (s *LineRunStore) FindByRunAndLineNumber(_ context.Context, run string, lineNumber int) (*model.LineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, lineRun := range s.runs {
		if lineRun.Run == run && lineRun.LineNumber != nil && *lineRun.LineNumber == lineNumber {
			return lineRun.Clone(), nil
		}
	}
	return nil, nil
}

// LineRuns returns a snapshot of all stored line runs.
func (s *LineRunStore) LineRuns() []*model.LineRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.LineRun, 0, len(s.runs))
	for _, lineRun := range s.runs {
		out = append(out, lineRun.Clone())
	}
	return out
}
