// Package store defines the persistence contracts the ingestion engine
// depends on. Implementations live elsewhere; the memory subpackage provides
// the reference implementation used by the CLI and the tests.
package store

import (
	"context"
	"errors"

	"github.com/flowline-ai/linerun-collector/internal/model"
)

var (
	// ErrLineRunNotFound signals an absent line run. It drives the
	// create-vs-update branch during ingestion and is never surfaced to
	// callers of the orchestrator.
	ErrLineRunNotFound = errors.New("line run not found")

	// ErrEventNotFound signals a dangling event reference. Unlike a line-run
	// miss this is a data-integrity fault and propagates to the caller.
	ErrEventNotFound = errors.New("event not found")

	ErrSpanNotFound = errors.New("span not found")

	// ErrLineRunExists is returned by conditional creates when a row for the
	// line-run id is already present.
	ErrLineRunExists = errors.New("line run already exists")
)

// StoredEvent is one externalized event payload, scoped to its span.
type StoredEvent struct {
	EventID string
	TraceID string
	SpanID  string
	Payload []byte
}

type SpanStore interface {
	Persist(ctx context.Context, span *model.Span) error
	Get(ctx context.Context, traceID, spanID string) (*model.Span, error)
}

type EventStore interface {
	Persist(ctx context.Context, event StoredEvent) error
	// Get returns the payload for an event id, or ErrEventNotFound.
	Get(ctx context.Context, eventID string) ([]byte, error)
}

type LineRunStore interface {
	// Get returns the line run for an id, or ErrLineRunNotFound.
	Get(ctx context.Context, lineRunID string) (*model.LineRun, error)
	// Create inserts a new line run; it must fail with ErrLineRunExists if a
	// row for the id is already present.
	Create(ctx context.Context, lineRun *model.LineRun) error
	// Update overwrites an existing line run, or fails with
	// ErrLineRunNotFound.
	Update(ctx context.Context, lineRun *model.LineRun) error
	// FindByRunAndLineNumber returns the line run created for a batch run line,
	// or nil when none exists.
	FindByRunAndLineNumber(ctx context.Context, run string, lineNumber int) (*model.LineRun, error)
}
