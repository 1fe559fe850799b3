// Package ingestion sequences the per-span persistence transaction: line-run
// upsert, then event externalization, then span persistence. It is the only
// component that touches storage write paths.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"golang.org/x/sync/errgroup"

	"github.com/flowline-ai/linerun-collector/internal/decoder"
	"github.com/flowline-ai/linerun-collector/internal/events"
	"github.com/flowline-ai/linerun-collector/internal/linerun"
	"github.com/flowline-ai/linerun-collector/internal/model"
	"github.com/flowline-ai/linerun-collector/internal/store"
)

const defaultWorkers = 8

type Config struct {
	// Workers bounds concurrent span ingestion in IngestRequest.
	Workers int
}

type Ingestor struct {
	spans    store.SpanStore
	lineRuns store.LineRunStore
	ext      *events.Externalizer
	builder  *linerun.Builder
	dec      *decoder.Decoder
	logger   *slog.Logger
	workers  int

	// locks serializes the lookup-then-write window per line-run id so that
	// concurrent spans of one trace yield exactly one stored row. Entries live
	// for the engine's lifetime.
	locks sync.Map // line run id -> *sync.Mutex
}

func New(spans store.SpanStore, eventStore store.EventStore, lineRuns store.LineRunStore,
	builder *linerun.Builder, dec *decoder.Decoder, logger *slog.Logger, cfg Config) *Ingestor {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		spans:    spans,
		lineRuns: lineRuns,
		ext:      events.NewExternalizer(eventStore),
		builder:  builder,
		dec:      dec,
		logger:   logger,
		workers:  cfg.Workers,
	}
}

// IngestSpan processes one span end-to-end. The order is fixed: the line run
// is upserted first so a later persistence failure cannot leave it missing,
// events are externalized next so the stored span never embeds large payloads,
// and the reference-only span is persisted last.
func (in *Ingestor) IngestSpan(ctx context.Context, span *model.Span) error {
	if err := in.upsertLineRun(ctx, span); err != nil {
		return fmt.Errorf("upsert line run for span %s: %w", span.SpanID, err)
	}
	stored, err := in.ext.Externalize(ctx, span)
	if err != nil {
		return fmt.Errorf("externalize events of span %s: %w", span.SpanID, err)
	}
	if err := in.spans.Persist(ctx, stored); err != nil {
		return fmt.Errorf("persist span %s: %w", span.SpanID, err)
	}
	return nil
}

// upsertLineRun applies the idempotent create-vs-update protocol. The root
// span always supersedes a placeholder; a non-root span only creates when no
// row exists yet. The per-id lock makes the lookup and the conditional write
// atomic with respect to other ingestions of the same line run.
func (in *Ingestor) upsertLineRun(ctx context.Context, span *model.Span) error {
	if span.IsRoot() {
		lineRun, err := in.builder.FromRootSpan(ctx, span)
		if err != nil {
			return err
		}
		unlock := in.lock(lineRun.LineRunID)
		defer unlock()
		_, err = in.lineRuns.Get(ctx, lineRun.LineRunID)
		switch {
		case errors.Is(err, store.ErrLineRunNotFound):
			// Root span is the first span seen for its trace.
			return in.lineRuns.Create(ctx, lineRun)
		case err != nil:
			return err
		default:
			return in.lineRuns.Update(ctx, lineRun)
		}
	}

	lineRun, err := in.builder.FromNonRootSpan(ctx, span)
	if err != nil {
		return err
	}
	unlock := in.lock(lineRun.LineRunID)
	defer unlock()
	_, err = in.lineRuns.Get(ctx, lineRun.LineRunID)
	switch {
	case errors.Is(err, store.ErrLineRunNotFound):
		return in.lineRuns.Create(ctx, lineRun)
	case err != nil:
		return err
	default:
		// Already created by a previously processed span, root or not.
		return nil
	}
}

func (in *Ingestor) lock(lineRunID string) func() {
	v, _ := in.locks.LoadOrStore(lineRunID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// IngestRequest decodes a full trace export request and ingests every span,
// processing spans concurrently with a bounded worker group. Spans carry no
// ordering requirement, so concurrent ingestion is safe. Returns the number of
// spans ingested; the first error cancels the remainder.
func (in *Ingestor) IngestRequest(ctx context.Context, req *collectortracepb.ExportTraceServiceRequest) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)

	total := 0
	for _, rs := range req.GetResourceSpans() {
		resource := decoder.DecodeResource(rs.GetResource(), rs.GetSchemaUrl())
		for _, ss := range rs.GetScopeSpans() {
			for _, pbSpan := range ss.GetSpans() {
				span, err := in.dec.DecodeSpan(pbSpan, resource)
				if err != nil {
					in.logger.Debug("skipping undecodable span", "err", err)
					continue
				}
				total++
				g.Go(func() error {
					return in.IngestSpan(ctx, span)
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

// Span reads a persisted span back, optionally resolving its externalized
// events to full payloads.
func (in *Ingestor) Span(ctx context.Context, traceID, spanID string, resolveEvents bool) (*model.Span, error) {
	span, err := in.spans.Get(ctx, traceID, spanID)
	if err != nil {
		return nil, err
	}
	if resolveEvents {
		return in.ext.Resolve(ctx, span)
	}
	return span, nil
}

// LineRun reads a line run back by id.
func (in *Ingestor) LineRun(ctx context.Context, lineRunID string) (*model.LineRun, error) {
	return in.lineRuns.Get(ctx, lineRunID)
}
