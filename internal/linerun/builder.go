// Package linerun reconstructs line-run aggregates from individual spans: a
// placeholder from whichever non-root span arrives first, the authoritative
// record from the trace's root span.
package linerun

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/flowline-ai/linerun-collector/internal/model"
	"github.com/flowline-ai/linerun-collector/internal/semconv"
	"github.com/flowline-ai/linerun-collector/internal/store"
)

// Options carries the injected defaults used during reconstruction.
type Options struct {
	// DefaultCollection is used when the span's resource carries no
	// collection attribute.
	DefaultCollection string
	// RunningStatus is the placeholder line-run status before the root span
	// has been seen.
	RunningStatus string
}

type Builder struct {
	lineRuns store.LineRunStore
	opts     Options
	logger   *slog.Logger
}

func NewBuilder(lineRuns store.LineRunStore, opts Options, logger *slog.Logger) *Builder {
	if opts.DefaultCollection == "" {
		opts.DefaultCollection = "default"
	}
	if opts.RunningStatus == "" {
		opts.RunningStatus = model.StatusRunning
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{lineRuns: lineRuns, opts: opts, logger: logger}
}

// FromNonRootSpan builds the placeholder line run: identity and provenance
// only, status Running, everything root-derived left unset.
func (b *Builder) FromNonRootSpan(ctx context.Context, span *model.Span) (*model.LineRun, error) {
	lineRun, err := b.common(ctx, span)
	if err != nil {
		return nil, err
	}
	lineRun.Status = b.opts.RunningStatus
	return lineRun, nil
}

// FromRootSpan builds the authoritative line run from the trace's root span:
// final status, end time, duration, inputs/outputs from the reserved events,
// and cumulative token counts when the trace consumed tokens.
func (b *Builder) FromRootSpan(ctx context.Context, span *model.Span) (*model.LineRun, error) {
	lineRun, err := b.common(ctx, span)
	if err != nil {
		return nil, err
	}
	endTime := span.EndTime
	duration := span.EndTime.Sub(span.StartTime).Seconds()
	lineRun.RootSpanID = span.SpanID
	lineRun.Status = statusOf(span)
	lineRun.EndTime = &endTime
	lineRun.Duration = &duration
	lineRun.Name = span.Name
	if spanType, ok := span.Attributes[semconv.AttrSpanType]; ok {
		lineRun.Kind = spanType
	} else {
		lineRun.Kind = span.Kind
	}
	lineRun.Inputs = b.payloadFromEvents(span, semconv.EventInputs)
	lineRun.Outputs = b.payloadFromEvents(span, semconv.EventOutput)
	lineRun.CumulativeTokenCount = tokenCountOf(span)
	return lineRun, nil
}

func (b *Builder) common(ctx context.Context, span *model.Span) (*model.LineRun, error) {
	parentID, err := ParentLineRunID(ctx, span, b.lineRuns)
	if err != nil {
		return nil, err
	}
	collection := span.Resource.Attributes[semconv.ResourceAttrCollection]
	if collection == "" {
		collection = b.opts.DefaultCollection
	}
	lineRun := &model.LineRun{
		LineRunID:  LineRunID(span),
		TraceID:    span.TraceID,
		StartTime:  span.StartTime,
		Collection: collection,
		ParentID:   parentID,
		Run:        span.Attributes[semconv.AttrBatchRunID],
		Experiment: span.Resource.Attributes[semconv.ResourceAttrExperimentName],
		SessionID:  span.Attributes[semconv.AttrSessionID],
	}
	if n, ok := lineNumberOf(span); ok {
		lineRun.LineNumber = &n
	}
	return lineRun, nil
}

func statusOf(span *model.Span) string {
	if span.Status.Code == model.StatusCodeError {
		return model.StatusFailed
	}
	return model.StatusCompleted
}

// tokenCountOf aggregates the root span's cumulative token attributes. A
// non-positive total means the trace consumed no tokens and yields no count.
func tokenCountOf(span *model.Span) *model.TokenCount {
	total := intAttribute(span, semconv.AttrTotalTokenCount)
	if total <= 0 {
		return nil
	}
	return &model.TokenCount{
		Completion: intAttribute(span, semconv.AttrCompletionTokenCount),
		Prompt:     intAttribute(span, semconv.AttrPromptTokenCount),
		Total:      total,
	}
}

// payloadFromEvents scans the span's events for a reserved event name and
// JSON-decodes its payload attribute. Anomalies are non-fatal: a missing or
// undecodable payload yields no value.
func (b *Builder) payloadFromEvents(span *model.Span, eventName string) map[string]any {
	for _, event := range span.Events {
		if event.Name != eventName {
			continue
		}
		raw, ok := event.Attributes[semconv.EventAttrPayload]
		if !ok {
			b.logger.Debug("reserved event has no payload attribute",
				"event", eventName, "span_id", span.SpanID)
			return nil
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			b.logger.Debug("reserved event payload is not a JSON object",
				"event", eventName, "span_id", span.SpanID, "err", err)
			return nil
		}
		return payload
	}
	return nil
}
