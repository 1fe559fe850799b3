package linerun

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-ai/linerun-collector/internal/model"
	"github.com/flowline-ai/linerun-collector/internal/semconv"
	"github.com/flowline-ai/linerun-collector/internal/store/memory"
)

var (
	spanStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	spanEnd   = spanStart.Add(1500 * time.Millisecond)
)

func rootSpan() *model.Span {
	return &model.Span{
		TraceID:    "abc123",
		SpanID:     "span-root",
		Name:       "my_flow",
		Kind:       "INTERNAL",
		StartTime:  spanStart,
		EndTime:    spanEnd,
		Status:     model.Status{Code: model.StatusCodeOK},
		Attributes: map[string]string{},
		Resource:   model.Resource{Attributes: map[string]string{}},
	}
}

func childSpan() *model.Span {
	span := rootSpan()
	span.SpanID = "span-child"
	span.ParentID = "span-root"
	return span
}

func newTestBuilder(t *testing.T) (*Builder, *memory.LineRunStore) {
	t.Helper()
	st := memory.NewLineRunStore()
	return NewBuilder(st, Options{}, nil), st
}

func TestLineRunIDFallsBackToTraceID(t *testing.T) {
	span := rootSpan()
	assert.Equal(t, "abc123", LineRunID(span))

	span.Attributes[semconv.AttrLineRunID] = "xyz"
	assert.Equal(t, "xyz", LineRunID(span))
}

func TestParentLineRunIDExplicit(t *testing.T) {
	builder, _ := newTestBuilder(t)
	span := childSpan()
	span.Attributes[semconv.AttrReferencedLineRunID] = "parent-run"

	lineRun, err := builder.FromNonRootSpan(context.Background(), span)
	require.NoError(t, err)
	assert.Equal(t, "parent-run", lineRun.ParentID)
}

func TestParentLineRunIDViaBatchLookup(t *testing.T) {
	ctx := context.Background()
	st := memory.NewLineRunStore()
	two := 2
	require.NoError(t, st.Create(ctx, &model.LineRun{
		LineRunID:  "lr9",
		TraceID:    "other-trace",
		Run:        "run1",
		LineNumber: &two,
		Status:     model.StatusCompleted,
	}))

	span := childSpan()
	span.Attributes[semconv.AttrReferencedBatchRunID] = "run1"
	span.Attributes[semconv.AttrLineNumber] = "2"

	parentID, err := ParentLineRunID(ctx, span, st)
	require.NoError(t, err)
	assert.Equal(t, "lr9", parentID)

	// No line run exists for this batch run line.
	span.Attributes[semconv.AttrLineNumber] = "5"
	parentID, err = ParentLineRunID(ctx, span, st)
	require.NoError(t, err)
	assert.Empty(t, parentID)
}

func TestParentLineRunIDAbsent(t *testing.T) {
	st := memory.NewLineRunStore()
	parentID, err := ParentLineRunID(context.Background(), childSpan(), st)
	require.NoError(t, err)
	assert.Empty(t, parentID)
}

func TestFromNonRootSpanPlaceholder(t *testing.T) {
	builder, _ := newTestBuilder(t)
	lineRun, err := builder.FromNonRootSpan(context.Background(), childSpan())
	require.NoError(t, err)

	assert.Equal(t, "abc123", lineRun.LineRunID)
	assert.Equal(t, "abc123", lineRun.TraceID)
	assert.Equal(t, model.StatusRunning, lineRun.Status)
	assert.Equal(t, spanStart, lineRun.StartTime)
	assert.Empty(t, lineRun.RootSpanID)
	assert.Nil(t, lineRun.Inputs)
	assert.Nil(t, lineRun.Outputs)
	assert.Nil(t, lineRun.EndTime)
	assert.Nil(t, lineRun.Duration)
	assert.Empty(t, lineRun.Name)
}

func TestFromRootSpanAuthoritative(t *testing.T) {
	builder, _ := newTestBuilder(t)
	span := rootSpan()
	span.Attributes[semconv.AttrSpanType] = "Flow"
	span.Attributes[semconv.AttrBatchRunID] = "run1"
	span.Attributes[semconv.AttrLineNumber] = "4"
	span.Attributes[semconv.AttrSessionID] = "sess-1"
	span.Resource.Attributes[semconv.ResourceAttrCollection] = "my-flows"
	span.Resource.Attributes[semconv.ResourceAttrExperimentName] = "exp-1"
	span.Events = []model.Event{
		{
			Name:       semconv.EventInputs,
			Attributes: map[string]string{semconv.EventAttrPayload: `{"question":"hi"}`},
		},
		{
			Name:       semconv.EventOutput,
			Attributes: map[string]string{semconv.EventAttrPayload: `{"answer":"hello"}`},
		},
	}

	lineRun, err := builder.FromRootSpan(context.Background(), span)
	require.NoError(t, err)

	assert.Equal(t, "span-root", lineRun.RootSpanID)
	assert.Equal(t, model.StatusCompleted, lineRun.Status)
	assert.Equal(t, "my_flow", lineRun.Name)
	assert.Equal(t, "Flow", lineRun.Kind)
	assert.Equal(t, "my-flows", lineRun.Collection)
	assert.Equal(t, "exp-1", lineRun.Experiment)
	assert.Equal(t, "run1", lineRun.Run)
	require.NotNil(t, lineRun.LineNumber)
	assert.Equal(t, 4, *lineRun.LineNumber)
	assert.Equal(t, "sess-1", lineRun.SessionID)
	require.NotNil(t, lineRun.EndTime)
	assert.True(t, lineRun.EndTime.Equal(spanEnd))
	require.NotNil(t, lineRun.Duration)
	assert.InDelta(t, 1.5, *lineRun.Duration, 1e-9)
	assert.Equal(t, map[string]any{"question": "hi"}, lineRun.Inputs)
	assert.Equal(t, map[string]any{"answer": "hello"}, lineRun.Outputs)
}

func TestFromRootSpanStatusMapping(t *testing.T) {
	builder, _ := newTestBuilder(t)
	ctx := context.Background()

	span := rootSpan()
	span.Status.Code = model.StatusCodeError
	lineRun, err := builder.FromRootSpan(ctx, span)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, lineRun.Status)

	span.Status.Code = model.StatusCodeUnset
	lineRun, err = builder.FromRootSpan(ctx, span)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, lineRun.Status)
}

func TestFromRootSpanKindFallsBackToSpanKind(t *testing.T) {
	builder, _ := newTestBuilder(t)
	lineRun, err := builder.FromRootSpan(context.Background(), rootSpan())
	require.NoError(t, err)
	assert.Equal(t, "INTERNAL", lineRun.Kind)
}

func TestFromRootSpanDefaultCollection(t *testing.T) {
	st := memory.NewLineRunStore()
	builder := NewBuilder(st, Options{DefaultCollection: "sandbox"}, nil)
	lineRun, err := builder.FromRootSpan(context.Background(), rootSpan())
	require.NoError(t, err)
	assert.Equal(t, "sandbox", lineRun.Collection)
}

func TestTokenAggregation(t *testing.T) {
	builder, _ := newTestBuilder(t)
	ctx := context.Background()

	span := rootSpan()
	span.Attributes[semconv.AttrCompletionTokenCount] = "3"
	span.Attributes[semconv.AttrPromptTokenCount] = "5"
	span.Attributes[semconv.AttrTotalTokenCount] = "8"
	lineRun, err := builder.FromRootSpan(ctx, span)
	require.NoError(t, err)
	assert.Equal(t, &model.TokenCount{Completion: 3, Prompt: 5, Total: 8}, lineRun.CumulativeTokenCount)

	// Zero total means no token count at all.
	span.Attributes[semconv.AttrTotalTokenCount] = "0"
	lineRun, err = builder.FromRootSpan(ctx, span)
	require.NoError(t, err)
	assert.Nil(t, lineRun.CumulativeTokenCount)

	// Absent total likewise.
	delete(span.Attributes, semconv.AttrTotalTokenCount)
	lineRun, err = builder.FromRootSpan(ctx, span)
	require.NoError(t, err)
	assert.Nil(t, lineRun.CumulativeTokenCount)
}

func TestFromRootSpanUndecodablePayloadTolerated(t *testing.T) {
	builder, _ := newTestBuilder(t)
	span := rootSpan()
	span.Events = []model.Event{{
		Name:       semconv.EventInputs,
		Attributes: map[string]string{semconv.EventAttrPayload: "not json"},
	}}
	lineRun, err := builder.FromRootSpan(context.Background(), span)
	require.NoError(t, err)
	assert.Nil(t, lineRun.Inputs)
}
