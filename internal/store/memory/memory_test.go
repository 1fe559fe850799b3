package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-ai/linerun-collector/internal/model"
	"github.com/flowline-ai/linerun-collector/internal/store"
)

func testLineRun(id string) *model.LineRun {
	return &model.LineRun{
		LineRunID:  id,
		TraceID:    id,
		Status:     model.StatusRunning,
		StartTime:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Collection: "default",
	}
}

func TestLineRunConditionalCreate(t *testing.T) {
	ctx := context.Background()
	st := NewLineRunStore()

	require.NoError(t, st.Create(ctx, testLineRun("lr-1")))
	err := st.Create(ctx, testLineRun("lr-1"))
	assert.ErrorIs(t, err, store.ErrLineRunExists)
}

func TestLineRunConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	st := NewLineRunStore()

	err := st.Update(ctx, testLineRun("lr-1"))
	assert.ErrorIs(t, err, store.ErrLineRunNotFound)

	require.NoError(t, st.Create(ctx, testLineRun("lr-1")))
	updated := testLineRun("lr-1")
	updated.Status = model.StatusCompleted
	require.NoError(t, st.Update(ctx, updated))

	got, err := st.Get(ctx, "lr-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestLineRunGetNotFound(t *testing.T) {
	st := NewLineRunStore()
	_, err := st.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrLineRunNotFound)
}

func TestLineRunCloneIsolation(t *testing.T) {
	ctx := context.Background()
	st := NewLineRunStore()

	lineRun := testLineRun("lr-1")
	lineRun.Inputs = map[string]any{"question": "hi"}
	require.NoError(t, st.Create(ctx, lineRun))

	// Mutating the caller's value or a returned value must not leak into the
	// stored row.
	lineRun.Inputs["question"] = "changed"
	got, err := st.Get(ctx, "lr-1")
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Inputs["question"])

	got.Inputs["question"] = "changed again"
	again, err := st.Get(ctx, "lr-1")
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Inputs["question"])
}

func TestFindByRunAndLineNumber(t *testing.T) {
	ctx := context.Background()
	st := NewLineRunStore()

	two := 2
	lineRun := testLineRun("lr-9")
	lineRun.Run = "run1"
	lineRun.LineNumber = &two
	require.NoError(t, st.Create(ctx, lineRun))

	got, err := st.FindByRunAndLineNumber(ctx, "run1", 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "lr-9", got.LineRunID)

	got, err = st.FindByRunAndLineNumber(ctx, "run1", 3)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = st.FindByRunAndLineNumber(ctx, "other", 2)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSpanStore(t *testing.T) {
	ctx := context.Background()
	st := NewSpanStore()

	span := &model.Span{TraceID: "trace-1", SpanID: "span-1", Name: "flow"}
	require.NoError(t, st.Persist(ctx, span))

	got, err := st.Get(ctx, "trace-1", "span-1")
	require.NoError(t, err)
	assert.Equal(t, "flow", got.Name)

	_, err = st.Get(ctx, "trace-1", "missing")
	assert.ErrorIs(t, err, store.ErrSpanNotFound)
}

func TestEventStore(t *testing.T) {
	ctx := context.Background()
	st := NewEventStore()

	require.NoError(t, st.Persist(ctx, store.StoredEvent{
		EventID: "ev-1",
		TraceID: "trace-1",
		SpanID:  "span-1",
		Payload: []byte("payload"),
	}))

	payload, err := st.Get(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), payload)

	_, err = st.Get(ctx, "ev-2")
	assert.ErrorIs(t, err, store.ErrEventNotFound)
}
