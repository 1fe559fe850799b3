package linerun

import (
	"context"
	"fmt"
	"strconv"

	"github.com/flowline-ai/linerun-collector/internal/model"
	"github.com/flowline-ai/linerun-collector/internal/semconv"
	"github.com/flowline-ai/linerun-collector/internal/store"
)

// LineRunID derives the logical run identity for a span. Ad-hoc and test
// executions carry an explicit line-run-id attribute; batch and production
// traces use the trace id directly.
func LineRunID(span *model.Span) string {
	if id, ok := span.Attributes[semconv.AttrLineRunID]; ok {
		return id
	}
	return span.TraceID
}

// ParentLineRunID derives the identity of the line run that invoked this one.
// An explicit referenced-line-run-id attribute wins. Otherwise a referenced
// batch run id plus line number is resolved through the line-run store; this
// is the only point where reconstruction needs cross-trace state. Spans with
// neither have no parent.
func ParentLineRunID(ctx context.Context, span *model.Span, lineRuns store.LineRunStore) (string, error) {
	if id, ok := span.Attributes[semconv.AttrReferencedLineRunID]; ok {
		return id, nil
	}
	run, ok := span.Attributes[semconv.AttrReferencedBatchRunID]
	if !ok {
		return "", nil
	}
	lineNumber, ok := lineNumberOf(span)
	if !ok {
		return "", nil
	}
	parent, err := lineRuns.FindByRunAndLineNumber(ctx, run, lineNumber)
	if err != nil {
		return "", fmt.Errorf("find line run for batch run %q line %d: %w", run, lineNumber, err)
	}
	if parent == nil {
		return "", nil
	}
	return parent.LineRunID, nil
}

func lineNumberOf(span *model.Span) (int, bool) {
	raw, ok := span.Attributes[semconv.AttrLineNumber]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func intAttribute(span *model.Span, key string) int {
	raw, ok := span.Attributes[key]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
