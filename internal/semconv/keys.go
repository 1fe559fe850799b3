// Package semconv holds the span attribute, resource attribute and event
// vocabulary the line-run reconstruction relies on. Producers emit these keys
// on OpenTelemetry spans; nothing here is part of the standard OTel semantic
// conventions.
package semconv

// Span attributes.
const (
	// AttrLineRunID overrides the derived line-run id. Emitted by ad-hoc and
	// test executions; batch runs rely on the trace id instead.
	AttrLineRunID = "line_run_id"

	// AttrReferencedLineRunID links a span to the line run that invoked it.
	AttrReferencedLineRunID = "referenced.line_run_id"

	// AttrBatchRunID and AttrLineNumber identify a span's position within a
	// batch run.
	AttrBatchRunID = "batch_run_id"
	AttrLineNumber = "line_number"

	// AttrReferencedBatchRunID, together with AttrLineNumber, identifies the
	// parent line run indirectly; resolving it requires a store lookup.
	AttrReferencedBatchRunID = "referenced.batch_run_id"

	AttrSessionID = "session_id"

	// AttrSpanType carries the semantic span type (LLM, Tool, Flow, ...) and
	// takes precedence over the protocol-level span kind.
	AttrSpanType = "span_type"

	// Cumulative token counts aggregated over the whole trace, present on the
	// root span only.
	AttrCompletionTokenCount = "__computed__.cumulative_token_count.completion"
	AttrPromptTokenCount     = "__computed__.cumulative_token_count.prompt"
	AttrTotalTokenCount      = "__computed__.cumulative_token_count.total"
)

// Resource attributes.
const (
	ResourceAttrCollection     = "collection"
	ResourceAttrExperimentName = "experiment.name"
	ResourceAttrServiceName    = "service.name"
)

// Span events.
const (
	// EventInputs and EventOutput are the reserved event names whose payloads
	// carry the pipeline's final inputs and output on the root span.
	EventInputs = "promptflow.function.inputs"
	EventOutput = "promptflow.function.output"

	// EventAttrPayload is the event attribute holding the JSON payload.
	EventAttrPayload = "payload"

	// EventAttrEventID replaces an event's attributes once the payload has
	// been externalized to the event store.
	EventAttrEventID = "event.id"
)
