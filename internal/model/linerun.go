package model

import "time"

// Line-run lifecycle statuses. Running is the placeholder until the trace's
// root span has been processed.
const (
	StatusRunning   = "Running"
	StatusCompleted = "Completed"
	StatusFailed    = "Failed"
)

type TokenCount struct {
	Completion int `json:"completion"`
	Prompt     int `json:"prompt"`
	Total      int `json:"total"`
}

// LineRun is the aggregate for one logical end-to-end pipeline execution,
// reconstructed from the spans of its trace. Status, end time, duration,
// inputs, outputs and token counts are only ever derived from the root span.
type LineRun struct {
	LineRunID  string
	TraceID    string
	RootSpanID string // empty until the root span is known
	Inputs     map[string]any
	Outputs    map[string]any
	StartTime  time.Time
	EndTime    *time.Time
	Status     string
	Duration   *float64 // seconds
	Name       string
	Kind       string
	Collection string

	CumulativeTokenCount *TokenCount

	// ParentID is the line run that logically invoked this one, when known.
	ParentID   string
	Run        string
	LineNumber *int
	Experiment string
	SessionID  string

	// Evaluations holds evaluator line runs attached out-of-band, keyed by
	// evaluation name. Not derived from span data.
	Evaluations map[string]*LineRun
}

// Clone returns a deep copy.
func (lr *LineRun) Clone() *LineRun {
	out := *lr
	out.Inputs = cloneAnyMap(lr.Inputs)
	out.Outputs = cloneAnyMap(lr.Outputs)
	if lr.EndTime != nil {
		t := *lr.EndTime
		out.EndTime = &t
	}
	if lr.Duration != nil {
		d := *lr.Duration
		out.Duration = &d
	}
	if lr.CumulativeTokenCount != nil {
		tc := *lr.CumulativeTokenCount
		out.CumulativeTokenCount = &tc
	}
	if lr.LineNumber != nil {
		n := *lr.LineNumber
		out.LineNumber = &n
	}
	if lr.Evaluations != nil {
		out.Evaluations = make(map[string]*LineRun, len(lr.Evaluations))
		for name, eval := range lr.Evaluations {
			out.Evaluations[name] = eval.Clone()
		}
	}
	return &out
}

// AppendEvaluations attaches evaluator line runs, keyed by their run name when
// present, otherwise by their own name.
func (lr *LineRun) AppendEvaluations(evaluations ...*LineRun) {
	for _, evaluation := range evaluations {
		if lr.Evaluations == nil {
			lr.Evaluations = make(map[string]*LineRun)
		}
		name := evaluation.Run
		if name == "" {
			name = evaluation.Name
		}
		lr.Evaluations[name] = evaluation
	}
}

// RestObject renders the line run as a plain mapping with ISO-8601 timestamps,
// including nested evaluations.
func (lr *LineRun) RestObject() map[string]any {
	var endTime any
	if lr.EndTime != nil {
		endTime = lr.EndTime.Format(time.RFC3339Nano)
	}
	var duration any
	if lr.Duration != nil {
		duration = *lr.Duration
	}
	var tokens any
	if lr.CumulativeTokenCount != nil {
		tokens = map[string]any{
			"completion": lr.CumulativeTokenCount.Completion,
			"prompt":     lr.CumulativeTokenCount.Prompt,
			"total":      lr.CumulativeTokenCount.Total,
		}
	}
	var lineNumber any
	if lr.LineNumber != nil {
		lineNumber = *lr.LineNumber
	}
	var evaluations map[string]any
	if lr.Evaluations != nil {
		evaluations = make(map[string]any, len(lr.Evaluations))
		for name, eval := range lr.Evaluations {
			evaluations[name] = eval.RestObject()
		}
	}
	return map[string]any{
		"line_run_id":            lr.LineRunID,
		"trace_id":               lr.TraceID,
		"root_span_id":           emptyAsNil(lr.RootSpanID),
		"inputs":                 lr.Inputs,
		"outputs":                lr.Outputs,
		"start_time":             lr.StartTime.Format(time.RFC3339Nano),
		"end_time":               endTime,
		"status":                 lr.Status,
		"duration":               duration,
		"name":                   emptyAsNil(lr.Name),
		"kind":                   lr.Kind,
		"collection":             lr.Collection,
		"cumulative_token_count": tokens,
		"parent_id":              emptyAsNil(lr.ParentID),
		"run":                    emptyAsNil(lr.Run),
		"line_number":            lineNumber,
		"experiment":             emptyAsNil(lr.Experiment),
		"session_id":             emptyAsNil(lr.SessionID),
		"evaluations":            evaluations,
	}
}

func emptyAsNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
