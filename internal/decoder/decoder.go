// Package decoder turns OTLP protobuf span records into canonical model.Span
// values. Malformed individual fields are tolerated and logged at debug level;
// only a structurally unreadable record fails the decode.
package decoder

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/flowline-ai/linerun-collector/internal/model"
)

// ErrMalformedSpan is returned when a wire record is structurally unreadable
// and no partial Span can be produced.
var ErrMalformedSpan = errors.New("malformed span record")

type Decoder struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// DecodeRequest parses a serialized ExportTraceServiceRequest. Binary protobuf
// is assumed unless the content type mentions JSON.
func (d *Decoder) DecodeRequest(raw []byte, contentType string) (*collectortracepb.ExportTraceServiceRequest, error) {
	var req collectortracepb.ExportTraceServiceRequest
	var err error
	if strings.Contains(strings.ToLower(contentType), "json") {
		err = protojson.Unmarshal(raw, &req)
	} else {
		err = proto.Unmarshal(raw, &req)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSpan, err)
	}
	return &req, nil
}

// DecodeResource flattens an OTLP resource into the canonical form.
func DecodeResource(rs *resourcepb.Resource, schemaURL string) model.Resource {
	res := model.Resource{Attributes: map[string]string{}, SchemaURL: schemaURL}
	if rs != nil {
		res.Attributes = flattenKeyValues(rs.GetAttributes())
	}
	return res
}

// DecodeSpan converts one protobuf span plus its resource metadata into a
// canonical Span. The trace and span ids must be present; everything else is
// decoded defensively.
func (d *Decoder) DecodeSpan(span *tracepb.Span, resource model.Resource) (*model.Span, error) {
	if span == nil || len(span.GetTraceId()) == 0 || len(span.GetSpanId()) == 0 {
		return nil, fmt.Errorf("%w: missing trace or span id", ErrMalformedSpan)
	}
	traceID := hex.EncodeToString(span.GetTraceId())
	spanID := hex.EncodeToString(span.GetSpanId())
	parentID := hex.EncodeToString(span.GetParentSpanId())

	d.logger.Debug("decoding span", "trace_id", traceID, "span_id", spanID, "name", span.GetName())

	// Some producers omit the attributes field entirely; treat as empty.
	attrs := flattenKeyValues(span.GetAttributes())

	out := &model.Span{
		TraceID:    traceID,
		SpanID:     spanID,
		ParentID:   parentID,
		Name:       span.GetName(),
		Kind:       decodeKind(span.GetKind()),
		StartTime:  unixNanoToTime(span.GetStartTimeUnixNano()),
		EndTime:    unixNanoToTime(span.GetEndTimeUnixNano()),
		Status:     d.decodeStatus(span.GetStatus()),
		Attributes: attrs,
		Resource:   resource,
		Links:      d.decodeLinks(span.GetLinks()),
		Events:     d.decodeEvents(span.GetEvents()),
	}
	if out.EndTime.Before(out.StartTime) {
		d.logger.Debug("span end time precedes start time", "trace_id", traceID, "span_id", spanID)
	}
	return out, nil
}

func (d *Decoder) decodeStatus(st *tracepb.Status) model.Status {
	if st == nil {
		d.logger.Debug("span has no status, defaulting to unset")
		return model.Status{Code: model.StatusCodeUnset}
	}
	var code string
	switch st.GetCode() {
	case tracepb.Status_STATUS_CODE_OK:
		code = model.StatusCodeOK
	case tracepb.Status_STATUS_CODE_ERROR:
		code = model.StatusCodeError
	default:
		code = model.StatusCodeUnset
	}
	return model.Status{Code: code, Description: st.GetMessage()}
}

func (d *Decoder) decodeEvents(events []*tracepb.Span_Event) []model.Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev == nil {
			continue
		}
		out = append(out, model.Event{
			Name:       ev.GetName(),
			Timestamp:  unixNanoToTime(ev.GetTimeUnixNano()),
			Attributes: flattenKeyValues(ev.GetAttributes()),
		})
	}
	return out
}

func (d *Decoder) decodeLinks(links []*tracepb.Span_Link) []model.Link {
	if len(links) == 0 {
		return nil
	}
	out := make([]model.Link, 0, len(links))
	for _, l := range links {
		if l == nil {
			continue
		}
		out = append(out, model.Link{
			Context: model.SpanContext{
				TraceID:    hex.EncodeToString(l.GetTraceId()),
				SpanID:     hex.EncodeToString(l.GetSpanId()),
				TraceState: l.GetTraceState(),
			},
			Attributes: flattenKeyValues(l.GetAttributes()),
		})
	}
	return out
}

func decodeKind(kind tracepb.Span_SpanKind) string {
	name := kind.String() // e.g. SPAN_KIND_INTERNAL
	return strings.TrimPrefix(name, "SPAN_KIND_")
}

func unixNanoToTime(ns uint64) time.Time {
	return time.Unix(0, int64(ns)).UTC()
}

// flattenKeyValues flattens a nested protobuf attribute list into a flat
// string-keyed map. Nested kvlist keys are joined with dots; scalar values are
// coerced to their string form.
func flattenKeyValues(kvs []*commonpb.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	flattenInto(out, "", kvs)
	return out
}

func flattenInto(out map[string]string, prefix string, kvs []*commonpb.KeyValue) {
	for _, kv := range kvs {
		if kv == nil {
			continue
		}
		key := kv.GetKey()
		if prefix != "" {
			key = prefix + "." + key
		}
		value := kv.GetValue()
		if nested, ok := value.GetValue().(*commonpb.AnyValue_KvlistValue); ok {
			flattenInto(out, key, nested.KvlistValue.GetValues())
			continue
		}
		if s, ok := coerceValue(value); ok {
			out[key] = s
		}
	}
}

func coerceValue(value *commonpb.AnyValue) (string, bool) {
	if value == nil {
		return "", false
	}
	switch v := value.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return v.StringValue, true
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(v.IntValue, 10), true
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(v.DoubleValue, 'g', -1, 64), true
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(v.BoolValue), true
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(v.BytesValue), true
	case *commonpb.AnyValue_ArrayValue:
		elems := make([]any, 0, len(v.ArrayValue.GetValues()))
		for _, av := range v.ArrayValue.GetValues() {
			if s, ok := coerceValue(av); ok {
				elems = append(elems, s)
			}
		}
		j, err := json.Marshal(elems)
		if err != nil {
			return "", false
		}
		return string(j), true
	default:
		return "", false
	}
}
