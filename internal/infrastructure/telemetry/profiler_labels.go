package telemetry

import (
	"context"
	"sort"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys. Values must stay low-cardinality: route patterns
// and job names, never references or account IDs.
const (
	ProfilingLabelRoute  = "route"
	ProfilingLabelMethod = "method"
	ProfilingLabelJob    = "job"
)

// maxLabelValueLength bounds label values
const maxLabelValueLength = 128

// blockedLabels are keys whose values are unique per request
var blockedLabels = map[string]bool{
	"reference_id": true,
	"user_id":      true,
	"business_id":  true,
	"request_id":   true,
	"trace_id":     true,
}

// WithProfilingLabels runs fn with labels attached to its pprof samples.
// Empty and per-request keys are dropped; fn always runs.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := labelPairs(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// labelPairs flattens labels into sorted key/value pairs
func labelPairs(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k, v := range labels {
		if k == "" || v == "" || blockedLabels[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		v := labels[k]
		if len(v) > maxLabelValueLength {
			v = v[:maxLabelValueLength]
		}
		pairs = append(pairs, k, v)
	}
	return pairs
}
