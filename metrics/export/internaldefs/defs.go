package internaldefs

import (
	"github.com/aification/sessionkit"
)

// BucketCount is the number of latency buckets, +Inf included.
const BucketCount = 8

type CounterDef struct {
	ID   sessionkit.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   sessionkit.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: sessionkit.MetricHydrateStarted, Name: "aification_session_hydrate_started_total", Help: "Hydrations started."},
	{ID: sessionkit.MetricHydrateSuccess, Name: "aification_session_hydrate_success_total", Help: "Hydrations that produced a user."},
	{ID: sessionkit.MetricHydrateFailure, Name: "aification_session_hydrate_failure_total", Help: "Hydrations whose token was rejected."},
	{ID: sessionkit.MetricHydrateNoToken, Name: "aification_session_hydrate_no_token_total", Help: "Hydrations that found no stored token."},
	{ID: sessionkit.MetricHydrateStale, Name: "aification_session_hydrate_stale_total", Help: "Hydrations discarded because a newer one started."},
	{ID: sessionkit.MetricHydrateAbandoned, Name: "aification_session_hydrate_abandoned_total", Help: "Hydrations abandoned by their caller."},
	{ID: sessionkit.MetricExpiredToken, Name: "aification_session_expired_token_total", Help: "Tokens rejected locally as expired."},
	{ID: sessionkit.MetricSignIn, Name: "aification_session_sign_in_total", Help: "Sign-ins."},
	{ID: sessionkit.MetricSignOut, Name: "aification_session_sign_out_total", Help: "Sign-outs."},
	{ID: sessionkit.MetricStorageTrigger, Name: "aification_session_storage_trigger_total", Help: "Hydrations triggered by another context's storage change."},
	{ID: sessionkit.MetricVisibilityTrigger, Name: "aification_session_visibility_trigger_total", Help: "Hydrations triggered by becoming visible."},
}

var HistogramDefs = []HistogramDef{
	{ID: sessionkit.MetricHydrateLatency, Name: "aification_session_hydrate_latency_seconds", Help: "Hydration latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last bucket is +Inf.
var HistogramUpperBounds = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// HistogramBoundSuffix names each bucket in instrument names.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
