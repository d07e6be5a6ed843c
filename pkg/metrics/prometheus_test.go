package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())
	r.RecordFetch("yahoo", "success")
	r.RecordFetch("yahoo", "success")
	r.RecordRateLimitHit("yahoo")
	r.RecordBackoff("yahoo", 1.5)

	if got := testutil.ToFloat64(r.fetchTotal.WithLabelValues("yahoo", "success")); got != 2 {
		t.Fatalf("fetch total = %v", got)
	}
	if got := testutil.ToFloat64(r.backoffSeconds.WithLabelValues("yahoo")); got != 1.5 {
		t.Fatalf("backoff seconds = %v", got)
	}
}

func TestRecordRunStatusIsExclusive(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())
	r.RecordRunStatus("fetch", "success")
	r.RecordRunStatus("fetch", "partial")
	if got := testutil.ToFloat64(r.runStatus.WithLabelValues("fetch", "partial")); got != 1 {
		t.Fatalf("partial = %v", got)
	}
	if got := testutil.ToFloat64(r.runStatus.WithLabelValues("fetch", "success")); got != 0 {
		t.Fatalf("success = %v", got)
	}
}
