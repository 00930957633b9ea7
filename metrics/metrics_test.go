package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/channelaccess/catcp/metrics"
)

func TestBytesTotal(t *testing.T) {
	metrics.BytesTotal.Reset()
	metrics.BytesTotal.With(prometheus.Labels{"direction": "send"}).Add(42)
	got := testutil.ToFloat64(metrics.BytesTotal.With(prometheus.Labels{"direction": "send"}))
	if got != 42 {
		t.Errorf("BytesTotal[send] = %v, want 42", got)
	}
}

func TestWatchdogExpiryTotal(t *testing.T) {
	metrics.WatchdogExpiryTotal.Reset()
	metrics.WatchdogExpiryTotal.With(prometheus.Labels{"dog": "recv"}).Inc()
	got := testutil.ToFloat64(metrics.WatchdogExpiryTotal.With(prometheus.Labels{"dog": "recv"}))
	if got != 1 {
		t.Errorf("WatchdogExpiryTotal[recv] = %v, want 1", got)
	}
}

func TestActiveCircuitsGauge(t *testing.T) {
	metrics.ActiveCircuits.Set(0)
	metrics.ActiveCircuits.Inc()
	metrics.ActiveCircuits.Inc()
	metrics.ActiveCircuits.Dec()
	if got := testutil.ToFloat64(metrics.ActiveCircuits); got != 1 {
		t.Errorf("ActiveCircuits = %v, want 1", got)
	}
}
