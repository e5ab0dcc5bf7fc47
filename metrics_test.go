package reactive

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectGauges(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			if !ok || len(gauge.DataPoints) == 0 {
				continue
			}
			point := gauge.DataPoints[0]
			if id, _ := point.Attributes.Value(attribute.Key("store")); id.AsString() != "metrics" {
				t.Fatalf("%s: unexpected store attribute %v", m.Name, id)
			}
			out[m.Name] = point.Value
		}
	}
	return out
}

func TestRegisterMetricsObservesStats(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	s := newTestStore(t, WithID("metrics"))
	s.Subscribe("user.name", func() {})
	s.Select(func(root *Object) any { return root.GetPath("user.profile.theme") })

	reg, err := RegisterMetrics(provider.Meter("reactive-test"), s)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer reg.Unregister()

	stats := s.Stats()
	got := collectGauges(t, reader)
	want := map[string]int64{
		"reactive.cache.entries":          int64(stats.CacheEntries),
		"reactive.cache.recency":          int64(stats.RecencyEntries),
		"reactive.tracking.paths":         3,
		"reactive.registry.subscriptions": 1,
		"reactive.persist.pending":        0,
		"reactive.memory.estimate":        stats.EstimatedBytes,
		"reactive.memory.pressure":        0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("gauges mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterMetricsRequiresArguments(t *testing.T) {
	if _, err := RegisterMetrics(nil, newTestStore(t)); err == nil {
		t.Fatalf("expected error for nil meter")
	}
	if _, err := RegisterMetrics(noop.NewMeterProvider().Meter("noop"), nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
}
