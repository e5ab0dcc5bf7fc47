package reactive

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RegisterMetrics publishes Stats as observable gauges on meter, tagged with
// the store ID. Unregister the returned registration to stop observing.
func RegisterMetrics(meter metric.Meter, s *Store) (metric.Registration, error) {
	if meter == nil || s == nil {
		return nil, fmt.Errorf("reactive: register metrics: meter and store are required")
	}

	gauge := func(name, description, unit string) (metric.Int64ObservableGauge, error) {
		g, err := meter.Int64ObservableGauge(name,
			metric.WithDescription(description),
			metric.WithUnit(unit),
		)
		if err != nil {
			return nil, fmt.Errorf("reactive: gauge %s: %w", name, err)
		}
		return g, nil
	}

	entries, err := gauge("reactive.cache.entries", "Live wrappers in the identity cache.", "{wrapper}")
	if err != nil {
		return nil, err
	}
	recency, err := gauge("reactive.cache.recency", "Wrappers held by the recency index.", "{wrapper}")
	if err != nil {
		return nil, err
	}
	tracked, err := gauge("reactive.tracking.paths", "Distinct paths read by tracked selectors.", "{path}")
	if err != nil {
		return nil, err
	}
	subscriptions, err := gauge("reactive.registry.subscriptions", "Registered subscribers.", "{subscriber}")
	if err != nil {
		return nil, err
	}
	pending, err := gauge("reactive.persist.pending", "Persistence roots waiting for a flush.", "{root}")
	if err != nil {
		return nil, err
	}
	estimate, err := gauge("reactive.memory.estimate", "Estimated memory held by wrappers and tracked paths.", "By")
	if err != nil {
		return nil, err
	}
	pressure, err := gauge("reactive.memory.pressure", "1 while the pressure estimator reports high pressure.", "1")
	if err != nil {
		return nil, err
	}

	attrs := metric.WithAttributes(attribute.String("store", s.ID()))
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := s.Stats()
		o.ObserveInt64(entries, int64(stats.CacheEntries), attrs)
		o.ObserveInt64(recency, int64(stats.RecencyEntries), attrs)
		o.ObserveInt64(tracked, int64(stats.TrackedPaths), attrs)
		o.ObserveInt64(subscriptions, int64(stats.Subscriptions), attrs)
		o.ObserveInt64(pending, int64(len(stats.PendingRoots)), attrs)
		o.ObserveInt64(estimate, stats.EstimatedBytes, attrs)
		var high int64
		if stats.PressureHigh {
			high = 1
		}
		o.ObserveInt64(pressure, high, attrs)
		return nil
	}, entries, recency, tracked, subscriptions, pending, estimate, pressure)
}
