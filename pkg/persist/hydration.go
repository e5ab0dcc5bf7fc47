package persist

import (
	"context"
	"sort"
	"strings"

	"github.com/goliatone/go-reactive/internal/hydrate"
	"github.com/goliatone/go-reactive/layering"
	"github.com/goliatone/go-reactive/pkg/activity"
	"github.com/goliatone/go-reactive/pkg/storage"
)

const (
	StrategySync  = "sync"
	StrategyAsync = "async"
)

// Report summarises one hydration pass.
type Report struct {
	Strategy string
	// Blob is true when a full-state blob was found and applied.
	Blob bool
	// Applied lists slice roots applied, parents first.
	Applied []string
	// Skipped lists slice roots ignored because a parent slice was applied,
	// the policy excludes them, or their data was malformed.
	Skipped []string
}

type slice struct {
	root  string
	path  []string
	value any
}

// MarkHydrated opens the enqueue gate. It is idempotent.
func (p *Persister) MarkHydrated() {
	p.hydrated.Store(true)
	p.hydratedOnce.Do(func() { close(p.hydratedCh) })
}

// Hydrated is closed once the first hydration completes.
func (p *Persister) Hydrated() <-chan struct{} { return p.hydratedCh }

// IsHydrated reports whether the first hydration completed.
func (p *Persister) IsHydrated() bool { return p.hydrated.Load() }

// Hydrating reports whether an asynchronous hydration is writing.
func (p *Persister) Hydrating() bool { return p.hydrating.Load() }

// PlanSync builds the starting root before any wrapper exists: a deep copy of
// initial, overlaid by the full-state blob, then by stored slices parent
// first. initial is never mutated. Read and decode failures are logged and
// skipped.
func (p *Persister) PlanSync(ctx context.Context, initial map[string]any) (map[string]any, Report) {
	report := Report{Strategy: StrategySync}
	merged := layering.CloneMap(initial)
	if !p.Enabled() {
		return merged, report
	}

	if blob, ok := p.loadBlob(ctx); ok {
		merged = layering.MergeMaps(blob, merged)
		report.Blob = true
	}
	slices, skipped := p.loadSlices(ctx)
	report.Skipped = append(report.Skipped, skipped...)
	for _, s := range slices {
		merged = layering.SetIn(merged, s.path, s.value)
		report.Applied = append(report.Applied, s.root)
	}
	p.reportHydrated(ctx, report)
	return merged, report
}

// HydrateAsync writes stored values through w while suppressing enqueues.
// Adapters implementing storage.Prewarmer are warmed first. It returns only
// context errors; storage and decode failures are logged and skipped.
func (p *Persister) HydrateAsync(ctx context.Context, w Writer) (Report, error) {
	report := Report{Strategy: StrategyAsync}
	if !p.Enabled() {
		p.MarkHydrated()
		return report, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.hydrating.Store(true)
	defer func() {
		p.hydrating.Store(false)
		p.MarkHydrated()
	}()

	if warmer, ok := p.adapter.(storage.Prewarmer); ok {
		if err := warmer.Prewarm(ctx); err != nil {
			p.logger.Warn("persist: prewarm failed", "error", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if blob, ok := p.loadBlob(ctx); ok {
		keys := make([]string, 0, len(blob))
		for key := range blob {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			w.Write([]string{key}, p.overCurrent(key, blob[key]))
		}
		report.Blob = true
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	slices, skipped := p.loadSlices(ctx)
	report.Skipped = append(report.Skipped, skipped...)
	for _, s := range slices {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		w.Write(s.path, s.value)
		report.Applied = append(report.Applied, s.root)
	}
	p.reportHydrated(ctx, report)
	return report, nil
}

// overCurrent deep-merges a blob entry over the live value at key so keys
// only present in the starting state survive, matching PlanSync.
func (p *Persister) overCurrent(key string, value any) any {
	if p.source == nil {
		return value
	}
	current, ok := p.source.Snapshot([]string{key})
	if !ok {
		return value
	}
	return layering.MergeLayers(value, current)
}

func (p *Persister) loadBlob(ctx context.Context) (map[string]any, bool) {
	value, ok := p.read(ctx, p.cfg.KeyPrefix, "")
	if !ok {
		return nil, false
	}
	blob, ok := layering.Normalize(value).(map[string]any)
	if !ok {
		p.logger.Warn("persist: full state blob is not a map", "key", p.cfg.KeyPrefix)
		return nil, false
	}
	return blob, true
}

// loadSlices reads every slice key, orders roots by depth, and drops slices
// already covered by an applied parent.
func (p *Persister) loadSlices(ctx context.Context) ([]slice, []string) {
	keys, err := p.adapter.Keys(ctx)
	if err != nil {
		p.logger.Warn("persist: list keys failed", "error", err)
		return nil, nil
	}
	var roots []string
	for _, key := range keys {
		if root, ok := RootFromKey(p.cfg.KeyPrefix, key); ok {
			roots = append(roots, root)
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		di, dj := strings.Count(roots[i], "."), strings.Count(roots[j], ".")
		if di != dj {
			return di < dj
		}
		return roots[i] < roots[j]
	})

	var (
		applied []string
		skipped []string
		out     []slice
	)
	for _, root := range roots {
		path := split(root)
		if coveredBy(applied, root) || !p.policy.ShouldPersist(path) {
			skipped = append(skipped, root)
			continue
		}
		value, ok := p.read(ctx, Key(p.cfg.KeyPrefix, root), root)
		if !ok {
			skipped = append(skipped, root)
			continue
		}
		applied = append(applied, root)
		out = append(out, slice{root: root, path: path, value: value})
	}
	return out, skipped
}

func coveredBy(applied []string, root string) bool {
	for _, parent := range applied {
		if parent != root && Covers(parent, root) {
			return true
		}
	}
	return false
}

// read fetches and decodes key. Missing keys, adapter errors, and malformed
// payloads all report false.
func (p *Persister) read(ctx context.Context, key, root string) (any, bool) {
	data, ok, err := p.adapter.Get(ctx, key)
	if err != nil {
		p.logger.Warn("persist: read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var value any
	if err := p.codec.Unmarshal(data, &value); err != nil {
		p.logger.Warn("persist: malformed stored value", "key", key, "error", err)
		return nil, false
	}
	value = layering.Normalize(value)
	if payload, isMap := value.(map[string]any); isMap && len(p.migrations) > 0 {
		migrated, err := p.decoder.Decode(hydrate.Context{Path: root, Key: key}, payload)
		if err != nil {
			p.logger.Warn("persist: migrate stored value failed", "key", key, "error", err)
			return nil, false
		}
		value = migrated
	}
	return value, true
}

func (p *Persister) migrate(ctx hydrate.Context, payload map[string]any) (map[string]any, error) {
	for _, fn := range p.migrations {
		next, err := fn(ctx.Path, payload)
		if err != nil {
			return nil, err
		}
		if next != nil {
			payload = next
		}
	}
	return payload, nil
}

func (p *Persister) reportHydrated(ctx context.Context, report Report) {
	p.logger.Debug("persist: hydrated",
		"strategy", report.Strategy,
		"blob", report.Blob,
		"applied", report.Applied,
		"skipped", report.Skipped,
	)
	p.emit(ctx, activity.BuildHydratedEvent(activity.HydrationEventInput{
		StoreID:  p.storeID,
		Strategy: report.Strategy,
		Applied:  report.Applied,
		Skipped:  report.Skipped,
	}))
}
