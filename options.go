package reactive

import (
	"log/slog"
	"time"

	"github.com/goliatone/go-reactive/pkg/activity"
	"github.com/goliatone/go-reactive/pkg/persist"
	"github.com/goliatone/go-reactive/pkg/storage"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	cfg            Config
	id             string
	logger         *slog.Logger
	adapter        storage.Adapter
	codec          persist.Codec
	hooks          activity.Hooks
	activity       activity.Config
	migrations     []persist.MigrateFunc
	functions      *FunctionRegistry
	programCache   ProgramCache
	selectorLogger SelectorLogger
	engines        []Engine
	jsOptions      []JSOption
	optionErrs     []error
}

func applyOptions(opts []Option) options {
	cfg := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.cfg = cfg.cfg.validate()
	return cfg
}

// WithConfig replaces the whole configuration. Later options still apply on
// top of it.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithID sets the store identifier used in logs and activity events.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithLogger sets the structured logger; nil discards.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStorage sets the adapter slices are written to.
func WithStorage(adapter storage.Adapter) Option {
	return func(o *options) {
		o.adapter = adapter
	}
}

// WithCodec sets how slices are encoded; JSON by default.
func WithCodec(codec persist.Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// WithPersistence enables persistence for paths. With no paths every top-level
// key is persisted under its own root.
func WithPersistence(paths ...string) Option {
	return func(o *options) {
		o.cfg.Persist.Enabled = true
		o.cfg.Persist.Paths = append(o.cfg.Persist.Paths, paths...)
	}
}

// WithBlacklist excludes paths and everything below them from persistence.
func WithBlacklist(paths ...string) Option {
	return func(o *options) {
		o.cfg.Persist.Blacklist = append(o.cfg.Persist.Blacklist, paths...)
	}
}

// WithDebounce sets the quiet period before a batch flushes.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.cfg.Persist.Debounce = d
	}
}

// WithAutoHydrate controls whether New loads stored slices.
func WithAutoHydrate(enabled bool) Option {
	return func(o *options) {
		o.cfg.Persist.AutoHydrate = enabled
	}
}

// WithKeyPrefix namespaces storage keys. Stores sharing an adapter need
// prefixes that do not nest; see persist.PrefixesNest.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.cfg.Persist.KeyPrefix = prefix
	}
}

// WithMigration rewrites stored map slices while hydrating.
func WithMigration(fn persist.MigrateFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.migrations = append(o.migrations, fn)
		}
	}
}

// WithWrapping toggles wrapping of nested containers. The root is always
// wrapped.
func WithWrapping(enabled bool) Option {
	return func(o *options) {
		o.cfg.Wrapping.Enabled = enabled
	}
}

// WithMaxDepth sets the deepest nesting level that still gets wrapped.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.cfg.Wrapping.MaxDepth = depth
	}
}

// WithUltraSelective only wraps paths read by tracked selectors, plus
// pre-registered and priority paths.
func WithUltraSelective(enabled bool) Option {
	return func(o *options) {
		o.cfg.Wrapping.UltraSelective = enabled
	}
}

// WithPriorityPaths marks paths that are wrapped even under pressure.
func WithPriorityPaths(paths ...string) Option {
	return func(o *options) {
		o.cfg.Wrapping.PriorityPaths = append(o.cfg.Wrapping.PriorityPaths, paths...)
	}
}

// WithPreRegisteredPaths marks paths wrapped in ultra-selective mode before
// any selector read them.
func WithPreRegisteredPaths(paths ...string) Option {
	return func(o *options) {
		o.cfg.Wrapping.PreRegisteredPaths = append(o.cfg.Wrapping.PreRegisteredPaths, paths...)
	}
}

// WithCacheSize bounds the wrapper recency index.
func WithCacheSize(size int) Option {
	return func(o *options) {
		o.cfg.Cache.MaxSize = size
	}
}

// WithMemoryPressure sets the estimator threshold and turns on shedding.
func WithMemoryPressure(thresholdBytes int64) Option {
	return func(o *options) {
		o.cfg.Memory.ThresholdBytes = thresholdBytes
		o.cfg.Memory.ShedUnderPressure = true
	}
}

// WithActivityHooks emits persistence lifecycle events to hooks.
func WithActivityHooks(hooks ...activity.ActivityHook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hooks...)
		o.activity.Enabled = true
	}
}

// WithActivityChannel overrides the default "state" channel.
func WithActivityChannel(channel string) Option {
	return func(o *options) {
		o.activity.Channel = channel
	}
}
