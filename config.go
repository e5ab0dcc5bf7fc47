package reactive

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-reactive/pkg/persist"
)

// EnvPrefix prefixes every variable read by LoadConfigFromEnv.
const EnvPrefix = "REACTIVE_"

// Config is the full tuning surface of a Store.
type Config struct {
	Wrapping WrappingConfig `envPrefix:"WRAP_"`
	Cache    CacheConfig    `envPrefix:"CACHE_"`
	Memory   MemoryConfig   `envPrefix:"MEMORY_"`
	Tracking TrackingConfig `envPrefix:"TRACK_"`
	Persist  persist.Config `envPrefix:"PERSIST_"`
}

// WrappingConfig controls which nested containers get wrappers.
type WrappingConfig struct {
	Enabled  bool `env:"ENABLED"`
	MaxDepth int  `env:"MAX_DEPTH"`
	// UltraSelective only wraps paths a tracked selector has read, plus
	// pre-registered and priority paths.
	UltraSelective     bool     `env:"ULTRA_SELECTIVE"`
	PriorityPaths      []string `env:"PRIORITY_PATHS" envSeparator:","`
	PreRegisteredPaths []string `env:"PRE_REGISTERED_PATHS" envSeparator:","`
}

// CacheConfig bounds the wrapper recency index. MaxSize 0 keeps only the
// weak cache.
type CacheConfig struct {
	MaxSize int `env:"MAX_SIZE"`
}

// MemoryConfig feeds the pressure estimate: BaselineBytes plus EntryBytes per
// cached wrapper plus PathBytes per tracked path, compared to ThresholdBytes.
// The weights are tuning knobs, not measurements.
type MemoryConfig struct {
	BaselineBytes       int64 `env:"BASELINE_BYTES"`
	EntryBytes          int64 `env:"ENTRY_BYTES"`
	PathBytes           int64 `env:"PATH_BYTES"`
	ThresholdBytes      int64 `env:"THRESHOLD_BYTES"`
	ConsecutiveReadings int   `env:"CONSECUTIVE_READINGS"`
	ShedUnderPressure   bool  `env:"SHED_UNDER_PRESSURE"`
}

// TrackingConfig limits dependency capture.
type TrackingConfig struct {
	MaxPathLength int `env:"MAX_PATH_LENGTH"`
}

// DefaultConfig returns wrapping on, a 500 entry recency index and
// persistence off.
func DefaultConfig() Config {
	return Config{
		Wrapping: WrappingConfig{
			Enabled:  true,
			MaxDepth: 10,
		},
		Cache: CacheConfig{MaxSize: DefaultCacheSize},
		Memory: MemoryConfig{
			BaselineBytes:       2 << 20,
			EntryBytes:          1 << 10,
			PathBytes:           128,
			ThresholdBytes:      50 << 20,
			ConsecutiveReadings: 3,
		},
		Tracking: TrackingConfig{MaxPathLength: DefaultMaxPathLength},
		Persist:  persist.DefaultConfig(),
	}
}

// validate clamps out-of-range values back to defaults.
func (c Config) validate() Config {
	defaults := DefaultConfig()
	if c.Wrapping.MaxDepth <= 0 {
		c.Wrapping.MaxDepth = defaults.Wrapping.MaxDepth
	}
	if c.Cache.MaxSize < 0 {
		c.Cache.MaxSize = 0
	}
	if c.Memory.BaselineBytes < 0 {
		c.Memory.BaselineBytes = defaults.Memory.BaselineBytes
	}
	if c.Memory.EntryBytes < 0 {
		c.Memory.EntryBytes = defaults.Memory.EntryBytes
	}
	if c.Memory.PathBytes < 0 {
		c.Memory.PathBytes = defaults.Memory.PathBytes
	}
	if c.Memory.ConsecutiveReadings < 1 {
		c.Memory.ConsecutiveReadings = 1
	}
	if c.Tracking.MaxPathLength <= 0 {
		c.Tracking.MaxPathLength = defaults.Tracking.MaxPathLength
	}
	c.Persist = c.Persist.Normalize()
	return c
}

// LoadConfigFromEnv overlays REACTIVE_* variables on DefaultConfig, e.g.
// REACTIVE_CACHE_MAX_SIZE or REACTIVE_PERSIST_PATHS=user,settings.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("reactive: parse env config: %w", err)
	}
	return cfg.validate(), nil
}
