package persist

import (
	"strings"
	"time"
)

// DefaultKeyPrefix namespaces every key the persister writes.
const DefaultKeyPrefix = "persisted_state"

// DefaultDebounce is the quiet period between the last write and a flush.
const DefaultDebounce = 300 * time.Millisecond

// Config controls which writes are persisted and how they are batched.
type Config struct {
	Enabled     bool          `env:"ENABLED"`
	Paths       []string      `env:"PATHS" envSeparator:","`
	Blacklist   []string      `env:"BLACKLIST" envSeparator:","`
	Debounce    time.Duration `env:"DEBOUNCE"`
	AutoHydrate bool          `env:"AUTO_HYDRATE"`

	// KeyPrefix namespaces keys in the adapter. Stores sharing an adapter
	// need prefixes that do not nest (see PrefixesNest): with "persisted" and
	// "persisted_state" side by side, the first one reads, and clears, the
	// second one's keys as its own slices.
	KeyPrefix string `env:"KEY_PREFIX"`
}

// DefaultConfig returns persistence disabled with auto hydration on.
func DefaultConfig() Config {
	return Config{
		Debounce:    DefaultDebounce,
		AutoHydrate: true,
		KeyPrefix:   DefaultKeyPrefix,
	}
}

// Normalize trims configured paths, drops empty entries, and fills defaults.
func (c Config) Normalize() Config {
	c.Paths = cleanPaths(c.Paths)
	c.Blacklist = cleanPaths(c.Blacklist)
	c.KeyPrefix = strings.TrimSpace(c.KeyPrefix)
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.Debounce < 0 {
		c.Debounce = 0
	}
	return c
}

func cleanPaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		path = strings.Trim(strings.TrimSpace(path), ".")
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Key returns the storage key for root. The empty root maps to the full-state
// key.
func Key(prefix, root string) string {
	if root == "" {
		return prefix
	}
	return prefix + "_" + root
}

// RootFromKey extracts the persistence root from a slice key. It reports
// false for the full-state key and for foreign keys. Keys of a nested prefix
// are not foreign: RootFromKey("a", "a_b_c") yields "b_c".
func RootFromKey(prefix, key string) (string, bool) {
	head := prefix + "_"
	if !strings.HasPrefix(key, head) || len(key) == len(head) {
		return "", false
	}
	return key[len(head):], true
}

// PrefixesNest reports whether the key spaces of two prefixes overlap, that
// is whether either one's keys can be read as the other's slices. Stores that
// share an adapter must use prefixes for which this is false.
func PrefixesNest(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" || a == b {
		return true
	}
	return strings.HasPrefix(a, b+"_") || strings.HasPrefix(b, a+"_")
}

func split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func join(path []string) string {
	return strings.Join(path, ".")
}
