package persist

import "slices"

// Policy decides which paths are persisted and which persistence roots a
// write belongs to.
type Policy struct {
	enabled   bool
	allow     [][]string
	blacklist [][]string
}

// NewPolicy compiles cfg into a Policy.
func NewPolicy(cfg Config) Policy {
	cfg = cfg.Normalize()
	policy := Policy{enabled: cfg.Enabled}
	for _, path := range cfg.Paths {
		policy.allow = append(policy.allow, split(path))
	}
	for _, path := range cfg.Blacklist {
		policy.blacklist = append(policy.blacklist, split(path))
	}
	return policy
}

// ShouldPersist reports whether a write to path is persisted. Blacklisted
// paths and their descendants never are. Without an allow-list every other
// path is; with one, only paths equal to, below, or above an allowed path.
func (p Policy) ShouldPersist(path []string) bool {
	if !p.enabled {
		return false
	}
	for _, blocked := range p.blacklist {
		if hasPrefix(path, blocked) {
			return false
		}
	}
	if len(p.allow) == 0 {
		return true
	}
	for _, allowed := range p.allow {
		if hasPrefix(path, allowed) || hasPrefix(allowed, path) {
			return true
		}
	}
	return false
}

// Roots resolves the persistence roots touched by a write to path. A write
// inside an allowed path belongs to the longest allowed path containing it;
// a write above allowed paths touches each of them. Without an allow-list the
// root is the first segment.
func (p Policy) Roots(path []string) []string {
	if len(p.allow) == 0 {
		if len(path) == 0 {
			return nil
		}
		return []string{path[0]}
	}
	var best []string
	for _, allowed := range p.allow {
		if hasPrefix(path, allowed) && len(allowed) > len(best) {
			best = allowed
		}
	}
	if best != nil {
		return []string{join(best)}
	}
	var roots []string
	for _, allowed := range p.allow {
		if hasPrefix(allowed, path) {
			roots = append(roots, join(allowed))
		}
	}
	return roots
}

// Covers reports whether slice root is equal to or nested under parent.
func Covers(parent, root string) bool {
	return hasPrefix(split(root), split(parent))
}

// blockedUnder returns blacklisted paths nested under root, relative to it.
func (p Policy) blockedUnder(root []string) [][]string {
	var out [][]string
	for _, blocked := range p.blacklist {
		if len(blocked) > len(root) && hasPrefix(blocked, root) {
			out = append(out, slices.Clone(blocked[len(root):]))
		}
	}
	return out
}

func hasPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	return slices.Equal(path[:len(prefix)], prefix)
}
