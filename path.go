package reactive

import (
	"slices"
	"strconv"
	"strings"
)

// Path addresses a location inside the store root, root to leaf. The empty
// Path is the root itself.
type Path []string

// ParsePath splits a dot path. The empty string is the root.
func ParsePath(path string) Path {
	if path == "" {
		return Path{}
	}
	return Path(strings.Split(path, "."))
}

// String joins the segments with dots.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Child returns a new Path with key appended. p is never modified.
func (p Path) Child(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, key)
}

// Index returns the child Path for a sequence index.
func (p Path) Index(i int) Path {
	return p.Child(strconv.Itoa(i))
}

// Parent returns p without its last segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return p[: len(p)-1 : len(p)-1]
}

// Last returns the final segment, or "" for the root.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Equal reports segment-wise equality.
func (p Path) Equal(other Path) bool {
	return slices.Equal(p, other)
}

// HasPrefix reports whether p equals prefix or lies below it.
func (p Path) HasPrefix(prefix Path) bool {
	return len(prefix) <= len(p) && slices.Equal(p[:len(prefix)], prefix)
}

// Related reports whether p and other are equal or one contains the other.
func (p Path) Related(other Path) bool {
	return p.HasPrefix(other) || other.HasPrefix(p)
}

// Cumulative returns every prefix of p as a dot path: "a", "a.b", "a.b.c".
// The root Path yields the root path "".
func (p Path) Cumulative() []string {
	if len(p) == 0 {
		return []string{""}
	}
	out := make([]string, len(p))
	for i := range p {
		out[i] = strings.Join(p[:i+1], ".")
	}
	return out
}

func isIndex(segment string) bool {
	if segment == "" {
		return false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseIndex(segment string) (int, bool) {
	if !isIndex(segment) {
		return 0, false
	}
	index, err := strconv.Atoi(segment)
	if err != nil {
		return 0, false
	}
	return index, true
}

// parentPath returns the dot path of path's parent and whether path has one.
func parentPath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[:i], true
	}
	return "", true
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// isDescendant reports whether path lies strictly below ancestor.
func isDescendant(path, ancestor string) bool {
	if ancestor == "" {
		return path != ""
	}
	return len(path) > len(ancestor) && strings.HasPrefix(path, ancestor) && path[len(ancestor)] == '.'
}

func matchesAny(path Path, configured []Path) bool {
	for _, candidate := range configured {
		if path.Related(candidate) {
			return true
		}
	}
	return false
}

func parsePaths(paths []string) []Path {
	if len(paths) == 0 {
		return nil
	}
	out := make([]Path, 0, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		out = append(out, ParsePath(path))
	}
	return out
}
