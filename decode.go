package reactive

import (
	"fmt"

	"github.com/goliatone/go-reactive/internal/hydrate"
)

// DecodeAt reads path and decodes a plain copy of it into T through its JSON
// form. The read is tracked like any other.
func DecodeAt[T any](s *Store, path string) (T, error) {
	var zero T
	value, ok := s.Lookup(path)
	if !ok {
		return zero, fmt.Errorf("reactive: decode %q: %w", path, ErrNotFound)
	}
	decoder := hydrate.NewDecoder[T]()
	out, err := decoder.Decode(hydrate.Context{Path: path}, materialize(value))
	if err != nil {
		return zero, fmt.Errorf("reactive: %w", err)
	}
	return out, nil
}
