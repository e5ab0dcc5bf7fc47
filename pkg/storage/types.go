package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned by adapters used after Close.
var ErrClosed = errors.New("storage: adapter closed")

// Adapter reads and writes opaque values by key.
type Adapter interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Clearer removes every key held by the adapter in one call.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Prewarmer loads remote state into a local cache so later reads are cheap.
// Persistence calls it before any read during asynchronous hydration.
type Prewarmer interface {
	Prewarm(ctx context.Context) error
}

// SyncReader marks adapters whose reads never wait on remote I/O.
type SyncReader interface {
	SyncReads() bool
}

// IsSync reports whether adapter advertises synchronous reads.
func IsSync(adapter Adapter) bool {
	if adapter == nil {
		return false
	}
	reader, ok := adapter.(SyncReader)
	return ok && reader.SyncReads()
}

// ClearPrefix removes every key starting with prefix. Adapters implementing
// Clearer are only cleared wholesale when prefix is empty; otherwise keys are
// listed and removed one by one. Removal failures are joined and returned
// after every key was attempted.
func ClearPrefix(ctx context.Context, adapter Adapter, prefix string) error {
	if adapter == nil {
		return nil
	}
	if clearer, ok := adapter.(Clearer); ok && prefix == "" {
		return clearer.Clear(ctx)
	}
	keys, err := adapter.Keys(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, key := range keys {
		if !HasPrefix(key, prefix) {
			continue
		}
		if err := adapter.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HasPrefix reports whether key is the full-state key for prefix or one of
// its slice keys. Keys written under a longer prefix that starts with
// prefix+"_" match as well.
func HasPrefix(key, prefix string) bool {
	if prefix == "" {
		return true
	}
	if key == prefix {
		return true
	}
	return len(key) > len(prefix)+1 && key[:len(prefix)] == prefix && key[len(prefix)] == '_'
}
