// Package storage defines the key/value contract the persistence layer writes
// slices through, plus a small in-memory adapter intended for tests and
// examples. Durable adapters live in the sqlite (local file, synchronous
// reads) and dynamo (DynamoDB table, pre-warmed cache) subpackages.
//
// Responsibilities:
//   - Adapter only reads/writes/removes/lists opaque byte values by key.
//   - Serialisation, batching, and key naming stay in pkg/persist.
//   - Optional capabilities are discovered through type assertions:
//     Clearer (bulk removal), Prewarmer (cache warm-up before async
//     hydration), SyncReader (reads complete without I/O waits, enabling the
//     pre-wrap merge).
//
// Key naming:
//
//	<prefix>          full-state snapshot
//	<prefix>_<root>   one slice per persistence root
package storage
