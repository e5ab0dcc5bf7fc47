// Package persist batches writes to a reactive store by persistence root,
// flushes them to a storage.Adapter after a quiet period, and loads them back
// at startup.
//
// A write resolves to one or more roots (a configured path, or the first
// path segment). Roots accumulate in a batch; every new root re-arms the
// debounce timer. When the timer fires the batch is snapshotted and cleared
// before any I/O, so roots added while a flush runs start the next cycle.
// Each root is written under "<prefix>_<root>"; a full-state blob lives under
// "<prefix>". Failures are logged and reported as activity events, never
// returned to the writer.
package persist
