// Package reactive is an in-process reactive data layer. A Store owns one
// plain map[string]any tree; reads go through wrappers that record which dot
// paths were touched, and writes notify the subscribers of the written path,
// its ancestors and its descendants.
//
//	store, _ := reactive.New(ctx, map[string]any{"user": map[string]any{"name": "ada"}})
//	store.Subscribe("user", func() { fmt.Println("user changed") })
//	store.Set("user.name", "grace")
//
// Select and Watch run a selector with dependency tracking, so a consumer is
// woken only when the slice it read changes. Selectors can also be written as
// expr, CEL or (with the js_eval build tag) JavaScript expressions.
//
// Wrappers are cached per container identity behind weak pointers and a
// bounded recency index. Depth limits, ultra-selective wrapping and a memory
// pressure estimate decide which nested containers get wrappers at all.
//
// With persistence enabled, writes are batched per persistence root and
// flushed to a storage adapter after a debounce period; stored slices are
// loaded back at startup, before wrapping for synchronous adapters and
// through the live wrappers otherwise.
package reactive
